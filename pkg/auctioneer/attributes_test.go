package auctioneer

import (
	"testing"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bidoor/pkg/types"
)

func baseAttributes() *PayloadAttributes {
	var parentHash phase0.Hash32

	parentHash[0] = 0x01

	var prevRandao [32]byte

	prevRandao[0] = 0x02

	var feeRecipient bellatrix.ExecutionAddress

	feeRecipient[0] = 0x03

	root := phase0.Root{0x04}

	return NewPayloadAttributes(parentHash, 1700000000, prevRandao, feeRecipient, []types.Withdrawal{
		{Index: 1, ValidatorIndex: 2, AmountGwei: 3},
	}, &root)
}

func TestPayloadIDIsDeterministic(t *testing.T) {
	a := baseAttributes()
	b := baseAttributes()

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, PayloadID{}, a.ID)
}

func TestPayloadIDCoversEveryField(t *testing.T) {
	base := baseAttributes()

	changed := baseAttributes()
	changed.Timestamp++
	assert.NotEqual(t, base.ID, computePayloadID(changed))

	changed = baseAttributes()
	changed.ParentHash[1] = 0xff
	assert.NotEqual(t, base.ID, computePayloadID(changed))

	changed = baseAttributes()
	changed.Withdrawals[0].AmountGwei++
	assert.NotEqual(t, base.ID, computePayloadID(changed))

	changed = baseAttributes()
	changed.ParentBeaconBlockRoot = nil
	assert.NotEqual(t, base.ID, computePayloadID(changed))
}

func TestWithProposalMixesID(t *testing.T) {
	base := baseAttributes()

	proposal := &ProposalAttributes{
		ProposerGasLimit:     30_000_000,
		ProposerFeeRecipient: bellatrix.ExecutionAddress{0xaa},
	}

	mixed := base.WithProposal(proposal)

	require.NotNil(t, mixed.Proposal)
	assert.Equal(t, MixProposalIntoPayloadID(base.ID, proposal), mixed.ID)
	assert.NotEqual(t, base.ID, mixed.ID)

	// The base attributes are untouched by the clone.
	assert.Nil(t, base.Proposal)

	// Distinct proposer preferences yield distinct builds.
	other := base.WithProposal(&ProposalAttributes{
		ProposerGasLimit:     30_000_001,
		ProposerFeeRecipient: bellatrix.ExecutionAddress{0xaa},
	})
	assert.NotEqual(t, mixed.ID, other.ID)
}
