package auctioneer

import (
	"net/url"
	"testing"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bidoor/pkg/relay"
	"github.com/ethpandaops/bidoor/pkg/types"
)

func testClient(t *testing.T, pubkeyByte byte) *relay.Client {
	t.Helper()

	var pk phase0.BLSPubKey
	pk[0] = pubkeyByte

	u, err := url.Parse("https://relay.example.test")
	require.NoError(t, err)

	ep := &relay.Endpoint{URL: u, PublicKey: pk}

	return relay.NewClient(ep, nopLogger(t))
}

func entry(slot phase0.Slot, pubByte byte, feeByte byte) *types.ProposerScheduleEntry {
	var pub phase0.BLSPubKey
	pub[0] = pubByte

	var fee bellatrix.ExecutionAddress
	fee[0] = feeByte

	return &types.ProposerScheduleEntry{
		Slot: slot,
		SignedRegistration: &types.SignedValidatorRegistration{
			Message: &types.ValidatorRegistrationMessage{
				Pubkey:       pub,
				FeeRecipient: fee,
				GasLimit:     30_000_000,
			},
		},
	}
}

func TestAuctionSchedule_ProcessAndTake(t *testing.T) {
	s := NewAuctionSchedule()

	relayA := testClient(t, 0xAA)
	relayB := testClient(t, 0xBB)

	s.Process(relayA, []*types.ProposerScheduleEntry{entry(10, 0x01, 0x02)})
	s.Process(relayB, []*types.ProposerScheduleEntry{entry(10, 0x01, 0x02)})

	proposals := s.GetMatchingProposals(10)
	require.Len(t, proposals, 1)

	for _, set := range proposals {
		require.Len(t, set, 2)
	}

	taken := s.TakeMatchingProposals(10)
	require.Len(t, taken, 1)

	require.Nil(t, s.GetMatchingProposals(10))
}

func TestAuctionSchedule_Clear(t *testing.T) {
	s := NewAuctionSchedule()
	relayA := testClient(t, 0xAA)

	s.Process(relayA, []*types.ProposerScheduleEntry{entry(5, 0x01, 0x02), entry(10, 0x01, 0x02)})

	s.Clear(10)

	require.Nil(t, s.GetMatchingProposals(5))
	require.NotNil(t, s.GetMatchingProposals(10))
}
