package builder

import (
	"context"
	"io"
	"testing"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bidoor/pkg/auctioneer"
	"github.com/ethpandaops/bidoor/pkg/types"
)

func nopLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func testAttributes(timestamp uint64) *auctioneer.PayloadAttributes {
	attrs := auctioneer.NewPayloadAttributes(
		phase0.Hash32{0x01},
		timestamp,
		[32]byte{0x02},
		bellatrix.ExecutionAddress{0x03},
		[]types.Withdrawal{},
		nil,
	)

	return attrs.WithProposal(&auctioneer.ProposalAttributes{
		ProposerGasLimit:     30_000_000,
		ProposerFeeRecipient: bellatrix.ExecutionAddress{0x42},
	})
}

func TestLocalBuilderFabricatesPayload(t *testing.T) {
	l := NewLocal(&Config{ExtraData: "bidoor/", BlockValueWei: "1000000"}, nopLogger(t))

	attrs := testAttributes(1700000000)

	id, err := l.NewPayload(context.Background(), attrs)
	require.NoError(t, err)
	assert.Equal(t, attrs.ID, id)

	built, err := l.BestPayload(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, attrs.ParentHash, built.Payload.ParentHash)
	assert.Equal(t, bellatrix.ExecutionAddress{0x42}, built.Payload.FeeRecipient)
	assert.Equal(t, []byte("bidoor/"), built.Payload.ExtraData)
	assert.Equal(t, uint256.NewInt(1000000), built.Fees)
	assert.NotEqual(t, phase0.Hash32{}, built.Payload.BlockHash)

	// Rebuilding the same job yields the same block hash.
	_, err = l.NewPayload(context.Background(), attrs)
	require.NoError(t, err)

	again, err := l.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, built.Payload.BlockHash, again.Payload.BlockHash)
}

func TestLocalBuilderUnknownID(t *testing.T) {
	l := NewLocal(&Config{}, nopLogger(t))

	_, err := l.BestPayload(context.Background(), auctioneer.PayloadID{0xff})
	assert.ErrorIs(t, err, auctioneer.ErrMissingPayload)
}

func TestLocalBuilderPrune(t *testing.T) {
	l := NewLocal(&Config{}, nopLogger(t))

	old := testAttributes(100)
	fresh := testAttributes(200)

	_, err := l.NewPayload(context.Background(), old)
	require.NoError(t, err)
	_, err = l.NewPayload(context.Background(), fresh)
	require.NoError(t, err)

	l.Prune(150)

	_, err = l.BestPayload(context.Background(), old.ID)
	assert.ErrorIs(t, err, auctioneer.ErrMissingPayload)

	_, err = l.BestPayload(context.Background(), fresh.ID)
	assert.NoError(t, err)
}
