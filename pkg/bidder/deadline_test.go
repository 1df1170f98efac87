package bidder

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bidoor/pkg/auctioneer"
)

func nopLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

type fixedRevenue struct {
	fees *uint256.Int
	err  error
}

func (f *fixedRevenue) CurrentRevenue(_ context.Context, _ auctioneer.PayloadID) (*uint256.Int, error) {
	return f.fees, f.err
}

func floatPtr(v float64) *float64 { return &v }

func auctionAt(timestamp uint64) *auctioneer.AuctionContext {
	return &auctioneer.AuctionContext{
		Slot: 100,
		Attributes: &auctioneer.PayloadAttributes{
			ID:        auctioneer.PayloadID{1, 2, 3, 4, 5, 6, 7, 8},
			Timestamp: timestamp,
		},
	}
}

func TestComputeValue(t *testing.T) {
	tests := []struct {
		name     string
		percent  *float64
		subsidy  string
		revenue  *uint256.Int
		expected *uint256.Int
	}{
		{"full revenue", nil, "", uint256.NewInt(1000), uint256.NewInt(1000)},
		{"half revenue", floatPtr(0.5), "", uint256.NewInt(1000), uint256.NewInt(500)},
		{"zero percent", floatPtr(0), "", uint256.NewInt(1000), uint256.NewInt(0)},
		{"clamped above one", floatPtr(1.5), "", uint256.NewInt(1000), uint256.NewInt(1000)},
		{"clamped below zero", floatPtr(-0.3), "", uint256.NewInt(1000), uint256.NewInt(0)},
		{"with subsidy", floatPtr(0.9), "250", uint256.NewInt(1000), uint256.NewInt(1150)},
		{"nil revenue", nil, "42", nil, uint256.NewInt(42)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewDeadlineBidder(&Config{
				BidPercent: tc.percent,
				SubsidyWei: tc.subsidy,
			}, nopLogger(t))

			assert.Equal(t, tc.expected, b.computeValue(tc.revenue))
		})
	}
}

func TestDeadlineBidderTiming(t *testing.T) {
	// Target slot starts 1-2s from now (whole-second timestamp); an 800ms
	// deadline means the bid goes out 200ms-1.2s from now.
	b := NewDeadlineBidder(&Config{BiddingDeadlineMs: 800}, nopLogger(t))

	auction := auctionAt(uint64(time.Now().Add(time.Second).Unix() + 1))
	revenue := &fixedRevenue{fees: uint256.NewInt(1000)}

	started := time.Now()
	dispatch := b.Run(context.Background(), auction, revenue)
	elapsed := time.Since(started)

	require.NotNil(t, dispatch)
	assert.Equal(t, auction.Attributes.ID, dispatch.PayloadID)
	assert.Equal(t, uint256.NewInt(1000), dispatch.Value)
	assert.False(t, dispatch.KeepAlive)

	// time.Unix truncates to whole seconds, so the target lands 1-2s out
	// and the wake-up 800ms before it: the bid must be neither immediate
	// nor later than slot start.
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 1300*time.Millisecond)
}

func TestDeadlineBidderPastTargetFiresImmediately(t *testing.T) {
	b := NewDeadlineBidder(&Config{BiddingDeadlineMs: 500}, nopLogger(t))

	auction := auctionAt(uint64(time.Now().Add(-time.Minute).Unix()))
	revenue := &fixedRevenue{fees: uint256.NewInt(7)}

	started := time.Now()
	dispatch := b.Run(context.Background(), auction, revenue)

	require.NotNil(t, dispatch)
	assert.Less(t, time.Since(started), 100*time.Millisecond)
}

func TestDeadlineBidderCancellation(t *testing.T) {
	b := NewDeadlineBidder(&Config{BiddingDeadlineMs: 0}, nopLogger(t))

	auction := auctionAt(uint64(time.Now().Add(time.Hour).Unix()))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan *auctioneer.Dispatch, 1)

	go func() {
		done <- b.Run(ctx, auction, &fixedRevenue{fees: uint256.NewInt(1)})
	}()

	cancel()

	select {
	case dispatch := <-done:
		assert.Nil(t, dispatch, "a cancelled bidder must not dispatch")
	case <-time.After(time.Second):
		t.Fatal("bidder did not observe cancellation")
	}
}

func TestDeadlineBidderSkipsOnRevenueError(t *testing.T) {
	b := NewDeadlineBidder(&Config{BiddingDeadlineMs: 0}, nopLogger(t))

	auction := auctionAt(uint64(time.Now().Unix()))

	dispatch := b.Run(context.Background(), auction, &fixedRevenue{err: auctioneer.ErrMissingPayload})
	assert.Nil(t, dispatch)
}

func TestBidderServiceForwardsDispatches(t *testing.T) {
	auctions := make(chan *auctioneer.AuctionContext, 1)
	dispatches := make(chan auctioneer.Dispatch, 1)

	svc := NewService(
		NewDeadlineBidder(&Config{BiddingDeadlineMs: 0}, nopLogger(t)),
		&fixedRevenue{fees: uint256.NewInt(55)},
		nopLogger(t),
	)

	svc.Start(context.Background(), auctions, dispatches)
	defer svc.Stop()

	auction := auctionAt(uint64(time.Now().Unix()))
	auction.Slot = phase0.Slot(123)
	auctions <- auction

	select {
	case dispatch := <-dispatches:
		assert.Equal(t, auction.Attributes.ID, dispatch.PayloadID)
		assert.Equal(t, uint256.NewInt(55), dispatch.Value)
	case <-time.After(time.Second):
		t.Fatal("no dispatch received")
	}
}
