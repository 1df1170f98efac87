package bidder

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/auctioneer"
)

// Config tunes the deadline bidder.
type Config struct {
	// BiddingDeadlineMs is how long before the target slot's start the bid
	// is dispatched, in milliseconds.
	BiddingDeadlineMs uint64 `yaml:"bidding_deadline_ms"`

	// BidPercent is the fraction of the build's revenue to bid, clamped to
	// [0, 1]. Zero means bid nothing of the revenue; missing defaults to 1.
	BidPercent *float64 `yaml:"bid_percent"`

	// SubsidyWei is added to every bid out of the builder's own pocket.
	SubsidyWei string `yaml:"subsidy_wei"`
}

// DeadlineBidder submits the best payload once, at the configured deadline
// before the start of the build's target slot. For example, with a 1s
// deadline the bid goes out one second before the slot begins.
type DeadlineBidder struct {
	deadline   time.Duration
	bidPercent float64
	subsidyWei *uint256.Int
	log        logrus.FieldLogger
}

// NewDeadlineBidder creates a deadline bidder from its config.
func NewDeadlineBidder(cfg *Config, log logrus.FieldLogger) *DeadlineBidder {
	bidPercent := 1.0
	if cfg.BidPercent != nil {
		bidPercent = *cfg.BidPercent
	}

	if bidPercent < 0 {
		bidPercent = 0
	} else if bidPercent > 1 {
		bidPercent = 1
	}

	subsidy := uint256.NewInt(0)

	if cfg.SubsidyWei != "" {
		parsed, err := uint256.FromDecimal(cfg.SubsidyWei)
		if err != nil {
			log.WithError(err).Warn("Invalid subsidy_wei, bidding without subsidy")
		} else {
			subsidy = parsed
		}
	}

	return &DeadlineBidder{
		deadline:   time.Duration(cfg.BiddingDeadlineMs) * time.Millisecond,
		bidPercent: bidPercent,
		subsidyWei: subsidy,
		log:        log.WithField("component", "deadline-bidder"),
	}
}

// computeValue prices the bid: revenue scaled by the configured percent,
// plus the subsidy.
func (b *DeadlineBidder) computeValue(currentRevenue *uint256.Int) *uint256.Int {
	if currentRevenue == nil {
		currentRevenue = uint256.NewInt(0)
	}

	percent := uint256.NewInt(uint64(b.bidPercent * 100))

	value := new(uint256.Int).Mul(currentRevenue, percent)
	value.Div(value, uint256.NewInt(100))
	value.Add(value, b.subsidyWei)

	return value
}

// durationUntil returns how long until the given unix timestamp, never
// negative.
func durationUntil(timestamp uint64) time.Duration {
	d := time.Until(time.Unix(int64(timestamp), 0))
	if d < 0 {
		return 0
	}

	return d
}

// Run sleeps until the deadline before the auction's target slot, then
// dispatches a single bid priced off the build's revenue at that moment.
// Cancellation drops the bid without dispatching.
func (b *DeadlineBidder) Run(
	ctx context.Context,
	auction *auctioneer.AuctionContext,
	revenue RevenueProvider,
) *auctioneer.Dispatch {
	target := durationUntil(auction.Attributes.Timestamp)

	wait := target - b.deadline
	if wait < 0 {
		wait = 0
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	currentRevenue, err := revenue.CurrentRevenue(ctx, auction.Attributes.ID)
	if err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"slot":       auction.Slot,
			"payload_id": auction.Attributes.ID,
		}).Warn("Could not query build revenue, skipping bid")

		return nil
	}

	return &auctioneer.Dispatch{
		PayloadID: auction.Attributes.ID,
		Value:     b.computeValue(currentRevenue),
		KeepAlive: false,
	}
}
