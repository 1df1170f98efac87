// Package bidder implements the bidding strategies that decide when, and
// at what value, an open auction's payload is submitted to relays. The
// bidder runs as its own task: it receives new auctions from the
// auctioneer, queries it for build revenue, and hands back dispatch
// instructions.
package bidder

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/auctioneer"
)

// RevenueProvider answers what a running build currently earns the
// builder. Implemented by the auctioneer, backed by the payload builder.
type RevenueProvider interface {
	CurrentRevenue(ctx context.Context, id auctioneer.PayloadID) (*uint256.Int, error)
}

// Strategy decides when and at what value to bid for one auction. Run
// blocks until the strategy wants to submit (returning the dispatch) or
// decides not to bid at all (returning nil).
type Strategy interface {
	Run(ctx context.Context, auction *auctioneer.AuctionContext, revenue RevenueProvider) *auctioneer.Dispatch
}

// Service runs one strategy task per incoming auction and forwards their
// dispatches to the auctioneer.
type Service struct {
	strategy Strategy
	revenue  RevenueProvider

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    logrus.FieldLogger
}

// NewService creates the bidder service.
func NewService(strategy Strategy, revenue RevenueProvider, log logrus.FieldLogger) *Service {
	return &Service{
		strategy: strategy,
		revenue:  revenue,
		log:      log.WithField("component", "bidder"),
	}
}

// Start consumes auctions and emits dispatches until the context is
// cancelled.
func (s *Service) Start(
	ctx context.Context,
	auctions <-chan *auctioneer.AuctionContext,
	dispatches chan<- auctioneer.Dispatch,
) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)

	go s.run(auctions, dispatches)
}

// Stop cancels every in-flight strategy task and waits for them.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()
}

func (s *Service) run(auctions <-chan *auctioneer.AuctionContext, dispatches chan<- auctioneer.Dispatch) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case auction := <-auctions:
			if auction == nil {
				continue
			}

			s.startBid(auction, dispatches)
		}
	}
}

// startBid runs the strategy for one auction on its own task.
func (s *Service) startBid(auction *auctioneer.AuctionContext, dispatches chan<- auctioneer.Dispatch) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		dispatch := s.strategy.Run(s.ctx, auction, s.revenue)
		if dispatch == nil {
			return
		}

		select {
		case dispatches <- *dispatch:
		case <-s.ctx.Done():
		}
	}()
}
