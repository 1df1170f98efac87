package auctioneer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/metrics"
	"github.com/ethpandaops/bidoor/pkg/relay"
	"github.com/ethpandaops/bidoor/pkg/signer"
	"github.com/ethpandaops/bidoor/pkg/types"
)

// AuctionContext binds one open auction: the slot, the build attributes
// (with the proposer's preferences attached), the proposer itself, and the
// relays the bid must be submitted to.
type AuctionContext struct {
	Slot       phase0.Slot
	Attributes *PayloadAttributes
	Proposer   types.Proposer
	Relays     RelaySet
}

// Dispatch is the bidder's instruction to submit the current payload of a
// build as a bid.
type Dispatch struct {
	PayloadID PayloadID
	Value     *uint256.Int
	KeepAlive bool
}

// Service is the builder-side auctioneer: it folds relay proposer
// schedules into the auction schedule each epoch, opens an auction per
// matched proposer when payload attributes arrive, and signs and submits
// bids when the bidder dispatches them.
type Service struct {
	relays                []*relay.Client
	builder               PayloadBuilder
	blsSigner             *signer.BLSSigner
	forkVersion           phase0.Version
	genesisValidatorsRoot phase0.Root
	genesisTime           uint64
	secondsPerSlot        uint64
	slotsPerEpoch         uint64
	cancellations         bool

	schedule     *AuctionSchedule
	auctionsMu   sync.Mutex
	openAuctions map[PayloadID]*AuctionContext

	newAuctions chan<- *AuctionContext
	currentSlot atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    logrus.FieldLogger
}

// NewService creates the auctioneer. Auctions it opens are handed to the
// bidder over newAuctions.
func NewService(
	relays []*relay.Client,
	builder PayloadBuilder,
	blsSigner *signer.BLSSigner,
	forkVersion phase0.Version,
	genesisValidatorsRoot phase0.Root,
	genesisTime, secondsPerSlot, slotsPerEpoch uint64,
	newAuctions chan<- *AuctionContext,
	log logrus.FieldLogger,
) *Service {
	return &Service{
		relays:                relays,
		builder:               builder,
		blsSigner:             blsSigner,
		forkVersion:           forkVersion,
		genesisValidatorsRoot: genesisValidatorsRoot,
		genesisTime:           genesisTime,
		secondsPerSlot:        secondsPerSlot,
		slotsPerEpoch:         slotsPerEpoch,
		schedule:              NewAuctionSchedule(),
		openAuctions:          make(map[PayloadID]*AuctionContext),
		newAuctions:           newAuctions,
		log:                   log.WithField("component", "auctioneer"),
	}
}

// SetCancellations toggles the Relay API cancellations flag on bid
// submissions.
func (s *Service) SetCancellations(enabled bool) {
	s.cancellations = enabled
}

// Start launches the service's event loop consuming epoch ticks, payload
// attributes, and bidder dispatches from the given channels.
func (s *Service) Start(
	ctx context.Context,
	epochs <-chan phase0.Epoch,
	attributes <-chan *PayloadAttributes,
	dispatches <-chan Dispatch,
) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if len(s.relays) == 0 {
		s.log.Warn("No valid relays configured; every submission will be dropped")
	} else {
		s.log.WithField("relays", len(s.relays)).Info("Auctioneer configured")
	}

	s.wg.Add(1)

	go s.run(epochs, attributes, dispatches)
}

// Stop cancels the event loop and waits for it to drain.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()
}

func (s *Service) run(
	epochs <-chan phase0.Epoch,
	attributes <-chan *PayloadAttributes,
	dispatches <-chan Dispatch,
) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case epoch := <-epochs:
			s.OnEpoch(s.ctx, epoch)

		case attrs := <-attributes:
			s.OnPayloadAttributes(s.ctx, attrs)

		case dispatch := <-dispatches:
			s.OnDispatch(s.ctx, dispatch)
		}
	}
}

// OnEpoch pulls proposer schedules from every relay, folds them into the
// auction schedule, and drops schedule entries and open auctions for slots
// before the epoch's first slot.
func (s *Service) OnEpoch(ctx context.Context, epoch phase0.Epoch) {
	for _, client := range s.relays {
		metrics.APIRequests.WithLabelValues("get_proposal_schedule", client.Endpoint.String()).Inc()

		entries, err := client.GetProposalSchedule(ctx)
		if err != nil {
			s.log.WithError(err).WithField("relay", client.Endpoint.String()).
				Warn("Error fetching proposer schedule from relay")

			continue
		}

		slots := s.schedule.Process(client, entries)
		s.log.WithFields(logrus.Fields{
			"epoch": epoch,
			"slots": len(slots),
			"relay": client.Endpoint.String(),
		}).Info("Processed proposer schedule")
	}

	retainSlot := phase0.Slot(uint64(epoch) * s.slotsPerEpoch)
	s.schedule.Clear(retainSlot)

	s.auctionsMu.Lock()
	for id, auction := range s.openAuctions {
		if auction.Slot < retainSlot {
			delete(s.openAuctions, id)
		}
	}
	s.auctionsMu.Unlock()
}

// OnSlot records the current slot; submissions for auctions whose slot has
// already passed are dropped rather than sent late.
func (s *Service) OnSlot(slot phase0.Slot) {
	s.currentSlot.Store(uint64(slot))
}

// slotForTimestamp converts a payload timestamp to its slot. The second
// return is false for timestamps before genesis.
func (s *Service) slotForTimestamp(timestamp uint64) (phase0.Slot, bool) {
	if timestamp < s.genesisTime || s.secondsPerSlot == 0 {
		return 0, false
	}

	return phase0.Slot((timestamp - s.genesisTime) / s.secondsPerSlot), true
}

// OnPayloadAttributes matches a payload-attributes event against the
// auction schedule and opens one auction per scheduled proposer for the
// slot. The slot's schedule entry is consumed so a re-delivered event does
// not spawn duplicate auctions.
func (s *Service) OnPayloadAttributes(ctx context.Context, attributes *PayloadAttributes) {
	slot, ok := s.slotForTimestamp(attributes.Timestamp)
	if !ok {
		s.log.WithField("timestamp", attributes.Timestamp).
			Warn("Payload attributes timestamp predates genesis, dropping")

		return
	}

	proposals := s.schedule.TakeMatchingProposals(slot)
	if len(proposals) == 0 {
		return
	}

	for proposer, relays := range proposals {
		auction := s.openAuction(ctx, slot, attributes, proposer, relays)
		if auction == nil {
			continue
		}

		select {
		case s.newAuctions <- auction:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) openAuction(
	ctx context.Context,
	slot phase0.Slot,
	attributes *PayloadAttributes,
	proposer types.Proposer,
	relays RelaySet,
) *AuctionContext {
	proposal := &ProposalAttributes{
		ProposerGasLimit:     proposer.GasLimit,
		ProposerFeeRecipient: proposer.FeeRecipient,
	}
	attrs := attributes.WithProposal(proposal)

	payloadID, err := s.builder.NewPayload(ctx, attrs)
	if err != nil {
		s.log.WithError(err).WithField("slot", slot).
			Warn("Builder could not start build for auction")

		return nil
	}

	if payloadID != attrs.ID {
		s.log.WithFields(logrus.Fields{
			"payload_id":            payloadID,
			"attributes_payload_id": attrs.ID,
		}).Error("Mismatch between computed payload id and the one returned by the payload builder")
	}

	auction := &AuctionContext{
		Slot:       slot,
		Attributes: attrs,
		Proposer:   proposer,
		Relays:     relays,
	}

	s.auctionsMu.Lock()
	if existing, ok := s.openAuctions[attrs.ID]; ok {
		auction = existing
	} else {
		s.openAuctions[attrs.ID] = auction
	}
	s.auctionsMu.Unlock()

	s.log.WithFields(logrus.Fields{
		"slot":       slot,
		"payload_id": attrs.ID,
		"relays":     len(relays),
	}).Info("Opened auction")

	return auction
}

// Auction returns the open auction for a payload id, if any.
func (s *Service) Auction(id PayloadID) *AuctionContext {
	s.auctionsMu.Lock()
	defer s.auctionsMu.Unlock()

	return s.openAuctions[id]
}

// CurrentRevenue answers a bidder's revenue query with the builder's
// current best fees for the build.
func (s *Service) CurrentRevenue(ctx context.Context, id PayloadID) (*uint256.Int, error) {
	payload, err := s.builder.BestPayload(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload.Fees == nil {
		return uint256.NewInt(0), nil
	}

	return payload.Fees, nil
}

// OnDispatch resolves the payload behind a bidder dispatch and submits it
// to the auction's relays.
func (s *Service) OnDispatch(ctx context.Context, dispatch Dispatch) {
	auction := s.Auction(dispatch.PayloadID)
	if auction == nil {
		s.log.WithField("payload_id", dispatch.PayloadID).
			Warn("Dispatch for unknown auction, dropping")

		return
	}

	payload, err := s.builder.Resolve(ctx, dispatch.PayloadID)
	if err != nil {
		s.log.WithError(err).WithField("payload_id", dispatch.PayloadID).
			Warn("No payload could be retrieved from payload builder for bid")

		return
	}

	s.submitPayload(ctx, payload, auction)
}

// submitPayload signs a bid submission for the payload and sends it to
// every relay in the auction's set concurrently. A task observing a slot
// past its auction's drops the submit instead.
func (s *Service) submitPayload(ctx context.Context, payload *BuiltPayload, auction *AuctionContext) {
	if current := s.currentSlot.Load(); current > uint64(auction.Slot) {
		s.log.WithFields(logrus.Fields{
			"slot":         auction.Slot,
			"current_slot": current,
		}).Warn("Auction slot has passed, dropping submission")

		return
	}

	submission, err := s.prepareSubmission(payload, auction)
	if err != nil {
		s.log.WithError(err).WithField("slot", auction.Slot).
			Warn("Could not prepare submission")

		return
	}

	s.log.WithFields(logrus.Fields{
		"slot":         auction.Slot,
		"block_number": payload.Payload.BlockNumber,
		"block_hash":   payload.Payload.BlockHash,
		"value":        submission.Message.Value,
		"relays":       len(auction.Relays),
	}).Info("Submitting payload")

	var wg sync.WaitGroup

	for _, client := range auction.Relays.List() {
		wg.Add(1)

		go func(client *relay.Client) {
			defer wg.Done()

			relayLabel := client.Endpoint.String()
			metrics.APIRequests.WithLabelValues("submit_bid", relayLabel).Inc()

			if err := client.SubmitBid(ctx, submission, s.cancellations); err != nil {
				metrics.BidSubmissions.WithLabelValues(relayLabel, "error").Inc()
				s.log.WithError(err).WithFields(logrus.Fields{
					"relay": relayLabel,
					"slot":  auction.Slot,
				}).Warn("Could not submit payload to relay")

				return
			}

			metrics.BidSubmissions.WithLabelValues(relayLabel, "ok").Inc()
		}(client)
	}

	wg.Wait()
}

// prepareSubmission builds and signs the SignedBidSubmission for a payload:
// the bid trace under the builder domain, the payload itself, and (Deneb+)
// its blobs bundle.
func (s *Service) prepareSubmission(payload *BuiltPayload, auction *AuctionContext) (*types.SignedBidSubmission, error) {
	trace := &types.BidTrace{
		Slot:                 auction.Slot,
		ParentHash:           auction.Attributes.ParentHash,
		BlockHash:            payload.Payload.BlockHash,
		BuilderPubkey:        s.blsSigner.PublicKey(),
		ProposerPubkey:       auction.Proposer.PublicKey,
		ProposerFeeRecipient: auction.Proposer.FeeRecipient,
		GasLimit:             payload.Payload.GasLimit,
		GasUsed:              payload.Payload.GasUsed,
		Value:                payload.Fees,
	}

	domain := signer.ComputeDomain(signer.DomainApplicationBuilder, s.forkVersion, s.genesisValidatorsRoot)

	sig, err := s.blsSigner.SignWithDomain(trace.HashTreeRoot(), domain)
	if err != nil {
		return nil, err
	}

	submission := &types.SignedBidSubmission{
		Message:          trace,
		ExecutionPayload: payload.Payload,
		Signature:        sig,
	}

	if payload.Payload.Version == types.VersionDeneb {
		submission.BlobsBundle = payload.BlobsBundle
	}

	return submission, nil
}
