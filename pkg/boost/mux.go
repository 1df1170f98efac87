// Package boost implements the relay multiplexer: the proposer-facing
// Builder API service that fans every request out to a set of relays,
// selects the best bid, and routes the later open_bid back to the relays
// holding the winning payload.
package boost

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/metrics"
	"github.com/ethpandaops/bidoor/pkg/relay"
	"github.com/ethpandaops/bidoor/pkg/signer"
	"github.com/ethpandaops/bidoor/pkg/types"
)

// proposalToleranceDelay is how many slots past its own an outstanding bid
// survives before the slot sweep drops it.
const proposalToleranceDelay = phase0.Slot(1)

// RelayMux fans proposer requests out to all configured relays and tracks
// outstanding bids across the header/payload two-phase protocol.
type RelayMux struct {
	relays                []*relay.Client
	forkVersion           phase0.Version
	genesisValidatorsRoot phase0.Root
	fetchTimeout          time.Duration
	log                   logrus.FieldLogger

	mu              sync.Mutex
	outstandingBids map[types.AuctionRequest][]int
	latestPubkey    phase0.BLSPubKey
}

// NewRelayMux creates a multiplexer over the given relays. forkVersion and
// genesisValidatorsRoot pin the builder signing domain used to verify bid
// signatures.
func NewRelayMux(
	relays []*relay.Client,
	forkVersion phase0.Version,
	genesisValidatorsRoot phase0.Root,
	fetchTimeout time.Duration,
	log logrus.FieldLogger,
) *RelayMux {
	if fetchTimeout <= 0 {
		fetchTimeout = relay.DefaultFetchHeaderTimeout
	}

	return &RelayMux{
		relays:                relays,
		forkVersion:           forkVersion,
		genesisValidatorsRoot: genesisValidatorsRoot,
		fetchTimeout:          fetchTimeout,
		log:                   log.WithField("component", "relay-mux"),
		outstandingBids:       make(map[types.AuctionRequest][]int),
	}
}

// OnSlot sweeps outstanding bids that are now more than one slot old.
func (m *RelayMux) OnSlot(slot phase0.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for request := range m.outstandingBids {
		if request.Slot+proposalToleranceDelay < slot {
			delete(m.outstandingBids, request)
		}
	}
}

// RegisterValidators fans the batch out to every relay concurrently.
// Success requires at least one relay to accept; individual relay failures
// are logged, not propagated.
func (m *RelayMux) RegisterValidators(ctx context.Context, batch []*types.SignedValidatorRegistration) error {
	results := make(chan error, len(m.relays))

	for _, client := range m.relays {
		go func(client *relay.Client) {
			metrics.APIRequests.WithLabelValues("register_validators", client.Endpoint.String()).Inc()

			err := client.RegisterValidators(ctx, batch)
			if err != nil {
				m.log.WithError(err).WithField("relay", client.Endpoint.String()).
					Warn("Failed to register validators with relay")
			}

			results <- err
		}(client)
	}

	failures := 0
	for range m.relays {
		if err := <-results; err != nil {
			failures++
		}
	}

	if len(m.relays) == 0 || failures == len(m.relays) {
		return ErrCouldNotRegister
	}

	return nil
}

// validateBid checks that a bid carries the relay's configured public key
// and a valid signature over the bid message under the builder domain.
func (m *RelayMux) validateBid(bid *types.SignedBuilderBid, relayPubkey phase0.BLSPubKey) error {
	if bid == nil || bid.Bid == nil {
		return errors.New("empty bid")
	}

	if bid.Bid.Pubkey != relayPubkey {
		return &BidPublicKeyMismatchError{Bid: bid.Bid.Pubkey, Relay: relayPubkey}
	}

	domain := signer.ComputeDomain(signer.DomainApplicationBuilder, m.forkVersion, m.genesisValidatorsRoot)

	valid, err := signer.VerifySigningRoot(bid.Bid.Pubkey, bid.Bid.HashTreeRoot(), domain, bid.Signature)
	if err != nil {
		return err
	}

	if !valid {
		return errors.New("invalid bid signature")
	}

	return nil
}

type fetchedBid struct {
	bid        *types.SignedBuilderBid
	relayIndex int
}

// FetchBestBid queries every relay concurrently with a per-relay timeout,
// discards invalid bids, and returns the highest-value survivor. Ties on
// value are broken by picking one index at random; every relay whose bid
// shares the winner's block hash is retained in the outstanding set so a
// later open_bid can reach any of them.
func (m *RelayMux) FetchBestBid(ctx context.Context, request *types.AuctionRequest) (*types.SignedBuilderBid, error) {
	results := make(chan fetchedBid, len(m.relays))

	for i, client := range m.relays {
		go func(i int, client *relay.Client) {
			relayLabel := client.Endpoint.String()
			metrics.APIRequests.WithLabelValues("fetch_header", relayLabel).Inc()

			started := time.Now()
			bid, err := client.FetchHeader(ctx, request.Slot, request.ParentHash, request.ProposerPubkey, m.fetchTimeout)
			metrics.APIRequestDuration.WithLabelValues("fetch_header", relayLabel).Observe(time.Since(started).Seconds())

			switch {
			case errors.Is(err, context.DeadlineExceeded):
				metrics.APITimeouts.WithLabelValues("fetch_header", relayLabel).Inc()
				m.log.WithField("relay", relayLabel).Warnf(
					"Relay did not provide a bid within %s", m.fetchTimeout)

				results <- fetchedBid{relayIndex: i}
			case err != nil:
				m.log.WithError(err).WithField("relay", relayLabel).Warn("Failed to get a bid from relay")

				results <- fetchedBid{relayIndex: i}
			default:
				if err := m.validateBid(bid, client.Endpoint.PublicKey); err != nil {
					metrics.AuctionInvalidBids.WithLabelValues(invalidBidReason(err), relayLabel).Inc()
					m.log.WithError(err).WithField("relay", relayLabel).Warn("Invalid signed builder bid")

					results <- fetchedBid{relayIndex: i}
					return
				}

				results <- fetchedBid{bid: bid, relayIndex: i}
			}
		}(i, client)
	}

	bids := make([]fetchedBid, 0, len(m.relays))
	for range m.relays {
		result := <-results
		if result.bid != nil {
			bids = append(bids, result)
		}
	}

	indexed := make([]IndexedValue, len(bids))
	for i, b := range bids {
		indexed[i] = IndexedValue{Value: b.bid.Bid.Value, Index: i}
	}

	bestIndices := SelectBestBids(indexed)
	if len(bestIndices) == 0 {
		metrics.AuctionsEmpty.Inc()
		return nil, ErrNoBids
	}

	// Break value ties randomly, then retain every tied bid carrying the
	// same block hash as the chosen one so open_bid has redundant routes.
	rand.Shuffle(len(bestIndices), func(i, j int) {
		bestIndices[i], bestIndices[j] = bestIndices[j], bestIndices[i]
	})

	best := bids[bestIndices[0]]
	bestBlockHash := best.bid.Bid.Header.BlockHash

	relayIndices := []int{best.relayIndex}

	for _, idx := range bestIndices[1:] {
		if bids[idx].bid.Bid.Header.BlockHash == bestBlockHash {
			relayIndices = append(relayIndices, bids[idx].relayIndex)
		}
	}

	m.mu.Lock()
	// Assume the next request to open a bid corresponds to this request.
	m.latestPubkey = request.ProposerPubkey
	m.outstandingBids[*request] = relayIndices
	m.mu.Unlock()

	metrics.AuctionsWon.Inc()
	m.log.WithFields(logrus.Fields{
		"slot":       request.Slot,
		"value":      best.bid.Bid.Value,
		"block_hash": bestBlockHash,
		"relays":     len(relayIndices),
	}).Info("Selected best bid")

	return best.bid, nil
}

// OpenBid reconstructs the auction key from the signed blinded block plus
// the last proposer pubkey seen by FetchBestBid, fans open_bid out to the
// relays tracked for that key, and returns the first payload whose block
// hash matches the blinded block's commitment.
func (m *RelayMux) OpenBid(ctx context.Context, signedBlock *types.SignedBlindedBeaconBlock) (*types.ExecutionPayload, error) {
	m.mu.Lock()
	key := types.AuctionRequest{
		Slot:           signedBlock.Slot(),
		ParentHash:     signedBlock.ParentHash(),
		ProposerPubkey: m.latestPubkey,
	}
	relayIndices, ok := m.outstandingBids[key]
	delete(m.outstandingBids, key)
	m.mu.Unlock()

	if !ok {
		return nil, ErrMissingOpenBid
	}

	type openResult struct {
		payload *types.ExecutionPayload
		client  *relay.Client
		err     error
	}

	results := make(chan openResult, len(relayIndices))

	for _, idx := range relayIndices {
		go func(client *relay.Client) {
			metrics.APIRequests.WithLabelValues("open_bid", client.Endpoint.String()).Inc()

			payload, err := client.OpenBid(ctx, signedBlock)
			results <- openResult{payload: payload, client: client, err: err}
		}(m.relays[idx])
	}

	expectedBlockHash := signedBlock.BlockHash()

	var payload *types.ExecutionPayload

	for range relayIndices {
		result := <-results

		switch {
		case result.err != nil:
			m.log.WithError(result.err).WithField("relay", result.client.Endpoint.String()).
				Warn("Error opening bid from relay")
		case result.payload.BlockHash != expectedBlockHash:
			m.log.WithFields(logrus.Fields{
				"relay":         result.client.Endpoint.String(),
				"block_hash":    result.payload.BlockHash,
				"expected_hash": expectedBlockHash,
			}).Warn("Relay returned payload with mismatched block hash")
		case payload == nil:
			payload = result.payload
		}
	}

	if payload == nil {
		return nil, &MissingPayloadError{ExpectedBlockHash: expectedBlockHash}
	}

	return payload, nil
}

func invalidBidReason(err error) string {
	var mismatch *BidPublicKeyMismatchError
	if errors.As(err, &mismatch) {
		return "public_key_mismatch"
	}

	return "invalid_signature"
}
