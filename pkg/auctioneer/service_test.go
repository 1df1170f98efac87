package auctioneer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bidoor/pkg/relay"
	"github.com/ethpandaops/bidoor/pkg/signer"
	"github.com/ethpandaops/bidoor/pkg/types"
)

const (
	testGenesisTime    = 1600000000
	testSecondsPerSlot = 12
	testSlotsPerEpoch  = 32
)

// fakeBuilder is an in-memory PayloadBuilder: every build immediately has
// a payload worth the configured fees.
type fakeBuilder struct {
	mu     sync.Mutex
	builds map[PayloadID]*BuiltPayload
	fees   *uint256.Int
}

func newFakeBuilder(fees *uint256.Int) *fakeBuilder {
	return &fakeBuilder{builds: make(map[PayloadID]*BuiltPayload), fees: fees}
}

func (f *fakeBuilder) NewPayload(_ context.Context, attributes *PayloadAttributes) (PayloadID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload := &types.ExecutionPayload{
		Version:       types.VersionCapella,
		ParentHash:    attributes.ParentHash,
		GasLimit:      30_000_000,
		GasUsed:       21_000,
		BaseFeePerGas: uint256.NewInt(7),
		Withdrawals:   []types.Withdrawal{},
	}
	payload.BlockHash[0] = 0xcd

	f.builds[attributes.ID] = &BuiltPayload{
		ID:      attributes.ID,
		Payload: payload,
		Fees:    f.fees,
	}

	return attributes.ID, nil
}

func (f *fakeBuilder) BestPayload(_ context.Context, id PayloadID) (*BuiltPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload, ok := f.builds[id]
	if !ok {
		return nil, ErrMissingPayload
	}

	return payload, nil
}

func (f *fakeBuilder) Resolve(ctx context.Context, id PayloadID) (*BuiltPayload, error) {
	return f.BestPayload(ctx, id)
}

func testSigner(t *testing.T) *signer.BLSSigner {
	t.Helper()

	s, err := signer.NewBLSSigner("0x" + "2c072a5e3a785eea5ef53f1a5ab91c7b8b2d4f5e6a7c8d9e1a2b3c4d5e6f7001")
	require.NoError(t, err)

	return s
}

func newTestService(t *testing.T, builder PayloadBuilder, relays []*relay.Client) (*Service, chan *AuctionContext) {
	t.Helper()

	newAuctions := make(chan *AuctionContext, 8)

	svc := NewService(
		relays,
		builder,
		testSigner(t),
		phase0.Version{},
		phase0.Root{},
		testGenesisTime, testSecondsPerSlot, testSlotsPerEpoch,
		newAuctions,
		nopLogger(t),
	)

	return svc, newAuctions
}

func slotTimestamp(slot phase0.Slot) uint64 {
	return testGenesisTime + uint64(slot)*testSecondsPerSlot
}

func attributesForSlot(slot phase0.Slot) *PayloadAttributes {
	var parentHash phase0.Hash32

	parentHash[0] = 0x01

	return NewPayloadAttributes(
		parentHash,
		slotTimestamp(slot),
		[32]byte{0x02},
		bellatrix.ExecutionAddress{0x03},
		[]types.Withdrawal{},
		nil,
	)
}

func TestPayloadAttributesOpensMatchingAuction(t *testing.T) {
	relayA := testClient(t, 0xAA)
	builder := newFakeBuilder(uint256.NewInt(1000))
	svc, newAuctions := newTestService(t, builder, []*relay.Client{relayA})

	const slot = phase0.Slot(50)

	gasLimit := uint64(30_000_000)
	feeByte := byte(0x42)

	svc.schedule.Process(relayA, []*types.ProposerScheduleEntry{entry(slot, 0x01, feeByte)})

	attrs := attributesForSlot(slot)
	svc.OnPayloadAttributes(context.Background(), attrs)

	var auction *AuctionContext
	select {
	case auction = <-newAuctions:
	default:
		t.Fatal("no auction opened")
	}

	require.Equal(t, slot, auction.Slot)
	assert.Equal(t, phase0.BLSPubKey{0x01}, auction.Proposer.PublicKey)
	require.NotNil(t, auction.Attributes.Proposal)
	assert.Equal(t, gasLimit, auction.Attributes.Proposal.ProposerGasLimit)
	assert.Equal(t, bellatrix.ExecutionAddress{feeByte}, auction.Attributes.Proposal.ProposerFeeRecipient)

	// The auction's payload id is the base id with the proposer mixed in.
	expectedID := MixProposalIntoPayloadID(attrs.ID, auction.Attributes.Proposal)
	assert.Equal(t, expectedID, auction.Attributes.ID)
	assert.Same(t, auction, svc.Auction(expectedID))

	// A re-delivered event for the same slot must not duplicate auctions.
	svc.OnPayloadAttributes(context.Background(), attributesForSlot(slot))

	select {
	case extra := <-newAuctions:
		t.Fatalf("unexpected duplicate auction for slot %d", extra.Slot)
	default:
	}
}

func TestPayloadAttributesBeforeGenesisDropped(t *testing.T) {
	svc, newAuctions := newTestService(t, newFakeBuilder(uint256.NewInt(1)), nil)

	attrs := &PayloadAttributes{Timestamp: testGenesisTime - 1}
	svc.OnPayloadAttributes(context.Background(), attrs)

	select {
	case <-newAuctions:
		t.Fatal("pre-genesis attributes must not open auctions")
	default:
	}
}

func TestOnEpochPrunesStaleAuctions(t *testing.T) {
	svc, _ := newTestService(t, newFakeBuilder(uint256.NewInt(1)), nil)

	stale := &AuctionContext{Slot: 10}
	fresh := &AuctionContext{Slot: 40}

	svc.auctionsMu.Lock()
	svc.openAuctions[PayloadID{1}] = stale
	svc.openAuctions[PayloadID{2}] = fresh
	svc.auctionsMu.Unlock()

	// Epoch 1 begins at slot 32; everything before it goes.
	svc.OnEpoch(context.Background(), 1)

	assert.Nil(t, svc.Auction(PayloadID{1}))
	assert.Same(t, fresh, svc.Auction(PayloadID{2}))
}

func TestCurrentRevenue(t *testing.T) {
	builder := newFakeBuilder(uint256.NewInt(777))
	svc, _ := newTestService(t, builder, nil)

	id, err := builder.NewPayload(context.Background(), attributesForSlot(1))
	require.NoError(t, err)

	fees, err := svc.CurrentRevenue(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(777), fees)

	_, err = svc.CurrentRevenue(context.Background(), PayloadID{0xff})
	assert.ErrorIs(t, err, ErrMissingPayload)
}

func TestDispatchSubmitsToAuctionRelays(t *testing.T) {
	var (
		mu          sync.Mutex
		submissions []*types.SignedBidSubmission
	)

	router := http.NewServeMux()
	router.HandleFunc("/relay/v1/builder/blocks", func(w http.ResponseWriter, r *http.Request) {
		var submission types.SignedBidSubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mu.Lock()
		submissions = append(submissions, &submission)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	relayA := relay.NewClient(&relay.Endpoint{URL: u, PublicKey: phase0.BLSPubKey{0xAA}}, nopLogger(t))

	builder := newFakeBuilder(uint256.NewInt(5000))
	svc, newAuctions := newTestService(t, builder, []*relay.Client{relayA})

	const slot = phase0.Slot(50)

	svc.schedule.Process(relayA, []*types.ProposerScheduleEntry{entry(slot, 0x01, 0x02)})
	svc.OnPayloadAttributes(context.Background(), attributesForSlot(slot))

	auction := <-newAuctions

	svc.OnDispatch(context.Background(), Dispatch{
		PayloadID: auction.Attributes.ID,
		Value:     uint256.NewInt(5000),
	})

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, submissions, 1)
	trace := submissions[0].Message
	assert.Equal(t, slot, trace.Slot)
	assert.Equal(t, svc.blsSigner.PublicKey(), trace.BuilderPubkey)
	assert.Equal(t, phase0.BLSPubKey{0x01}, trace.ProposerPubkey)
	assert.Equal(t, uint256.NewInt(5000), trace.Value)
	require.NotNil(t, submissions[0].ExecutionPayload)
	assert.Equal(t, trace.BlockHash, submissions[0].ExecutionPayload.BlockHash)

	// The trace signature must verify under the builder domain.
	domain := signer.ComputeDomain(signer.DomainApplicationBuilder, phase0.Version{}, phase0.Root{})
	ok, err := signer.VerifySigningRoot(trace.BuilderPubkey, trace.HashTreeRoot(), domain, submissions[0].Signature)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDispatchAfterSlotRollIsDropped(t *testing.T) {
	router := http.NewServeMux()

	submitted := false

	router.HandleFunc("/relay/v1/builder/blocks", func(w http.ResponseWriter, _ *http.Request) {
		submitted = true

		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	relayA := relay.NewClient(&relay.Endpoint{URL: u, PublicKey: phase0.BLSPubKey{0xAA}}, nopLogger(t))

	builder := newFakeBuilder(uint256.NewInt(1))
	svc, newAuctions := newTestService(t, builder, []*relay.Client{relayA})

	const slot = phase0.Slot(50)

	svc.schedule.Process(relayA, []*types.ProposerScheduleEntry{entry(slot, 0x01, 0x02)})
	svc.OnPayloadAttributes(context.Background(), attributesForSlot(slot))

	auction := <-newAuctions

	svc.OnSlot(slot + 1)
	svc.OnDispatch(context.Background(), Dispatch{PayloadID: auction.Attributes.ID, Value: uint256.NewInt(1)})

	assert.False(t, submitted, "a submission for a passed slot must be dropped")
}

func TestServiceEventLoop(t *testing.T) {
	relayA := testClient(t, 0xAA)
	builder := newFakeBuilder(uint256.NewInt(9))
	svc, newAuctions := newTestService(t, builder, []*relay.Client{relayA})

	epochs := make(chan phase0.Epoch)
	attributes := make(chan *PayloadAttributes)
	dispatches := make(chan Dispatch)

	svc.Start(context.Background(), epochs, attributes, dispatches)
	defer svc.Stop()

	const slot = phase0.Slot(50)

	svc.schedule.Process(relayA, []*types.ProposerScheduleEntry{entry(slot, 0x01, 0x02)})

	attributes <- attributesForSlot(slot)

	select {
	case auction := <-newAuctions:
		assert.Equal(t, slot, auction.Slot)
	case <-time.After(time.Second):
		t.Fatal("event loop did not open an auction")
	}
}

func TestPayloadIDStringFormat(t *testing.T) {
	id := PayloadID{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33}
	decoded, err := hex.DecodeString(id.String()[2:])
	require.NoError(t, err)
	assert.Equal(t, id[:], decoded)
}
