package boost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bidoor/pkg/relay"
	"github.com/ethpandaops/bidoor/pkg/signer"
	"github.com/ethpandaops/bidoor/pkg/types"
)

func nopLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

// testRelay is a relay stand-in: an httptest server plus the BLS identity
// its bids are signed with.
type testRelay struct {
	client *relay.Client
	signer *signer.BLSSigner
	server *httptest.Server
}

func newTestRelay(t *testing.T, keyIndex byte, handler http.Handler) *testRelay {
	t.Helper()

	keyBytes := make([]byte, 32)
	keyBytes[31] = keyIndex
	blsSigner, err := signer.NewBLSSigner(fmt.Sprintf("0x%x", keyBytes))
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	endpoint := &relay.Endpoint{URL: u, PublicKey: blsSigner.PublicKey()}

	return &testRelay{
		client: relay.NewClient(endpoint, nopLogger(t)),
		signer: blsSigner,
		server: server,
	}
}

func signedBid(t *testing.T, blsSigner *signer.BLSSigner, value uint64, blockHash byte) *types.SignedBuilderBid {
	t.Helper()

	header := &types.ExecutionPayloadHeader{
		Version:       types.VersionCapella,
		BaseFeePerGas: uint256.NewInt(7),
	}
	header.BlockHash[0] = blockHash

	withdrawalsRoot := phase0.Root{}
	header.WithdrawalsRoot = &withdrawalsRoot

	bid := &types.BuilderBid{
		Version: types.VersionCapella,
		Header:  header,
		Value:   uint256.NewInt(value),
		Pubkey:  blsSigner.PublicKey(),
	}

	domain := signer.ComputeDomain(signer.DomainApplicationBuilder, phase0.Version{}, phase0.Root{})

	sig, err := blsSigner.SignWithDomain(bid.HashTreeRoot(), domain)
	require.NoError(t, err)

	return &types.SignedBuilderBid{Bid: bid, Signature: sig}
}

func serveBid(t *testing.T, bid *types.SignedBuilderBid) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.VersionedValue[*types.SignedBuilderBid]{
			Version: types.VersionCapella,
			Data:    bid,
		})
	}
}

func servePayload(t *testing.T, blockHash byte) http.HandlerFunc {
	t.Helper()

	payload := &types.ExecutionPayload{
		Version:       types.VersionCapella,
		BaseFeePerGas: uint256.NewInt(7),
		Withdrawals:   []types.Withdrawal{},
	}
	payload.BlockHash[0] = blockHash

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.VersionedValue[*types.ExecutionPayload]{
			Version: types.VersionCapella,
			Data:    payload,
		})
	}
}

func newTestMux(t *testing.T, timeout time.Duration, relays ...*testRelay) *RelayMux {
	t.Helper()

	clients := make([]*relay.Client, len(relays))
	for i, r := range relays {
		clients[i] = r.client
	}

	return NewRelayMux(clients, phase0.Version{}, phase0.Root{}, timeout, nopLogger(t))
}

func testRequest(slot phase0.Slot) *types.AuctionRequest {
	request := &types.AuctionRequest{Slot: slot}
	request.ParentHash[0] = 0x01
	request.ProposerPubkey[0] = 0xaa

	return request
}

func blindedBlockFor(slot phase0.Slot, bid *types.SignedBuilderBid) *types.SignedBlindedBeaconBlock {
	return &types.SignedBlindedBeaconBlock{
		Message: &types.BlindedBeaconBlock{
			Slot: slot,
			Body: &types.BlindedBeaconBlockBody{
				ExecutionPayloadHeader: bid.Bid.Header,
			},
		},
	}
}

func TestSingleRelayHappyPath(t *testing.T) {
	router := http.NewServeMux()
	relayA := newTestRelay(t, 1, router)

	bid := signedBid(t, relayA.signer, 10, 0xaa)
	router.HandleFunc("/eth/v1/builder/header/", serveBid(t, bid))
	router.HandleFunc("/eth/v1/builder/blinded_blocks", servePayload(t, 0xaa))

	m := newTestMux(t, time.Second, relayA)
	request := testRequest(100)

	got, err := m.FetchBestBid(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, bid.Bid.Value, got.Bid.Value)
	assert.Equal(t, relayA.signer.PublicKey(), got.Bid.Pubkey)

	block := blindedBlockFor(request.Slot, got)
	block.Message.Body.ExecutionPayloadHeader.ParentHash = request.ParentHash

	payload, err := m.OpenBid(context.Background(), block)
	require.NoError(t, err)
	assert.Equal(t, got.Bid.Header.BlockHash, payload.BlockHash)
}

func TestTwoRelayValueTieSameBlock(t *testing.T) {
	routerA := http.NewServeMux()
	routerB := http.NewServeMux()
	relayA := newTestRelay(t, 1, routerA)
	relayB := newTestRelay(t, 2, routerB)

	bidA := signedBid(t, relayA.signer, 10, 0xaa)
	bidB := signedBid(t, relayB.signer, 10, 0xaa)
	routerA.HandleFunc("/eth/v1/builder/header/", serveBid(t, bidA))
	routerB.HandleFunc("/eth/v1/builder/header/", serveBid(t, bidB))
	routerA.HandleFunc("/eth/v1/builder/blinded_blocks", servePayload(t, 0xaa))
	routerB.HandleFunc("/eth/v1/builder/blinded_blocks", servePayload(t, 0xaa))

	m := newTestMux(t, time.Second, relayA, relayB)
	request := testRequest(100)

	got, err := m.FetchBestBid(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(10), got.Bid.Value)

	// Both relays bid the same block hash, so both stay outstanding.
	m.mu.Lock()
	indices := m.outstandingBids[*request]
	m.mu.Unlock()
	assert.ElementsMatch(t, []int{0, 1}, indices)

	block := blindedBlockFor(request.Slot, got)
	block.Message.Body.ExecutionPayloadHeader.ParentHash = request.ParentHash

	payload, err := m.OpenBid(context.Background(), block)
	require.NoError(t, err)
	assert.Equal(t, got.Bid.Header.BlockHash, payload.BlockHash)
}

func TestTwoRelayValueTieDifferentBlocks(t *testing.T) {
	routerA := http.NewServeMux()
	routerB := http.NewServeMux()
	relayA := newTestRelay(t, 1, routerA)
	relayB := newTestRelay(t, 2, routerB)

	bidA := signedBid(t, relayA.signer, 10, 0xaa)
	bidB := signedBid(t, relayB.signer, 10, 0xbb)
	routerA.HandleFunc("/eth/v1/builder/header/", serveBid(t, bidA))
	routerB.HandleFunc("/eth/v1/builder/header/", serveBid(t, bidB))

	// Both relays hold different blocks; each serves its own payload.
	routerA.HandleFunc("/eth/v1/builder/blinded_blocks", servePayload(t, 0xaa))
	routerB.HandleFunc("/eth/v1/builder/blinded_blocks", servePayload(t, 0xbb))

	m := newTestMux(t, time.Second, relayA, relayB)
	request := testRequest(100)

	got, err := m.FetchBestBid(context.Background(), request)
	require.NoError(t, err)

	// Only the randomly chosen winner stays outstanding.
	m.mu.Lock()
	indices := m.outstandingBids[*request]
	m.mu.Unlock()
	require.Len(t, indices, 1)

	block := blindedBlockFor(request.Slot, got)
	block.Message.Body.ExecutionPayloadHeader.ParentHash = request.ParentHash

	payload, err := m.OpenBid(context.Background(), block)
	require.NoError(t, err)
	assert.Equal(t, got.Bid.Header.BlockHash, payload.BlockHash)

	// Opening the same key again must fail: the entry was consumed.
	_, err = m.OpenBid(context.Background(), block)
	assert.ErrorIs(t, err, ErrMissingOpenBid)
}

func TestOpenBidMismatchedPayload(t *testing.T) {
	router := http.NewServeMux()
	relayA := newTestRelay(t, 1, router)

	bid := signedBid(t, relayA.signer, 10, 0xaa)
	router.HandleFunc("/eth/v1/builder/header/", serveBid(t, bid))
	router.HandleFunc("/eth/v1/builder/blinded_blocks", servePayload(t, 0xcc))

	m := newTestMux(t, time.Second, relayA)
	request := testRequest(100)

	got, err := m.FetchBestBid(context.Background(), request)
	require.NoError(t, err)

	block := blindedBlockFor(request.Slot, got)
	block.Message.Body.ExecutionPayloadHeader.ParentHash = request.ParentHash

	_, err = m.OpenBid(context.Background(), block)

	var missing *MissingPayloadError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, got.Bid.Header.BlockHash, missing.ExpectedBlockHash)
}

func TestSlowRelayIsDropped(t *testing.T) {
	routerA := http.NewServeMux()
	routerB := http.NewServeMux()
	relayA := newTestRelay(t, 1, routerA)
	relayB := newTestRelay(t, 2, routerB)

	bidA := signedBid(t, relayA.signer, 5, 0xaa)
	routerA.HandleFunc("/eth/v1/builder/header/", serveBid(t, bidA))
	routerB.HandleFunc("/eth/v1/builder/header/", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusNoContent)
	})

	m := newTestMux(t, 200*time.Millisecond, relayA, relayB)

	got, err := m.FetchBestBid(context.Background(), testRequest(100))
	require.NoError(t, err, "a slow relay must not fail the whole fan-out")
	assert.Equal(t, uint256.NewInt(5), got.Bid.Value)
	assert.Equal(t, relayA.signer.PublicKey(), got.Bid.Pubkey)
}

func TestInvalidSignatureIsDiscarded(t *testing.T) {
	routerA := http.NewServeMux()
	routerB := http.NewServeMux()
	relayA := newTestRelay(t, 1, routerA)
	relayB := newTestRelay(t, 2, routerB)

	badBid := signedBid(t, relayA.signer, 100, 0xaa)
	badBid.Signature[0] ^= 0xff

	goodBid := signedBid(t, relayB.signer, 1, 0xbb)

	routerA.HandleFunc("/eth/v1/builder/header/", serveBid(t, badBid))
	routerB.HandleFunc("/eth/v1/builder/header/", serveBid(t, goodBid))

	m := newTestMux(t, time.Second, relayA, relayB)

	got, err := m.FetchBestBid(context.Background(), testRequest(100))
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1), got.Bid.Value, "the lower but valid bid must win")
	assert.Equal(t, relayB.signer.PublicKey(), got.Bid.Pubkey)
}

func TestBidPublicKeyMismatchIsDiscarded(t *testing.T) {
	routerA := http.NewServeMux()
	relayA := newTestRelay(t, 1, routerA)

	// Bid signed by (and naming) a key that isn't the relay's configured one.
	impostor, err := signer.NewBLSSigner("0x" + fmt.Sprintf("%064x", 99))
	require.NoError(t, err)

	bid := signedBid(t, impostor, 100, 0xaa)
	routerA.HandleFunc("/eth/v1/builder/header/", serveBid(t, bid))

	m := newTestMux(t, time.Second, relayA)

	_, err = m.FetchBestBid(context.Background(), testRequest(100))
	assert.ErrorIs(t, err, ErrNoBids)
}

func TestNoBidsWhenAllRelaysEmpty(t *testing.T) {
	router := http.NewServeMux()
	relayA := newTestRelay(t, 1, router)

	router.HandleFunc("/eth/v1/builder/header/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	m := newTestMux(t, time.Second, relayA)

	_, err := m.FetchBestBid(context.Background(), testRequest(100))
	assert.ErrorIs(t, err, ErrNoBids)
}

func TestRegisterValidatorsRequiresOneSuccess(t *testing.T) {
	okRouter := http.NewServeMux()
	failRouter := http.NewServeMux()
	relayOK := newTestRelay(t, 1, okRouter)
	relayFail := newTestRelay(t, 2, failRouter)

	okRouter.HandleFunc("/relay/v1/builder/validators", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	failRouter.HandleFunc("/relay/v1/builder/validators", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	m := newTestMux(t, time.Second, relayOK, relayFail)
	require.NoError(t, m.RegisterValidators(context.Background(), nil))

	allFail := newTestMux(t, time.Second, relayFail)
	assert.ErrorIs(t, allFail.RegisterValidators(context.Background(), nil), ErrCouldNotRegister)
}

func TestOnSlotSweepsStaleBids(t *testing.T) {
	m := newTestMux(t, time.Second)

	old := testRequest(10)
	fresh := testRequest(12)

	m.mu.Lock()
	m.outstandingBids[*old] = []int{0}
	m.outstandingBids[*fresh] = []int{1}
	m.mu.Unlock()

	m.OnSlot(12)

	m.mu.Lock()
	defer m.mu.Unlock()

	assert.NotContains(t, m.outstandingBids, *old)
	assert.Contains(t, m.outstandingBids, *fresh)
}
