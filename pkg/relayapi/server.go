// Package relayapi implements a minimal relay: the Builder API surface a
// proposer (or the Boost multiplexer) talks to, and the Relay API surface
// a builder submits bids through, over an in-memory registration and
// payload store, usable as a stand-in for an external relay. It is
// exercised by this package's own tests.
package relayapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/metrics"
	"github.com/ethpandaops/bidoor/pkg/signer"
	"github.com/ethpandaops/bidoor/pkg/types"
	"github.com/ethpandaops/bidoor/pkg/validators"
)

// proposalToleranceDelay matches the payload sweep applied on slot ticks:
// stored payloads survive one slot past their own.
const proposalToleranceDelay = phase0.Slot(1)

// storedSubmission retains the best builder submission seen for one
// auction, payload included.
type storedSubmission struct {
	trace       *types.BidTrace
	payload     *types.ExecutionPayload
	blobsBundle *types.BlobsBundle
}

// Server is the relay HTTP server.
type Server struct {
	host      string
	port      int
	blsSigner *signer.BLSSigner
	registry  *validators.Registry
	scheduler *Scheduler

	forkVersion           phase0.Version
	genesisValidatorsRoot phase0.Root

	mu          sync.Mutex
	submissions map[types.AuctionRequest]*storedSubmission

	router *mux.Router
	server *http.Server
	log    logrus.FieldLogger
}

// NewServer creates a relay server signing its bids with blsSigner.
func NewServer(
	host string,
	port int,
	blsSigner *signer.BLSSigner,
	registry *validators.Registry,
	scheduler *Scheduler,
	forkVersion phase0.Version,
	genesisValidatorsRoot phase0.Root,
	log logrus.FieldLogger,
) *Server {
	s := &Server{
		host:                  host,
		port:                  port,
		blsSigner:             blsSigner,
		registry:              registry,
		scheduler:             scheduler,
		forkVersion:           forkVersion,
		genesisValidatorsRoot: genesisValidatorsRoot,
		submissions:           make(map[types.AuctionRequest]*storedSubmission),
		router:                mux.NewRouter(),
		log:                   log.WithField("component", "relay-server"),
	}

	s.registerRoutes()

	return s
}

// Handler returns the HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	builderAPI := s.router.PathPrefix("/eth/v1/builder").Subrouter()
	builderAPI.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	builderAPI.HandleFunc("/validators", s.handleRegisterValidators).Methods(http.MethodPost)
	builderAPI.HandleFunc("/header/{slot}/{parent_hash}/{pubkey}", s.handleGetHeader).Methods(http.MethodGet)
	builderAPI.HandleFunc("/blinded_blocks", s.handleOpenBid).Methods(http.MethodPost)

	relayAPI := s.router.PathPrefix("/relay/v1/builder").Subrouter()
	relayAPI.HandleFunc("/validators", s.handleGetProposalSchedule).Methods(http.MethodGet)
	relayAPI.HandleFunc("/validators", s.handleRegisterValidators).Methods(http.MethodPost)
	relayAPI.HandleFunc("/blocks", s.handleSubmitBid).Methods(http.MethodPost)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// OnSlot sweeps stored payloads more than one slot old.
func (s *Server) OnSlot(slot phase0.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for request := range s.submissions {
		if request.Slot+proposalToleranceDelay < slot {
			delete(s.submissions, request)
		}
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "message": message})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleRegisterValidators validates every registration in the batch
// independently; per-entry rejections are logged and counted. The response
// is 200 when at least one entry was accepted (or the batch is empty), and
// 400 when the batch fails to parse or no entry in it was accepted.
func (s *Server) handleRegisterValidators(w http.ResponseWriter, r *http.Request) {
	var batch []*types.SignedValidatorRegistration
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	now := uint64(time.Now().Unix())

	results := s.registry.ValidateRegistrations(batch, now, s.forkVersion, s.genesisValidatorsRoot)

	accepted := 0

	for _, result := range results {
		if result.Accepted() {
			accepted++

			metrics.RegistrationsAccepted.Inc()

			continue
		}

		metrics.RegistrationsRejected.WithLabelValues(result.Outcome.Reason()).Inc()
		s.log.WithError(result.Err).WithField("pubkey", fmt.Sprintf("%#x", result.Pubkey[:8])).
			Warn("Rejected validator registration")
	}

	if accepted == 0 && len(batch) > 0 {
		writeError(w, http.StatusBadRequest, "no registration in batch was accepted")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleGetHeader serves the best stored submission for the request as a
// signed builder bid, or 204 when nothing was submitted.
func (s *Server) handleGetHeader(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	slotU64, err := strconv.ParseUint(vars["slot"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot: must be a number")
		return
	}

	parentHashBytes, err := hex.DecodeString(trimHex(vars["parent_hash"]))
	if err != nil || len(parentHashBytes) != 32 {
		writeError(w, http.StatusBadRequest, "invalid parent_hash: must be 32 bytes hex")
		return
	}

	pubkeyBytes, err := hex.DecodeString(trimHex(vars["pubkey"]))
	if err != nil || len(pubkeyBytes) != 48 {
		writeError(w, http.StatusBadRequest, "invalid pubkey: must be 48 bytes hex")
		return
	}

	request := types.AuctionRequest{Slot: phase0.Slot(slotU64)}
	copy(request.ParentHash[:], parentHashBytes)
	copy(request.ProposerPubkey[:], pubkeyBytes)

	if s.registry.Get(request.ProposerPubkey) == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mu.Lock()
	stored := s.submissions[request]
	s.mu.Unlock()

	if stored == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	bid := &types.BuilderBid{
		Version: stored.payload.Version,
		Header:  stored.payload.Header(),
		Value:   stored.trace.Value,
		Pubkey:  s.blsSigner.PublicKey(),
	}

	if stored.blobsBundle != nil {
		bid.Blobs = &types.BlobKZGCommitments{Commitments: stored.blobsBundle.Commitments}
	}

	domain := signer.ComputeDomain(signer.DomainApplicationBuilder, s.forkVersion, s.genesisValidatorsRoot)

	sig, err := s.blsSigner.SignWithDomain(bid.HashTreeRoot(), domain)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign bid")
		return
	}

	resp := types.VersionedValue[*types.SignedBuilderBid]{
		Version: bid.Version,
		Data:    &types.SignedBuilderBid{Bid: bid, Signature: sig},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleOpenBid releases a stored payload against a signed blinded block.
// The auction key is rebuilt from the block's own contents; the proposer
// pubkey comes from the registry via the block's proposer index.
func (s *Server) handleOpenBid(w http.ResponseWriter, r *http.Request) {
	var signedBlock types.SignedBlindedBeaconBlock
	if err := json.NewDecoder(r.Body).Decode(&signedBlock); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	reg := s.registry.GetByIndex(signedBlock.Message.ProposerIndex)
	if reg == nil {
		writeError(w, http.StatusBadRequest, "unknown proposer index")
		return
	}

	request := types.AuctionRequest{
		Slot:           signedBlock.Slot(),
		ParentHash:     signedBlock.ParentHash(),
		ProposerPubkey: reg.Message.Pubkey,
	}

	s.mu.Lock()
	stored := s.submissions[request]
	delete(s.submissions, request)
	s.mu.Unlock()

	if stored == nil {
		writeError(w, http.StatusBadRequest, "unknown bid")
		return
	}

	if stored.payload.BlockHash != signedBlock.BlockHash() {
		writeError(w, http.StatusBadRequest, "blinded block does not match stored payload")
		return
	}

	resp := types.VersionedValue[*types.ExecutionPayload]{
		Version: stored.payload.Version,
		Data:    stored.payload,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleGetProposalSchedule serves the proposer schedule for the current
// and next epoch.
func (s *Server) handleGetProposalSchedule(w http.ResponseWriter, _ *http.Request) {
	entries := s.scheduler.Entries()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(entries)
}

// handleSubmitBid accepts a builder's signed bid submission, verifies the
// builder signature, and stores the payload when it beats the current best
// for its auction.
func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	var submission types.SignedBidSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	trace := submission.Message
	if trace == nil || submission.ExecutionPayload == nil {
		writeError(w, http.StatusBadRequest, "submission missing message or payload")
		return
	}

	domain := signer.ComputeDomain(signer.DomainApplicationBuilder, s.forkVersion, s.genesisValidatorsRoot)

	valid, err := signer.VerifySigningRoot(trace.BuilderPubkey, trace.HashTreeRoot(), domain, submission.Signature)
	if err != nil || !valid {
		writeError(w, http.StatusBadRequest, "invalid builder signature")
		return
	}

	if submission.ExecutionPayload.BlockHash != trace.BlockHash {
		writeError(w, http.StatusBadRequest, "payload block hash does not match bid trace")
		return
	}

	request := types.AuctionRequest{
		Slot:           trace.Slot,
		ParentHash:     trace.ParentHash,
		ProposerPubkey: trace.ProposerPubkey,
	}

	s.mu.Lock()
	existing := s.submissions[request]
	if existing == nil || trace.Value.Gt(existing.trace.Value) {
		s.submissions[request] = &storedSubmission{
			trace:       trace,
			payload:     submission.ExecutionPayload,
			blobsBundle: submission.BlobsBundle,
		}
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"slot":       trace.Slot,
		"builder":    fmt.Sprintf("%#x", trace.BuilderPubkey[:8]),
		"block_hash": trace.BlockHash,
		"value":      trace.Value,
	}).Info("Accepted bid submission")

	w.WriteHeader(http.StatusOK)
}

func trimHex(s string) string {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}

	return s
}

// Start starts the relay HTTP server.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.WithField("addr", addr).Info("Starting relay server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Relay server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the relay server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping relay server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
