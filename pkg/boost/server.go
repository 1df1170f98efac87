package boost

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/metrics"
	"github.com/ethpandaops/bidoor/pkg/types"
)

// Server serves the proposer-facing Builder API over the relay multiplexer.
type Server struct {
	host     string
	port     int
	relayMux *RelayMux
	router   *mux.Router
	server   *http.Server
	log      logrus.FieldLogger
}

// NewServer creates the Builder API server.
func NewServer(host string, port int, relayMux *RelayMux, log logrus.FieldLogger) *Server {
	s := &Server{
		host:     host,
		port:     port,
		relayMux: relayMux,
		router:   mux.NewRouter(),
		log:      log.WithField("component", "boost-server"),
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

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "message": message})
}

// handleStatus handles GET /eth/v1/builder/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleRegisterValidators handles POST /eth/v1/builder/validators.
func (s *Server) handleRegisterValidators(w http.ResponseWriter, r *http.Request) {
	var batch []*types.SignedValidatorRegistration
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		s.log.WithError(err).Warn("registerValidators: invalid JSON body")
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())

		return
	}

	if err := s.relayMux.RegisterValidators(r.Context(), batch); err != nil {
		s.log.WithError(err).Warn("registerValidators: no relay accepted the batch")
		writeError(w, http.StatusBadGateway, err.Error())

		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleGetHeader handles GET /eth/v1/builder/header/{slot}/{parent_hash}/{pubkey}.
// Returns 200 with the best SignedBuilderBid, or 204 when no relay bid.
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

	bid, err := s.relayMux.FetchBestBid(r.Context(), &request)
	if err != nil {
		if errors.Is(err, ErrNoBids) {
			s.log.WithField("slot", slotU64).Info("getHeader: no bids for proposal")
			w.WriteHeader(http.StatusNoContent)

			return
		}

		s.log.WithError(err).Warn("getHeader: failed to fetch best bid")
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	resp := types.VersionedValue[*types.SignedBuilderBid]{
		Version: bid.Bid.Version,
		Data:    bid,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleOpenBid handles POST /eth/v1/builder/blinded_blocks.
func (s *Server) handleOpenBid(w http.ResponseWriter, r *http.Request) {
	var signedBlock types.SignedBlindedBeaconBlock
	if err := json.NewDecoder(r.Body).Decode(&signedBlock); err != nil {
		s.log.WithError(err).Warn("openBid: invalid JSON body")
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())

		return
	}

	if signedBlock.Message == nil || signedBlock.Message.Body == nil ||
		signedBlock.Message.Body.ExecutionPayloadHeader == nil {
		writeError(w, http.StatusBadRequest, "invalid blinded block: missing execution_payload_header")
		return
	}

	payload, err := s.relayMux.OpenBid(r.Context(), &signedBlock)
	if err != nil {
		var missing *MissingPayloadError

		switch {
		case errors.Is(err, ErrMissingOpenBid):
			s.log.WithField("slot", signedBlock.Slot()).Warn("openBid: no outstanding bid for request")
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &missing):
			s.log.WithField("expected_hash", missing.ExpectedBlockHash).
				Warn("openBid: no relay returned a matching payload")
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}

		return
	}

	resp := types.VersionedValue[*types.ExecutionPayload]{
		Version: payload.Version,
		Data:    payload,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func trimHex(s string) string {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}

	return s
}

// Start starts the Builder API HTTP server.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.WithField("addr", addr).Info("Starting Builder API server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Builder API server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the Builder API server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping Builder API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
