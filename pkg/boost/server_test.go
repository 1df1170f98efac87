package boost

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bidoor/pkg/types"
)

func newTestServer(t *testing.T, relays ...*testRelay) *Server {
	t.Helper()

	return NewServer("127.0.0.1", 0, newTestMux(t, 0, relays...), nopLogger(t))
}

func TestServerStatus(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/eth/v1/builder/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerGetHeaderNoRelays(t *testing.T) {
	srv := newTestServer(t)

	parentHash := "0x" + strings.Repeat("11", 32)
	pubkey := "0x" + strings.Repeat("aa", 48)

	req := httptest.NewRequest(http.MethodGet, "/eth/v1/builder/header/1/"+parentHash+"/"+pubkey, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServerGetHeaderRejectsBadParams(t *testing.T) {
	srv := newTestServer(t)

	pubkey := "0x" + strings.Repeat("aa", 48)

	req := httptest.NewRequest(http.MethodGet, "/eth/v1/builder/header/1/0x1234/"+pubkey, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerRegisterValidatorsAllRelaysFail(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/eth/v1/builder/validators", strings.NewReader("[]"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServerOpenBidUntracked(t *testing.T) {
	srv := newTestServer(t)

	block := &types.SignedBlindedBeaconBlock{
		Message: &types.BlindedBeaconBlock{
			Slot: 1,
			Body: &types.BlindedBeaconBlockBody{
				ExecutionPayloadHeader: &types.ExecutionPayloadHeader{
					Version:       types.VersionBellatrix,
					BaseFeePerGas: uint256.NewInt(7),
				},
			},
		},
	}

	body, err := json.Marshal(block)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/eth/v1/builder/blinded_blocks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
