package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

const sampleConfig = `
log_level: debug
chain:
  genesis_time: 1700000000
  seconds_per_slot: 12
  slots_per_epoch: 32
  genesis_fork_version: "0x00000000"
boost:
  host: 127.0.0.1
  port: 18550
  relays:
    - "https://0xa1885d66bef164889a2e35845c3b626545d7b0e513efe335e97c3a45e534013fa3bc38c3b7e6143695aecc4872ac52c4@relay-a.example.test"
auctioneer:
  secret_key: "0x2c072a5e3a785eea5ef53f1a5ab91c7b8b2d4f5e6a7c8d9e1a2b3c4d5e6f7001"
  cl_client: "http://127.0.0.1:5052"
  relays:
    - "https://0xa1885d66bef164889a2e35845c3b626545d7b0e513efe335e97c3a45e534013fa3bc38c3b7e6143695aecc4872ac52c4@relay-a.example.test"
bidder:
  bidding_deadline_ms: 750
  bid_percent: 0.9
  subsidy_wei: "1000"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bidoor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	loader := NewLoader(nopLogger(t))

	cfg, err := loader.LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(1700000000), cfg.Chain.GenesisTime)
	assert.Equal(t, "127.0.0.1", cfg.Boost.Host)
	assert.Len(t, cfg.Boost.Relays, 1)
	require.NotNil(t, cfg.Bidder.BidPercent)
	assert.Equal(t, 0.9, *cfg.Bidder.BidPercent)

	// Defaults survive for keys the file does not set.
	assert.Equal(t, uint64(1000), cfg.Boost.FetchHeaderTimeout)

	require.NoError(t, loader.ValidateBoost(cfg))
	require.NoError(t, loader.ValidateAuctioneer(cfg))

	spec, err := cfg.Chain.Spec()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), spec.SecondsPerSlot)
}

func TestValidateRejectsBadRelayURL(t *testing.T) {
	loader := NewLoader(nopLogger(t))

	cfg := DefaultConfig()
	cfg.Boost.Relays = []string{"https://not-a-pubkey@relay.example.test"}

	assert.Error(t, loader.ValidateBoost(cfg))
}

func TestValidateAuctioneerRequiresKey(t *testing.T) {
	loader := NewLoader(nopLogger(t))

	cfg := DefaultConfig()
	cfg.Auctioneer.CLClient = "http://127.0.0.1:5052"

	assert.Error(t, loader.ValidateAuctioneer(cfg))
}

func TestEmptyRelayListIsPermitted(t *testing.T) {
	loader := NewLoader(nopLogger(t))

	cfg := DefaultConfig()

	assert.NoError(t, loader.ValidateBoost(cfg))
}
