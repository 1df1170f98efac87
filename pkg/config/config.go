// Package config handles configuration loading and validation for bidoor.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/bidoor/pkg/relay"
)

// Config is the complete configuration for the bidoor binary, covering
// both the boost and auctioneer subcommands.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level,omitempty"`

	Chain      ChainConfig      `yaml:"chain" json:"chain"`
	Boost      BoostConfig      `yaml:"boost" json:"boost"`
	Auctioneer AuctioneerConfig `yaml:"auctioneer" json:"auctioneer"`
	Builder    BuilderConfig    `yaml:"builder" json:"builder"`
	Bidder     BidderConfig     `yaml:"bidder" json:"bidder"`
}

// ChainConfig pins the chain's timing and signing-domain identity.
type ChainConfig struct {
	GenesisTime           uint64 `yaml:"genesis_time" json:"genesis_time"`
	SecondsPerSlot        uint64 `yaml:"seconds_per_slot" json:"seconds_per_slot"`
	SlotsPerEpoch         uint64 `yaml:"slots_per_epoch" json:"slots_per_epoch"`
	GenesisForkVersion    string `yaml:"genesis_fork_version" json:"genesis_fork_version"`
	GenesisValidatorsRoot string `yaml:"genesis_validators_root" json:"genesis_validators_root"`
}

// BoostConfig configures the proposer-facing multiplexer.
type BoostConfig struct {
	Host               string   `yaml:"host" json:"host"`
	Port               int      `yaml:"port" json:"port"`
	Relays             []string `yaml:"relays" json:"relays"`
	FetchHeaderTimeout uint64   `yaml:"fetch_header_timeout_ms" json:"fetch_header_timeout_ms"`
}

// AuctioneerConfig configures the builder-side auctioneer.
type AuctioneerConfig struct {
	SecretKey     string   `yaml:"secret_key" json:"secret_key,omitempty"`
	Relays        []string `yaml:"relays" json:"relays"`
	CLClient      string   `yaml:"cl_client" json:"cl_client,omitempty"`
	Cancellations bool     `yaml:"cancellations" json:"cancellations"`
}

// BuilderConfig configures the local payload builder.
type BuilderConfig struct {
	ExtraData     string `yaml:"extra_data" json:"extra_data"`
	BlockValueWei string `yaml:"block_value_wei" json:"block_value_wei"`
}

// BidderConfig configures the deadline bidder.
type BidderConfig struct {
	BiddingDeadlineMs uint64   `yaml:"bidding_deadline_ms" json:"bidding_deadline_ms"`
	BidPercent        *float64 `yaml:"bid_percent" json:"bid_percent,omitempty"`
	SubsidyWei        string   `yaml:"subsidy_wei" json:"subsidy_wei,omitempty"`
}

// Loader handles configuration loading from files and flags.
type Loader struct {
	log logrus.FieldLogger
}

// NewLoader creates a new configuration loader.
func NewLoader(log logrus.FieldLogger) *Loader {
	return &Loader{
		log: log.WithField("component", "config"),
	}
}

// LoadConfig loads configuration from a YAML file.
func (l *Loader) LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromFlags loads configuration from viper flags, overlaying the
// defaults.
func (l *Loader) LoadConfigFromFlags(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if val := v.GetString("log-level"); val != "" {
		cfg.LogLevel = val
	}

	cfg.Chain.GenesisTime = v.GetUint64("genesis-time")

	if val := v.GetUint64("seconds-per-slot"); val != 0 {
		cfg.Chain.SecondsPerSlot = val
	}

	if val := v.GetUint64("slots-per-epoch"); val != 0 {
		cfg.Chain.SlotsPerEpoch = val
	}

	if val := v.GetString("genesis-fork-version"); val != "" {
		cfg.Chain.GenesisForkVersion = val
	}

	if val := v.GetString("genesis-validators-root"); val != "" {
		cfg.Chain.GenesisValidatorsRoot = val
	}

	if val := v.GetString("boost-host"); val != "" {
		cfg.Boost.Host = val
	}

	if val := v.GetInt("boost-port"); val != 0 {
		cfg.Boost.Port = val
	}

	if vals := v.GetStringSlice("boost-relays"); len(vals) > 0 {
		cfg.Boost.Relays = vals
	}

	if val := v.GetUint64("fetch-header-timeout"); val != 0 {
		cfg.Boost.FetchHeaderTimeout = val
	}

	if val := v.GetString("auctioneer-secret-key"); val != "" {
		cfg.Auctioneer.SecretKey = val
	}

	if vals := v.GetStringSlice("auctioneer-relays"); len(vals) > 0 {
		cfg.Auctioneer.Relays = vals
	}

	if val := v.GetString("cl-client"); val != "" {
		cfg.Auctioneer.CLClient = val
	}

	cfg.Auctioneer.Cancellations = v.GetBool("cancellations")

	if val := v.GetString("builder-extra-data"); val != "" {
		cfg.Builder.ExtraData = val
	}

	if val := v.GetString("builder-block-value"); val != "" {
		cfg.Builder.BlockValueWei = val
	}

	if val := v.GetUint64("bidding-deadline-ms"); val != 0 {
		cfg.Bidder.BiddingDeadlineMs = val
	}

	if v.IsSet("bid-percent") {
		percent := v.GetFloat64("bid-percent")
		cfg.Bidder.BidPercent = &percent
	}

	if val := v.GetString("subsidy-wei"); val != "" {
		cfg.Bidder.SubsidyWei = val
	}

	return cfg, nil
}

// decodeFixedHex validates a 0x-prefixed hex string of exactly n bytes.
func decodeFixedHex(value string, n int) error {
	decoded, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex encoding: %w", err)
	}

	if len(decoded) != n {
		return fmt.Errorf("must be %d bytes, got %d", n, len(decoded))
	}

	return nil
}

// ValidateBoost validates the configuration the boost subcommand needs.
// An empty relay list is permitted but warned loudly: every fetch will
// just fail with no bids.
func (l *Loader) ValidateBoost(cfg *Config) error {
	if err := validateChain(&cfg.Chain); err != nil {
		return err
	}

	if len(cfg.Boost.Relays) == 0 {
		l.log.Warn("No relays configured; every header request will return no bids")
		return nil
	}

	if _, err := relay.ParseEndpoints(cfg.Boost.Relays); err != nil {
		return fmt.Errorf("boost.relays: %w", err)
	}

	return nil
}

// ValidateAuctioneer validates the configuration the auctioneer subcommand
// needs.
func (l *Loader) ValidateAuctioneer(cfg *Config) error {
	if err := validateChain(&cfg.Chain); err != nil {
		return err
	}

	if cfg.Auctioneer.SecretKey == "" {
		return fmt.Errorf("auctioneer.secret_key is required")
	}

	if err := decodeFixedHex(cfg.Auctioneer.SecretKey, 32); err != nil {
		return fmt.Errorf("auctioneer.secret_key: %w", err)
	}

	if cfg.Auctioneer.CLClient == "" {
		return fmt.Errorf("auctioneer.cl_client is required")
	}

	if len(cfg.Auctioneer.Relays) == 0 {
		l.log.Warn("No relays configured; bids will never be submitted anywhere")
		return nil
	}

	if _, err := relay.ParseEndpoints(cfg.Auctioneer.Relays); err != nil {
		return fmt.Errorf("auctioneer.relays: %w", err)
	}

	return nil
}

func validateChain(cfg *ChainConfig) error {
	if cfg.SecondsPerSlot == 0 {
		return fmt.Errorf("chain.seconds_per_slot must be positive")
	}

	if cfg.SlotsPerEpoch == 0 {
		return fmt.Errorf("chain.slots_per_epoch must be positive")
	}

	if cfg.GenesisForkVersion != "" {
		if err := decodeFixedHex(cfg.GenesisForkVersion, 4); err != nil {
			return fmt.Errorf("chain.genesis_fork_version: %w", err)
		}
	}

	if cfg.GenesisValidatorsRoot != "" {
		if err := decodeFixedHex(cfg.GenesisValidatorsRoot, 32); err != nil {
			return fmt.Errorf("chain.genesis_validators_root: %w", err)
		}
	}

	return nil
}
