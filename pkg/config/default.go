package config

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Chain: ChainConfig{
			SecondsPerSlot: 12,
			SlotsPerEpoch:  32,
		},
		Boost: BoostConfig{
			Host:               "0.0.0.0",
			Port:               18550,
			FetchHeaderTimeout: 1000,
		},
		Builder: BuilderConfig{
			ExtraData: "bidoor/",
		},
		Bidder: BidderConfig{
			BiddingDeadlineMs: 500,
		},
	}
}
