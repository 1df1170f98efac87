// Package cmd implements the CLI commands for bidoor.
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ethpandaops/bidoor/pkg/config"
	"github.com/ethpandaops/bidoor/pkg/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logrus.Logger
	v       *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "bidoor",
	Short: "PBS auction tooling: boost multiplexer and builder-side auctioneer",
	Long: `Bidoor mediates the proposer/builder separation auction from both
sides: the boost subcommand multiplexes a proposer's requests over a set
of relays, and the auctioneer subcommand runs a block builder's bidding
pipeline against the same relays.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLogger()

		return initConfig()
	},
}

func init() {
	v = viper.New()
	cobra.OnInitialize(loadConfigFile)

	defaults := config.DefaultConfig()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")

	// Chain flags
	rootCmd.PersistentFlags().Uint64("genesis-time", 0, "Chain genesis time (unix seconds)")
	rootCmd.PersistentFlags().Uint64("seconds-per-slot", defaults.Chain.SecondsPerSlot, "Seconds per slot")
	rootCmd.PersistentFlags().Uint64("slots-per-epoch", defaults.Chain.SlotsPerEpoch, "Slots per epoch")
	rootCmd.PersistentFlags().String("genesis-fork-version", "", "Genesis fork version (hex)")
	rootCmd.PersistentFlags().String("genesis-validators-root", "", "Genesis validators root (hex)")

	// Boost flags
	rootCmd.PersistentFlags().String("boost-host", defaults.Boost.Host, "Builder API listen host")
	rootCmd.PersistentFlags().Int("boost-port", defaults.Boost.Port, "Builder API listen port")
	rootCmd.PersistentFlags().StringSlice("boost-relays", nil, "Relay URLs with embedded public keys")
	rootCmd.PersistentFlags().Uint64("fetch-header-timeout", defaults.Boost.FetchHeaderTimeout, "Per-relay header fetch timeout in ms")

	// Auctioneer flags
	rootCmd.PersistentFlags().String("auctioneer-secret-key", "", "Builder BLS secret key (hex)")
	rootCmd.PersistentFlags().StringSlice("auctioneer-relays", nil, "Relay URLs to submit bids to")
	rootCmd.PersistentFlags().String("cl-client", "", "Consensus layer client URL")
	rootCmd.PersistentFlags().Bool("cancellations", false, "Enable relay bid cancellations")

	// Builder flags
	rootCmd.PersistentFlags().String("builder-extra-data", defaults.Builder.ExtraData, "Extra data branding built blocks")
	rootCmd.PersistentFlags().String("builder-block-value", "", "Static block value reported by the local builder (wei)")

	// Bidder flags
	rootCmd.PersistentFlags().Uint64("bidding-deadline-ms", defaults.Bidder.BiddingDeadlineMs, "Bid dispatch deadline before slot start in ms")
	rootCmd.PersistentFlags().Float64("bid-percent", 1.0, "Fraction of build revenue to bid")
	rootCmd.PersistentFlags().String("subsidy-wei", "", "Subsidy added to every bid (wei)")

	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initLogger() {
	logger = logging.New(v.GetString("log-level"))
}

func loadConfigFile() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("bidoor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bidoor")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if logger != nil {
				logger.WithError(err).Warn("Error reading config file")
			}
		}
	}
}

func initConfig() error {
	loader := config.NewLoader(logger)

	if file := v.ConfigFileUsed(); file != "" {
		loaded, err := loader.LoadConfig(file)
		if err != nil {
			return err
		}

		cfg = loaded

		return nil
	}

	loaded, err := loader.LoadConfigFromFlags(v)
	if err != nil {
		return err
	}

	cfg = loaded

	return nil
}
