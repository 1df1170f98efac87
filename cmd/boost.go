package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/bidoor/pkg/boost"
	"github.com/ethpandaops/bidoor/pkg/chain"
	"github.com/ethpandaops/bidoor/pkg/config"
	"github.com/ethpandaops/bidoor/pkg/relay"
)

var boostCmd = &cobra.Command{
	Use:   "boost",
	Short: "Run the proposer-facing relay multiplexer",
	Long: `Starts the Builder API server that fans a proposer's requests out to
the configured relays, selects the best bid, and routes the opened bid
back to the relays holding the payload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		loader := config.NewLoader(logger)
		if err := loader.ValidateBoost(cfg); err != nil {
			return err
		}

		spec, err := cfg.Chain.Spec()
		if err != nil {
			return err
		}

		endpoints, err := relay.ParseEndpoints(cfg.Boost.Relays)
		if err != nil {
			return err
		}

		endpoints = relay.DedupeEndpoints(endpoints)

		clients := make([]*relay.Client, len(endpoints))
		for i, endpoint := range endpoints {
			clients[i] = relay.NewClient(endpoint, logger)
			logger.WithField("relay", endpoint.String()).Info("Configured with relay")
		}

		relayMux := boost.NewRelayMux(
			clients,
			spec.GenesisForkVersion,
			spec.GenesisValidatorsRoot,
			time.Duration(cfg.Boost.FetchHeaderTimeout)*time.Millisecond,
			logger,
		)

		server := boost.NewServer(cfg.Boost.Host, cfg.Boost.Port, relayMux, logger)
		if err := server.Start(ctx); err != nil {
			return err
		}

		clock := chain.NewClock(spec, logger)
		clock.Start(ctx)

		slotSub := clock.SubscribeSlots()

		go func() {
			for slot := range slotSub.Channel() {
				relayMux.OnSlot(slot)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("Shutting down...")

		cancel()
		clock.Stop()
		slotSub.Unsubscribe()

		return server.Stop()
	},
}

func init() {
	rootCmd.AddCommand(boostCmd)
}
