package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/bidoor/pkg/auctioneer"
	"github.com/ethpandaops/bidoor/pkg/bidder"
	"github.com/ethpandaops/bidoor/pkg/builder"
	"github.com/ethpandaops/bidoor/pkg/chain"
	"github.com/ethpandaops/bidoor/pkg/config"
	"github.com/ethpandaops/bidoor/pkg/relay"
	"github.com/ethpandaops/bidoor/pkg/rpc/beaconevents"
	"github.com/ethpandaops/bidoor/pkg/signer"
)

var auctioneerCmd = &cobra.Command{
	Use:   "auctioneer",
	Short: "Run the builder-side auctioneer",
	Long: `Starts the builder-side bidding pipeline: proposer schedules are
pulled from the configured relays each epoch, payload-attributes events
from the beacon node open per-proposer auctions, and the deadline bidder
dispatches signed bid submissions back to the relays.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		loader := config.NewLoader(logger)
		if err := loader.ValidateAuctioneer(cfg); err != nil {
			return err
		}

		spec, err := cfg.Chain.Spec()
		if err != nil {
			return err
		}

		blsSigner, err := signer.NewBLSSigner(cfg.Auctioneer.SecretKey)
		if err != nil {
			return fmt.Errorf("invalid builder key: %w", err)
		}

		pubkey := blsSigner.PublicKey()
		logger.WithField("pubkey", fmt.Sprintf("%#x", pubkey[:8])).Info("Builder key loaded")

		endpoints, err := relay.ParseEndpoints(cfg.Auctioneer.Relays)
		if err != nil {
			return err
		}

		endpoints = relay.DedupeEndpoints(endpoints)

		clients := make([]*relay.Client, len(endpoints))
		for i, endpoint := range endpoints {
			clients[i] = relay.NewClient(endpoint, logger)
			logger.WithField("relay", endpoint.String()).Info("Configured with relay")
		}

		payloadBuilder := builder.NewLocal(&builder.Config{
			ExtraData:     cfg.Builder.ExtraData,
			BlockValueWei: cfg.Builder.BlockValueWei,
		}, logger)

		newAuctions := make(chan *auctioneer.AuctionContext, 16)
		dispatches := make(chan auctioneer.Dispatch, 16)
		attributes := make(chan *auctioneer.PayloadAttributes, 16)
		epochs := make(chan phase0.Epoch, 4)

		svc := auctioneer.NewService(
			clients,
			payloadBuilder,
			blsSigner,
			spec.GenesisForkVersion,
			spec.GenesisValidatorsRoot,
			spec.GenesisTime, spec.SecondsPerSlot, spec.SlotsPerEpoch,
			newAuctions,
			logger,
		)
		svc.SetCancellations(cfg.Auctioneer.Cancellations)
		svc.Start(ctx, epochs, attributes, dispatches)

		strategy := bidder.NewDeadlineBidder(&bidder.Config{
			BiddingDeadlineMs: cfg.Bidder.BiddingDeadlineMs,
			BidPercent:        cfg.Bidder.BidPercent,
			SubsidyWei:        cfg.Bidder.SubsidyWei,
		}, logger)

		bidderSvc := bidder.NewService(strategy, svc, logger)
		bidderSvc.Start(ctx, newAuctions, dispatches)

		beaconClient := beaconevents.NewClient(cfg.Auctioneer.CLClient, logger)
		beaconClient.Start(ctx)

		attrSub := beaconClient.SubscribePayloadAttributes()

		go func() {
			for event := range attrSub.Channel() {
				attrs := auctioneer.NewPayloadAttributes(
					event.ParentBlockHash,
					event.Timestamp,
					event.PrevRandao,
					event.SuggestedFeeRecipient,
					event.Withdrawals,
					event.ParentBeaconBlockRoot,
				)

				select {
				case attributes <- attrs:
				case <-ctx.Done():
					return
				}
			}
		}()

		clock := chain.NewClock(spec, logger)
		clock.Start(ctx)

		epochSub := clock.SubscribeEpochs()
		slotSub := clock.SubscribeSlots()

		go func() {
			for {
				select {
				case epoch := <-epochSub.Channel():
					select {
					case epochs <- epoch:
					case <-ctx.Done():
						return
					}
				case slot := <-slotSub.Channel():
					svc.OnSlot(slot)
					beaconClient.CleanupAttributesCache(slot)
					payloadBuilder.Prune(uint64(spec.SlotStartTime(slot).Unix()))
				case <-ctx.Done():
					return
				}
			}
		}()

		logger.WithField("relays", len(clients)).Info("Auctioneer started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("Shutting down...")

		cancel()
		clock.Stop()
		beaconClient.Stop()
		bidderSvc.Stop()
		svc.Stop()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(auctioneerCmd)
}
