// Package builder provides a testing-focused payload builder: it
// fabricates well-formed execution payloads from build attributes without
// running an execution layer, so the auction pipeline can be exercised on
// devnets and in tests. A production deployment swaps this for a builder
// backed by a real engine.
package builder

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/auctioneer"
	"github.com/ethpandaops/bidoor/pkg/types"
)

// Config tunes the local builder.
type Config struct {
	// ExtraData brands every built block, truncated to 32 bytes.
	ExtraData string `yaml:"extra_data"`

	// BlockValueWei is the static revenue every build reports, in wei.
	BlockValueWei string `yaml:"block_value_wei"`
}

// Local fabricates one deterministic payload per build job.
type Local struct {
	extraData  []byte
	blockValue *uint256.Int
	log        logrus.FieldLogger

	mu     sync.Mutex
	builds map[auctioneer.PayloadID]*auctioneer.BuiltPayload
}

// NewLocal creates a local builder.
func NewLocal(cfg *Config, log logrus.FieldLogger) *Local {
	extraData := []byte(cfg.ExtraData)
	if len(extraData) > 32 {
		extraData = extraData[:32]
	}

	blockValue := uint256.NewInt(0)

	if cfg.BlockValueWei != "" {
		parsed, err := uint256.FromDecimal(cfg.BlockValueWei)
		if err != nil {
			log.WithError(err).Warn("Invalid block_value_wei, builds will report zero revenue")
		} else {
			blockValue = parsed
		}
	}

	return &Local{
		extraData:  extraData,
		blockValue: blockValue,
		log:        log.WithField("component", "local-builder"),
		builds:     make(map[auctioneer.PayloadID]*auctioneer.BuiltPayload),
	}
}

// NewPayload fabricates the payload for the attributes immediately; there
// is no progressive revenue to wait for.
func (l *Local) NewPayload(_ context.Context, attributes *auctioneer.PayloadAttributes) (auctioneer.PayloadID, error) {
	gasLimit := uint64(30_000_000)

	feeRecipient := attributes.SuggestedFeeRecipient

	if attributes.Proposal != nil {
		feeRecipient = attributes.Proposal.ProposerFeeRecipient
		gasLimit = auctioneer.ComputePreferredGasLimit(attributes.Proposal.ProposerGasLimit, gasLimit)
	}

	payload := &types.ExecutionPayload{
		Version:       types.VersionCapella,
		ParentHash:    attributes.ParentHash,
		FeeRecipient:  feeRecipient,
		PrevRandao:    attributes.PrevRandao,
		GasLimit:      gasLimit,
		Timestamp:     attributes.Timestamp,
		ExtraData:     l.extraData,
		BaseFeePerGas: uint256.NewInt(7),
		Transactions:  [][]byte{},
		Withdrawals:   attributes.Withdrawals,
	}

	if attributes.ParentBeaconBlockRoot != nil {
		payload.Version = types.VersionDeneb

		blobGasUsed := uint64(0)
		excessBlobGas := uint64(0)
		payload.BlobGasUsed = &blobGasUsed
		payload.ExcessBlobGas = &excessBlobGas
	}

	// A fabricated block hash: deterministic over the build identity, so
	// repeated builds of the same job agree.
	hash := sha256.Sum256(append(attributes.ID[:], attributes.ParentHash[:]...))
	copy(payload.BlockHash[:], hash[:])

	built := &auctioneer.BuiltPayload{
		ID:      attributes.ID,
		Payload: payload,
		Fees:    l.blockValue,
	}

	if payload.Version == types.VersionDeneb {
		built.BlobsBundle = &types.BlobsBundle{}
	}

	l.mu.Lock()
	l.builds[attributes.ID] = built
	l.mu.Unlock()

	l.log.WithFields(logrus.Fields{
		"payload_id": attributes.ID,
		"block_hash": payload.BlockHash,
	}).Debug("Fabricated payload for build")

	return attributes.ID, nil
}

// BestPayload returns the fabricated payload for a build.
func (l *Local) BestPayload(_ context.Context, id auctioneer.PayloadID) (*auctioneer.BuiltPayload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	built, ok := l.builds[id]
	if !ok {
		return nil, auctioneer.ErrMissingPayload
	}

	return built, nil
}

// Resolve finalizes a build; for the local builder this is the same
// payload BestPayload reports.
func (l *Local) Resolve(ctx context.Context, id auctioneer.PayloadID) (*auctioneer.BuiltPayload, error) {
	return l.BestPayload(ctx, id)
}

// Prune drops builds whose payload timestamp is older than the cutoff.
func (l *Local) Prune(cutoffTimestamp uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, built := range l.builds {
		if built.Payload.Timestamp < cutoffTimestamp {
			delete(l.builds, id)
		}
	}
}
