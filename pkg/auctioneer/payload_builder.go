package auctioneer

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/ethpandaops/bidoor/pkg/types"
)

// ErrMissingPayload is returned when a payload id has no build behind it,
// either because the build never started or because it was already pruned.
var ErrMissingPayload = errors.New("no payload for id")

// BuiltPayload is a payload builder's answer for one build job: the
// payload itself, its blobs (Deneb+), and the revenue it currently earns
// the builder.
type BuiltPayload struct {
	ID          PayloadID
	Payload     *types.ExecutionPayload
	BlobsBundle *types.BlobsBundle
	Fees        *uint256.Int
}

// PayloadBuilder is the narrow surface this service needs from the local
// execution-layer block builder. Payload construction itself (EVM, txpool)
// lives behind this interface.
type PayloadBuilder interface {
	// NewPayload starts a build job for the given attributes and returns
	// the id the builder assigned to it.
	NewPayload(ctx context.Context, attributes *PayloadAttributes) (PayloadID, error)

	// BestPayload returns the current best payload for a running build
	// without finalizing it. Returns ErrMissingPayload when the id is
	// unknown.
	BestPayload(ctx context.Context, id PayloadID) (*BuiltPayload, error)

	// Resolve finalizes a build and returns its payload. Returns
	// ErrMissingPayload when the id is unknown.
	Resolve(ctx context.Context, id PayloadID) (*BuiltPayload, error)
}
