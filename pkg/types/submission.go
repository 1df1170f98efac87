package types

import "github.com/attestantio/go-eth2-client/spec/phase0"

// SignedBidSubmission is what a builder sends a relay: the signed
// BidTrace plus the full execution payload (and, Deneb+, its blobs
// bundle).
type SignedBidSubmission struct {
	Message          *BidTrace
	ExecutionPayload *ExecutionPayload
	BlobsBundle      *BlobsBundle // Deneb+
	Signature        phase0.BLSSignature
}
