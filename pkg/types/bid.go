package types

import (
	"crypto/sha256"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
)

// BuilderBid is what a relay offers a proposer: a header committing to a
// full payload, its value, and whose builder key signed it.
type BuilderBid struct {
	Version Version
	Header  *ExecutionPayloadHeader
	Value   *uint256.Int
	Pubkey  phase0.BLSPubKey
	Blobs   *BlobKZGCommitments // Deneb+
}

// BlobKZGCommitments lists the blob KZG commitments accompanying a Deneb+
// bid, separate from the full BlobsBundle that only travels with the full
// payload after open_bid.
type BlobKZGCommitments struct {
	Commitments [][48]byte
}

// HashTreeRoot merkleizes the bid's leaves: header root, value, pubkey,
// and (Deneb+) the commitments list root.
func (b *BuilderBid) HashTreeRoot() [32]byte {
	leaves := make([][32]byte, 0, 4)

	leaves = append(leaves, b.Header.HashTreeRoot())

	if b.Value != nil {
		leaves = append(leaves, leBytes(b.Value.Bytes()))
	} else {
		leaves = append(leaves, [32]byte{})
	}

	leaves = append(leaves, hash48(b.Pubkey))

	if b.Blobs != nil {
		commitLeaves := make([][32]byte, len(b.Blobs.Commitments))
		for i, c := range b.Blobs.Commitments {
			var padded [64]byte
			copy(padded[:48], c[:])
			commitLeaves[i] = sha256.Sum256(padded[:])
		}

		leaves = append(leaves, merkleize(commitLeaves))
	}

	return merkleize(leaves)
}

// SignedBuilderBid is a BuilderBid plus the relay/builder's signature over
// it under the builder domain.
type SignedBuilderBid struct {
	Bid       *BuilderBid
	Signature phase0.BLSSignature
}
