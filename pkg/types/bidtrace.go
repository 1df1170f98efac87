package types

import (
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
)

// BidTrace is the builder's signed claim about a submitted bid: who built
// it, who it's for, and what it's worth.
type BidTrace struct {
	Slot                 phase0.Slot
	ParentHash           phase0.Hash32
	BlockHash            phase0.Hash32
	BuilderPubkey        phase0.BLSPubKey
	ProposerPubkey       phase0.BLSPubKey
	ProposerFeeRecipient bellatrix.ExecutionAddress
	GasLimit             uint64
	GasUsed              uint64
	Value                *uint256.Int
}

// HashTreeRoot computes BidTrace's hash tree root: 9 fields padded to 16
// leaves, pairwise SHA-256 reduced.
func (b *BidTrace) HashTreeRoot() [32]byte {
	leaves := make([][32]byte, 9)

	leaves[0] = leU64(uint64(b.Slot))
	leaves[1] = b.ParentHash
	leaves[2] = b.BlockHash
	leaves[3] = hash48(b.BuilderPubkey)
	leaves[4] = hash48(b.ProposerPubkey)

	var feeRecipientLeaf [32]byte
	copy(feeRecipientLeaf[:20], b.ProposerFeeRecipient[:])
	leaves[5] = feeRecipientLeaf

	leaves[6] = leU64(b.GasLimit)
	leaves[7] = leU64(b.GasUsed)

	if b.Value != nil {
		leaves[8] = leBytes(b.Value.Bytes())
	}

	return merkleize(leaves)
}

// String renders a short identifying summary for logging.
func (b *BidTrace) String() string {
	return fmt.Sprintf("slot=%d block_hash=%#x value=%s", b.Slot, b.BlockHash, b.Value)
}
