package types

import "github.com/attestantio/go-eth2-client/spec/phase0"

// BlindedBeaconBlockBody carries the execution-payload header in place of
// the full payload; everything else about beacon-block-body structure
// (attestations, deposits, sync aggregate, ...) is outside this system's
// scope, since full block validation against consensus rules is a
// Non-goal.
type BlindedBeaconBlockBody struct {
	ExecutionPayloadHeader *ExecutionPayloadHeader
}

// BlindedBeaconBlock is the shell a proposer signs in commitment to a
// specific payload without having seen its contents.
type BlindedBeaconBlock struct {
	Slot          phase0.Slot
	ProposerIndex phase0.ValidatorIndex
	ParentRoot    phase0.Root
	StateRoot     phase0.Root
	Body          *BlindedBeaconBlockBody
}

// HashTreeRoot merkleizes the block's leaves.
func (b *BlindedBeaconBlock) HashTreeRoot() [32]byte {
	leaves := make([][32]byte, 5)
	leaves[0] = leU64(uint64(b.Slot))
	leaves[1] = leU64(uint64(b.ProposerIndex))
	leaves[2] = b.ParentRoot
	leaves[3] = b.StateRoot
	leaves[4] = b.Body.ExecutionPayloadHeader.HashTreeRoot()

	return merkleize(leaves)
}

// SignedBlindedBeaconBlock is a BlindedBeaconBlock plus the proposer's
// signature over it under the beacon-proposer domain for the block's
// slot's fork version.
type SignedBlindedBeaconBlock struct {
	Message   *BlindedBeaconBlock
	Signature phase0.BLSSignature
}

// Slot returns the blinded block's slot.
func (s *SignedBlindedBeaconBlock) Slot() phase0.Slot {
	return s.Message.Slot
}

// ParentHash returns the parent hash of the embedded payload header.
func (s *SignedBlindedBeaconBlock) ParentHash() phase0.Hash32 {
	return s.Message.Body.ExecutionPayloadHeader.ParentHash
}

// BlockHash returns the block hash of the embedded payload header.
func (s *SignedBlindedBeaconBlock) BlockHash() phase0.Hash32 {
	return s.Message.Body.ExecutionPayloadHeader.BlockHash
}
