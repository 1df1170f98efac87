package types

import (
	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// ValidatorRegistrationMessage is the signed preference a validator
// publishes to relays: where to send fees, and what gas limit to target.
type ValidatorRegistrationMessage struct {
	FeeRecipient bellatrix.ExecutionAddress
	GasLimit     uint64
	Timestamp    uint64
	Pubkey       phase0.BLSPubKey
}

// HashTreeRoot computes the message's hash tree root: 4 fields padded to 4
// leaves (already a power of two).
func (m *ValidatorRegistrationMessage) HashTreeRoot() [32]byte {
	leaves := make([][32]byte, 4)

	var feeRecipientLeaf [32]byte
	copy(feeRecipientLeaf[:20], m.FeeRecipient[:])
	leaves[0] = feeRecipientLeaf

	leaves[1] = leU64(m.GasLimit)
	leaves[2] = leU64(m.Timestamp)
	leaves[3] = hash48(m.Pubkey)

	return merkleize(leaves)
}

// SignedValidatorRegistration pairs a registration message with the BLS
// signature over it under the builder domain.
type SignedValidatorRegistration struct {
	Message   *ValidatorRegistrationMessage
	Signature phase0.BLSSignature
}

// ProposerScheduleEntry binds a slot to the validator scheduled to propose
// it and the registration that validator last published.
type ProposerScheduleEntry struct {
	Slot               phase0.Slot
	ValidatorIndex     phase0.ValidatorIndex
	SignedRegistration *SignedValidatorRegistration
}

// Proposer identifies the full, comparable registration preference a
// builder needs to target a specific validator: used as a map key so that
// two registrations with identical preferences collapse into the same
// auction-schedule bucket.
type Proposer struct {
	PublicKey    phase0.BLSPubKey
	FeeRecipient bellatrix.ExecutionAddress
	GasLimit     uint64
}

// AuctionRequest (a.k.a. BidRequest) uniquely names one header auction:
// (slot, parent_hash, proposer_public_key). It is comparable and usable
// directly as a map key.
type AuctionRequest struct {
	Slot           phase0.Slot
	ParentHash     phase0.Hash32
	ProposerPubkey phase0.BLSPubKey
}
