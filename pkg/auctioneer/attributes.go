package auctioneer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethpandaops/bidoor/pkg/types"
)

// PayloadID names one payload build in progress: 8 bytes derived
// deterministically from the build's parameters, so the same attributes
// always map to the same build job.
type PayloadID [8]byte

func (id PayloadID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// rlpWithdrawal is the execution-layer wire shape of a withdrawal, encoded
// into the payload-id hash so that two attribute sets differing only in
// withdrawals produce distinct builds.
type rlpWithdrawal struct {
	Index     uint64
	Validator uint64
	Address   [20]byte
	Amount    uint64
}

// PayloadAttributes carries everything the payload builder needs to start
// a build: the consensus-layer attributes from the payload_attributes
// event, plus (once a proposer is matched) that proposer's preferences.
type PayloadAttributes struct {
	ID                    PayloadID
	ParentHash            phase0.Hash32
	Timestamp             uint64
	PrevRandao            [32]byte
	SuggestedFeeRecipient bellatrix.ExecutionAddress
	Withdrawals           []types.Withdrawal
	ParentBeaconBlockRoot *phase0.Root

	Proposal *ProposalAttributes
}

// ProposalAttributes are the proposer preferences attached to a build once
// the attributes are matched against the auction schedule.
type ProposalAttributes struct {
	ProposerGasLimit     uint64
	ProposerFeeRecipient bellatrix.ExecutionAddress
}

// NewPayloadAttributes derives the base payload id and returns the
// attributes ready for proposer matching.
func NewPayloadAttributes(
	parentHash phase0.Hash32,
	timestamp uint64,
	prevRandao [32]byte,
	feeRecipient bellatrix.ExecutionAddress,
	withdrawals []types.Withdrawal,
	parentBeaconBlockRoot *phase0.Root,
) *PayloadAttributes {
	a := &PayloadAttributes{
		ParentHash:            parentHash,
		Timestamp:             timestamp,
		PrevRandao:            prevRandao,
		SuggestedFeeRecipient: feeRecipient,
		Withdrawals:           withdrawals,
		ParentBeaconBlockRoot: parentBeaconBlockRoot,
	}
	a.ID = computePayloadID(a)

	return a
}

// computePayloadID hashes parent_hash, timestamp, prev_randao,
// fee_recipient, the RLP-encoded withdrawals, and (Deneb+) the parent
// beacon block root into the build's 8-byte identifier.
func computePayloadID(a *PayloadAttributes) PayloadID {
	hasher := sha256.New()
	hasher.Write(a.ParentHash[:])

	var ts [8]byte

	binary.BigEndian.PutUint64(ts[:], a.Timestamp)
	hasher.Write(ts[:])
	hasher.Write(a.PrevRandao[:])
	hasher.Write(a.SuggestedFeeRecipient[:])

	if a.Withdrawals != nil {
		encoded := make([]rlpWithdrawal, len(a.Withdrawals))
		for i, w := range a.Withdrawals {
			encoded[i] = rlpWithdrawal{
				Index:     w.Index,
				Validator: uint64(w.ValidatorIndex),
				Address:   w.Address,
				Amount:    w.AmountGwei,
			}
		}

		buf, err := rlp.EncodeToBytes(encoded)
		if err == nil {
			hasher.Write(buf)
		}
	}

	if a.ParentBeaconBlockRoot != nil {
		hasher.Write(a.ParentBeaconBlockRoot[:])
	}

	var id PayloadID

	copy(id[:], hasher.Sum(nil)[:8])

	return id
}

// MixProposalIntoPayloadID derives the proposer-specific payload id from a
// base id by folding in the proposer's gas limit and fee recipient, so two
// proposers scheduled for the same slot get distinct builds.
func MixProposalIntoPayloadID(id PayloadID, proposal *ProposalAttributes) PayloadID {
	hasher := sha256.New()
	hasher.Write(id[:])

	var gasLimit [8]byte

	binary.BigEndian.PutUint64(gasLimit[:], proposal.ProposerGasLimit)
	hasher.Write(gasLimit[:])
	hasher.Write(proposal.ProposerFeeRecipient[:])

	var mixed PayloadID

	copy(mixed[:], hasher.Sum(nil)[:8])

	return mixed
}

// WithProposal clones the attributes, attaches the proposer preferences,
// and re-derives the payload id.
func (a *PayloadAttributes) WithProposal(proposal *ProposalAttributes) *PayloadAttributes {
	clone := *a
	clone.Proposal = proposal
	clone.ID = MixProposalIntoPayloadID(a.ID, proposal)

	return &clone
}
