package beaconevents

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/ethpandaops/bidoor/pkg/types"
)

// PayloadAttributesEvent is a payload_attributes event from the beacon
// node: everything needed to start building a payload for an upcoming
// proposal.
type PayloadAttributesEvent struct {
	Version               string
	ProposalSlot          phase0.Slot
	ProposerIndex         phase0.ValidatorIndex
	ParentBlockHash       phase0.Hash32
	Timestamp             uint64
	PrevRandao            [32]byte
	SuggestedFeeRecipient bellatrix.ExecutionAddress
	Withdrawals           []types.Withdrawal
	ParentBeaconBlockRoot *phase0.Root
}

type payloadAttributesEventJSON struct {
	Version string `json:"version"`
	Data    struct {
		ProposalSlot      string `json:"proposal_slot"`
		ProposerIndex     string `json:"proposer_index"`
		ParentBlockHash   string `json:"parent_block_hash"`
		PayloadAttributes struct {
			Timestamp             string `json:"timestamp"`
			PrevRandao            string `json:"prev_randao"`
			SuggestedFeeRecipient string `json:"suggested_fee_recipient"`
			Withdrawals           []struct {
				Index          string `json:"index"`
				ValidatorIndex string `json:"validator_index"`
				Address        string `json:"address"`
				Amount         string `json:"amount"`
			} `json:"withdrawals"`
			ParentBeaconBlockRoot string `json:"parent_beacon_block_root"`
		} `json:"payload_attributes"`
	} `json:"data"`
}

type headEventJSON struct {
	Slot            string `json:"slot"`
	Block           string `json:"block"`
	EpochTransition bool   `json:"epoch_transition"`
}

func decodeFixedHex(s string, out []byte) error {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return err
	}

	if len(b) != len(out) {
		return fmt.Errorf("expected %d bytes, got %d", len(out), len(b))
	}

	copy(out, b)

	return nil
}

func parseHeadEvent(data string) (*HeadEvent, error) {
	var raw headEventJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, err
	}

	slot, err := strconv.ParseUint(raw.Slot, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid slot: %w", err)
	}

	event := &HeadEvent{
		Slot:            phase0.Slot(slot),
		EpochTransition: raw.EpochTransition,
	}

	if err := decodeFixedHex(raw.Block, event.Block[:]); err != nil {
		return nil, fmt.Errorf("invalid block: %w", err)
	}

	return event, nil
}

func parsePayloadAttributesEvent(data string) (*PayloadAttributesEvent, error) {
	var raw payloadAttributesEventJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, err
	}

	slot, err := strconv.ParseUint(raw.Data.ProposalSlot, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid proposal_slot: %w", err)
	}

	proposerIndex, err := strconv.ParseUint(raw.Data.ProposerIndex, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid proposer_index: %w", err)
	}

	attrs := raw.Data.PayloadAttributes

	timestamp, err := strconv.ParseUint(attrs.Timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}

	event := &PayloadAttributesEvent{
		Version:       raw.Version,
		ProposalSlot:  phase0.Slot(slot),
		ProposerIndex: phase0.ValidatorIndex(proposerIndex),
		Timestamp:     timestamp,
	}

	if err := decodeFixedHex(raw.Data.ParentBlockHash, event.ParentBlockHash[:]); err != nil {
		return nil, fmt.Errorf("invalid parent_block_hash: %w", err)
	}

	if err := decodeFixedHex(attrs.PrevRandao, event.PrevRandao[:]); err != nil {
		return nil, fmt.Errorf("invalid prev_randao: %w", err)
	}

	if err := decodeFixedHex(attrs.SuggestedFeeRecipient, event.SuggestedFeeRecipient[:]); err != nil {
		return nil, fmt.Errorf("invalid suggested_fee_recipient: %w", err)
	}

	for i, w := range attrs.Withdrawals {
		index, err := strconv.ParseUint(w.Index, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("withdrawal %d: invalid index: %w", i, err)
		}

		validatorIndex, err := strconv.ParseUint(w.ValidatorIndex, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("withdrawal %d: invalid validator_index: %w", i, err)
		}

		amount, err := strconv.ParseUint(w.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("withdrawal %d: invalid amount: %w", i, err)
		}

		withdrawal := types.Withdrawal{
			Index:          index,
			ValidatorIndex: phase0.ValidatorIndex(validatorIndex),
			AmountGwei:     amount,
		}

		if err := decodeFixedHex(w.Address, withdrawal.Address[:]); err != nil {
			return nil, fmt.Errorf("withdrawal %d: invalid address: %w", i, err)
		}

		event.Withdrawals = append(event.Withdrawals, withdrawal)
	}

	if attrs.ParentBeaconBlockRoot != "" {
		var root phase0.Root
		if err := decodeFixedHex(attrs.ParentBeaconBlockRoot, root[:]); err != nil {
			return nil, fmt.Errorf("invalid parent_beacon_block_root: %w", err)
		}

		event.ParentBeaconBlockRoot = &root
	}

	return event, nil
}
