package types

import (
	"encoding/json"
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

type proposerScheduleEntryJSON struct {
	Slot           string                       `json:"slot"`
	ValidatorIndex string                       `json:"validator_index"`
	Entry          *SignedValidatorRegistration `json:"entry"`
}

func (e *ProposerScheduleEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(proposerScheduleEntryJSON{
		Slot:           encodeU64(uint64(e.Slot)),
		ValidatorIndex: encodeU64(uint64(e.ValidatorIndex)),
		Entry:          e.SignedRegistration,
	})
}

func (e *ProposerScheduleEntry) UnmarshalJSON(data []byte) error {
	var j proposerScheduleEntryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	slot, err := decodeU64(j.Slot)
	if err != nil {
		return fmt.Errorf("slot: %w", err)
	}

	validatorIndex, err := decodeU64(j.ValidatorIndex)
	if err != nil {
		return fmt.Errorf("validator_index: %w", err)
	}

	e.Slot = phase0.Slot(slot)
	e.ValidatorIndex = phase0.ValidatorIndex(validatorIndex)
	e.SignedRegistration = j.Entry

	return nil
}
