// Package chain carries the consensus timing parameters both services
// share and the slot/epoch clock driving their lifecycle events.
package chain

import (
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// Spec is the subset of chain configuration this system needs: timing
// parameters plus the fork identity pinning the builder signing domain.
type Spec struct {
	GenesisTime           uint64
	SecondsPerSlot        uint64
	SlotsPerEpoch         uint64
	GenesisForkVersion    phase0.Version
	GenesisValidatorsRoot phase0.Root
}

// MainnetSpec returns mainnet timing parameters with zero fork identity;
// callers fill in the fork fields from configuration.
func MainnetSpec() *Spec {
	return &Spec{
		SecondsPerSlot: 12,
		SlotsPerEpoch:  32,
	}
}

// SlotAtTime returns the slot containing the given wall time. The second
// return is false before genesis.
func (s *Spec) SlotAtTime(t time.Time) (phase0.Slot, bool) {
	unix := uint64(t.Unix())
	if unix < s.GenesisTime || s.SecondsPerSlot == 0 {
		return 0, false
	}

	return phase0.Slot((unix - s.GenesisTime) / s.SecondsPerSlot), true
}

// SlotStartTime returns when a slot begins.
func (s *Spec) SlotStartTime(slot phase0.Slot) time.Time {
	return time.Unix(int64(s.GenesisTime+uint64(slot)*s.SecondsPerSlot), 0)
}

// EpochOf returns the epoch containing a slot.
func (s *Spec) EpochOf(slot phase0.Slot) phase0.Epoch {
	if s.SlotsPerEpoch == 0 {
		return 0
	}

	return phase0.Epoch(uint64(slot) / s.SlotsPerEpoch)
}

// FirstSlotOf returns an epoch's first slot.
func (s *Spec) FirstSlotOf(epoch phase0.Epoch) phase0.Slot {
	return phase0.Slot(uint64(epoch) * s.SlotsPerEpoch)
}
