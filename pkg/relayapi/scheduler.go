package relayapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/types"
	"github.com/ethpandaops/bidoor/pkg/validators"
)

// ProposerDuty is the narrow fact this system needs from a beacon node:
// which validator is due to propose a given slot. Full duty computation
// (the RANDAO-seeded shuffle) is explicitly out of scope — it belongs to
// the beacon-node collaborator this interface abstracts over.
type ProposerDuty struct {
	Slot           phase0.Slot
	ValidatorIndex phase0.ValidatorIndex
	Pubkey         phase0.BLSPubKey
}

// DutiesProvider fetches proposer duties for an epoch from a beacon node.
// A narrow interface so the scheduler never depends on a full beacon client
// surface; no beacon-backed implementation lives in this repository.
type DutiesProvider interface {
	ProposerDuties(ctx context.Context, epoch phase0.Epoch) ([]ProposerDuty, error)
}

// Scheduler is the Proposer Scheduler (C4): it maintains a per-slot view
// of which registered validators are scheduled to propose, refreshed each
// epoch, by intersecting beacon-node proposer duties with the validator
// registry's stored preferences.
type Scheduler struct {
	duties        DutiesProvider
	registry      *validators.Registry
	slotsPerEpoch uint64
	log           logrus.FieldLogger

	mu      sync.RWMutex
	entries map[phase0.Slot]*types.ProposerScheduleEntry
}

// NewScheduler creates a proposer scheduler.
func NewScheduler(duties DutiesProvider, registry *validators.Registry, slotsPerEpoch uint64, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		duties:        duties,
		registry:      registry,
		slotsPerEpoch: slotsPerEpoch,
		log:           log.WithField("component", "proposer-scheduler"),
		entries:       make(map[phase0.Slot]*types.ProposerScheduleEntry),
	}
}

// OnEpoch fetches duties for the given epoch and the next, intersects them
// with the validator registry, and maintains the schedule monotonically:
// entries older than currentSlot are dropped and new entries for the
// just-crossed epoch are inserted.
func (s *Scheduler) OnEpoch(ctx context.Context, epoch phase0.Epoch, currentSlot phase0.Slot) error {
	var errs []error

	for _, e := range []phase0.Epoch{epoch, epoch + 1} {
		duties, err := s.duties.ProposerDuties(ctx, e)
		if err != nil {
			errs = append(errs, fmt.Errorf("epoch %d: %w", e, err))
			continue
		}

		s.ingest(duties)
	}

	s.mu.Lock()
	for slot := range s.entries {
		if slot < currentSlot {
			delete(s.entries, slot)
		}
	}
	s.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("proposer duties fetch had %d error(s): %v", len(errs), errs)
	}

	return nil
}

func (s *Scheduler) ingest(duties []ProposerDuty) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, duty := range duties {
		reg := s.registry.GetByIndex(duty.ValidatorIndex)
		if reg == nil {
			reg = s.registry.Get(duty.Pubkey)
		}

		if reg == nil {
			continue
		}

		s.entries[duty.Slot] = &types.ProposerScheduleEntry{
			Slot:               duty.Slot,
			ValidatorIndex:     duty.ValidatorIndex,
			SignedRegistration: reg,
		}
	}
}

// Entries returns a snapshot of every known schedule entry, covering the
// current and next epoch. Served by the relay test double on its
// builder-facing Relay API route, which the builder-side auctioneer polls
// over the Relay Client.
func (s *Scheduler) Entries() []*types.ProposerScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.ProposerScheduleEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}

	return out
}

// EntryForSlot returns the schedule entry for a slot, if known.
func (s *Scheduler) EntryForSlot(slot phase0.Slot) *types.ProposerScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.entries[slot]
}
