// Package auctioneer implements the relay-side auctioneer/bidder (C6+C7):
// the service that watches payload-attribute events, opens one auction per
// (slot, proposer) pair, builds a payload, and submits bids to relays on a
// deadline-driven schedule.
package auctioneer

import (
	"sync"

	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/ethpandaops/bidoor/pkg/relay"
	"github.com/ethpandaops/bidoor/pkg/types"
)

// RelaySet is the set of relays a given proposer is registered with for a
// slot, keyed by relay public key for comparability (relay.Client isn't).
type RelaySet map[phase0.BLSPubKey]*relay.Client

func (s RelaySet) add(c *relay.Client) {
	s[c.Endpoint.PublicKey] = c
}

// List returns the relays in this set as a slice, in no particular order.
func (s RelaySet) List() []*relay.Client {
	out := make([]*relay.Client, 0, len(s))
	for _, c := range s {
		out = append(out, c)
	}

	return out
}

// Proposals maps each proposer scheduled for a slot to the relays that
// offered it.
type Proposals map[types.Proposer]RelaySet

// AuctionSchedule is the slot -> proposer -> relay-set map the auctioneer
// consults on every payload-attributes event to decide which auctions to
// open.
type AuctionSchedule struct {
	mu       sync.Mutex
	schedule map[phase0.Slot]Proposals
}

// NewAuctionSchedule creates an empty schedule.
func NewAuctionSchedule() *AuctionSchedule {
	return &AuctionSchedule{schedule: make(map[phase0.Slot]Proposals)}
}

// Clear drops every slot strictly before retainSlot, called once per epoch
// boundary.
func (a *AuctionSchedule) Clear(retainSlot phase0.Slot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for slot := range a.schedule {
		if slot < retainSlot {
			delete(a.schedule, slot)
		}
	}
}

// Process folds one relay's proposal schedule into the map: for every
// entry, the relay is added to the RelaySet for (slot, Proposer). Returns
// the slots touched, so callers can see which slots might now have new
// proposals worth looking at.
func (a *AuctionSchedule) Process(client *relay.Client, entries []*types.ProposerScheduleEntry) []phase0.Slot {
	a.mu.Lock()
	defer a.mu.Unlock()

	touched := make([]phase0.Slot, 0, len(entries))

	for _, entry := range entries {
		if entry == nil || entry.SignedRegistration == nil || entry.SignedRegistration.Message == nil {
			continue
		}

		msg := entry.SignedRegistration.Message
		proposer := types.Proposer{
			PublicKey:    msg.Pubkey,
			FeeRecipient: msg.FeeRecipient,
			GasLimit:     msg.GasLimit,
		}

		proposals, ok := a.schedule[entry.Slot]
		if !ok {
			proposals = make(Proposals)
			a.schedule[entry.Slot] = proposals
		}

		set, ok := proposals[proposer]
		if !ok {
			set = make(RelaySet)
			proposals[proposer] = set
		}

		set.add(client)
		touched = append(touched, entry.Slot)
	}

	return touched
}

// GetMatchingProposals peeks at the proposals scheduled for a slot without
// consuming them.
func (a *AuctionSchedule) GetMatchingProposals(slot phase0.Slot) Proposals {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.schedule[slot]
}

// TakeMatchingProposals removes and returns the proposals scheduled for a
// slot, so that a second payload-attributes event for the same slot (a
// reorg re-delivering the same attributes) does not spawn duplicate
// auctions.
func (a *AuctionSchedule) TakeMatchingProposals(slot phase0.Slot) Proposals {
	a.mu.Lock()
	defer a.mu.Unlock()

	proposals, ok := a.schedule[slot]
	if !ok {
		return nil
	}

	delete(a.schedule, slot)

	return proposals
}
