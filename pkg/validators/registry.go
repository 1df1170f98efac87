// Package validators implements the validator registry (C3): the
// in-memory cache of validator summaries and signed fee-recipient/gas-limit
// preferences, and the registration-validation state machine the relay
// test double (pkg/relayapi) relies on.
package validators

import (
	"fmt"
	"sync"

	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/ethpandaops/bidoor/pkg/signer"
	"github.com/ethpandaops/bidoor/pkg/types"
)

// Status mirrors a validator's on-chain status as reported by the beacon
// node. Only Pending and Active validators may register with a builder.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusActive
	StatusExited
	StatusSlashed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusExited:
		return "exited"
	case StatusSlashed:
		return "slashed"
	default:
		return "unknown"
	}
}

// Outcome classifies the result of validating a single registration entry
// in a batch: accepted as new, already stored, or rejected for one of the
// reasons a relay distinguishes.
type Outcome int

const (
	OutcomeNew Outcome = iota
	OutcomeExisting
	OutcomeRejectedInvalidTimestamp
	OutcomeRejectedInactiveValidator
	OutcomeRejectedInvalidSignature
)

// Reason returns a short label for the outcome, used as a metrics label.
func (o Outcome) Reason() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeExisting:
		return "existing"
	case OutcomeRejectedInvalidTimestamp:
		return "invalid_timestamp"
	case OutcomeRejectedInactiveValidator:
		return "inactive_validator"
	case OutcomeRejectedInvalidSignature:
		return "invalid_signature"
	default:
		return "unknown"
	}
}

// EntryResult is the per-entry outcome of ValidateRegistrations: one bad
// entry never voids its siblings.
type EntryResult struct {
	Pubkey  phase0.BLSPubKey
	Outcome Outcome
	Err     error
}

// Accepted reports whether this entry's registration is now (or already
// was) the stored preference for its pubkey.
func (r EntryResult) Accepted() bool {
	return r.Outcome == OutcomeNew || r.Outcome == OutcomeExisting
}

// futureToleranceSeconds is how far into the future a registration's
// timestamp may be before it's rejected as implausible.
const futureToleranceSeconds = 10

// Registry holds two mappings: pubkey -> signed registration, and
// validator index -> pubkey, plus the status snapshot used to gate
// registration.
type Registry struct {
	mu sync.RWMutex

	registrations map[phase0.BLSPubKey]*types.SignedValidatorRegistration
	indexToPubkey map[phase0.ValidatorIndex]phase0.BLSPubKey
	status        map[phase0.BLSPubKey]Status
}

// NewRegistry creates an empty validator registry.
func NewRegistry() *Registry {
	return &Registry{
		registrations: make(map[phase0.BLSPubKey]*types.SignedValidatorRegistration),
		indexToPubkey: make(map[phase0.ValidatorIndex]phase0.BLSPubKey),
		status:        make(map[phase0.BLSPubKey]Status),
	}
}

// RefreshSnapshot replaces the index/status maps wholesale, as triggered
// on each epoch boundary from a beacon-node validator-set snapshot.
func (r *Registry) RefreshSnapshot(indexToPubkey map[phase0.ValidatorIndex]phase0.BLSPubKey, status map[phase0.BLSPubKey]Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.indexToPubkey = indexToPubkey
	r.status = status
}

// Get returns the stored registration for a pubkey, or nil.
func (r *Registry) Get(pubkey phase0.BLSPubKey) *types.SignedValidatorRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.registrations[pubkey]
}

// GetByIndex returns the stored registration for a validator index, or nil
// if the index is unknown or has no registration.
func (r *Registry) GetByIndex(index phase0.ValidatorIndex) *types.SignedValidatorRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pubkey, ok := r.indexToPubkey[index]
	if !ok {
		return nil
	}

	return r.registrations[pubkey]
}

// Len returns the number of stored registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.registrations)
}

// List returns a snapshot copy of all stored registrations.
func (r *Registry) List() []*types.SignedValidatorRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.SignedValidatorRegistration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		out = append(out, reg)
	}

	return out
}

// ValidateRegistrations processes every entry in batch independently: a
// rejection on one entry never prevents the others from being accepted.
func (r *Registry) ValidateRegistrations(
	batch []*types.SignedValidatorRegistration,
	now uint64,
	forkVersion phase0.Version,
	genesisValidatorsRoot phase0.Root,
) []EntryResult {
	results := make([]EntryResult, 0, len(batch))

	for _, reg := range batch {
		results = append(results, r.validateOne(reg, now, forkVersion, genesisValidatorsRoot))
	}

	return results
}

func (r *Registry) validateOne(
	reg *types.SignedValidatorRegistration,
	now uint64,
	forkVersion phase0.Version,
	genesisValidatorsRoot phase0.Root,
) EntryResult {
	if reg == nil || reg.Message == nil {
		return EntryResult{Outcome: OutcomeRejectedInvalidTimestamp, Err: fmt.Errorf("registration message missing")}
	}

	pubkey := reg.Message.Pubkey

	if reg.Message.Timestamp > now+futureToleranceSeconds {
		return EntryResult{Pubkey: pubkey, Outcome: OutcomeRejectedInvalidTimestamp, Err: fmt.Errorf("registration timestamp %d is more than %ds in the future (now=%d)", reg.Message.Timestamp, futureToleranceSeconds, now)}
	}

	r.mu.RLock()
	existing := r.registrations[pubkey]
	status := r.status[pubkey]
	r.mu.RUnlock()

	if existing != nil {
		switch {
		case reg.Message.Timestamp < existing.Message.Timestamp:
			return EntryResult{Pubkey: pubkey, Outcome: OutcomeRejectedInvalidTimestamp, Err: fmt.Errorf("registration timestamp %d is older than stored timestamp %d", reg.Message.Timestamp, existing.Message.Timestamp)}
		case reg.Message.Timestamp == existing.Message.Timestamp:
			return EntryResult{Pubkey: pubkey, Outcome: OutcomeExisting}
		}
	}

	if status != StatusPending && status != StatusActive {
		return EntryResult{Pubkey: pubkey, Outcome: OutcomeRejectedInactiveValidator, Err: fmt.Errorf("validator %x has status %s, not pending or active", pubkey[:8], status)}
	}

	root := reg.Message.HashTreeRoot()

	valid, err := signer.VerifySigningRoot(pubkey, root, signer.ComputeDomain(signer.DomainApplicationBuilder, forkVersion, genesisValidatorsRoot), reg.Signature)
	if err != nil || !valid {
		return EntryResult{Pubkey: pubkey, Outcome: OutcomeRejectedInvalidSignature, Err: fmt.Errorf("invalid signature for validator %x", pubkey[:8])}
	}

	r.mu.Lock()
	r.registrations[pubkey] = reg
	r.mu.Unlock()

	return EntryResult{Pubkey: pubkey, Outcome: OutcomeNew}
}
