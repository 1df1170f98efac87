// Package relay models a single external relay identity (C1) and the thin
// remote-call surface (C2) used to talk to it over the Relay API.
package relay

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// pubkeyHexLen is the number of hex characters carrying the relay's BLS
// public key in the userinfo segment: 96 (48 bytes), not counting an
// optional "0x" prefix.
const pubkeyHexLen = 96

// Endpoint identifies a relay by URL plus its embedded BLS public key. Two
// endpoints are equal iff their public keys are equal — host/port
// differences alone never duplicate a relay.
type Endpoint struct {
	URL       *url.URL
	PublicKey phase0.BLSPubKey
}

// ParseEndpoint parses a relay URL of the form
// "https://<0x-hex-pubkey>@host:port" into an Endpoint. The userinfo
// segment must carry exactly 48 bytes of hex (optionally 0x-prefixed);
// any other shape fails with an InvalidRelayUrl-class error.
func ParseEndpoint(raw string) (*Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url %q: %w", raw, err)
	}

	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("invalid relay url %q: missing public key in userinfo", raw)
	}

	username := strings.TrimPrefix(u.User.Username(), "0x")
	if len(username) != pubkeyHexLen {
		return nil, fmt.Errorf(
			"invalid relay url %q: public key field must be %d hex characters (optionally 0x-prefixed), got %d",
			raw, pubkeyHexLen, len(username),
		)
	}

	decoded, err := hex.DecodeString(username)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url %q: could not decode public key hex: %w", raw, err)
	}

	if len(decoded) != len(phase0.BLSPubKey{}) {
		return nil, fmt.Errorf(
			"invalid relay url %q: decoded public key must be %d bytes, got %d",
			raw, len(phase0.BLSPubKey{}), len(decoded),
		)
	}

	var pubkey phase0.BLSPubKey
	copy(pubkey[:], decoded)

	// Strip the userinfo for the base URL used when issuing requests; the
	// public key still lives on the Endpoint for identity/auth purposes.
	base := *u
	base.User = nil

	return &Endpoint{URL: &base, PublicKey: pubkey}, nil
}

// Equal reports whether two endpoints identify the same relay.
func (e *Endpoint) Equal(other *Endpoint) bool {
	if e == nil || other == nil {
		return e == other
	}

	return e.PublicKey == other.PublicKey
}

// String renders a short identifying form for logging, never including the
// full public key.
func (e *Endpoint) String() string {
	return fmt.Sprintf("%s (0x%x…)", e.URL.Host, e.PublicKey[:4])
}

// DedupeEndpoints removes endpoints sharing a public key, keeping the
// first occurrence.
func DedupeEndpoints(endpoints []*Endpoint) []*Endpoint {
	seen := make(map[phase0.BLSPubKey]struct{}, len(endpoints))
	out := make([]*Endpoint, 0, len(endpoints))

	for _, e := range endpoints {
		if _, ok := seen[e.PublicKey]; ok {
			continue
		}

		seen[e.PublicKey] = struct{}{}
		out = append(out, e)
	}

	return out
}

// ParseEndpoints parses a batch of relay URLs, collecting every error
// rather than failing fast so a single malformed entry doesn't obscure
// the rest of the configuration's problems.
func ParseEndpoints(raws []string) ([]*Endpoint, error) {
	endpoints := make([]*Endpoint, 0, len(raws))

	var errs []string

	for _, raw := range raws {
		e, err := ParseEndpoint(raw)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}

		endpoints = append(endpoints, e)
	}

	if len(errs) > 0 {
		return endpoints, fmt.Errorf("invalid relay urls: %s", strings.Join(errs, "; "))
	}

	return endpoints, nil
}
