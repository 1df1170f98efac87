package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// The Builder/Relay API wire format represents every hash/pubkey/signature
// as a 0x-prefixed hex string and every numeric value as a decimal string
// (never a JSON number, to dodge float64 precision loss on 64-bit values).
// These helpers centralize that convention for every field in this
// package instead of being hand-rolled per call site.

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHexFixed(s string, out []byte) error {
	s = strings.TrimPrefix(s, "0x")

	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex %q: %w", s, err)
	}

	if len(b) != len(out) {
		return fmt.Errorf("expected %d bytes, got %d", len(out), len(b))
	}

	copy(out, b)

	return nil
}

func decodeHexVar(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}

	return hex.DecodeString(s)
}

func encodeU64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func decodeU64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func encodeU256(v *uint256.Int) string {
	if v == nil {
		return "0"
	}

	return v.Dec()
}

func decodeU256(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid uint256 %q: %w", s, err)
	}

	return v, nil
}
