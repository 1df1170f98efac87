package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/ethpandaops/bidoor/pkg/chain"
)

// Spec materializes the chain configuration into the timing/signing spec
// the services consume.
func (c *ChainConfig) Spec() (*chain.Spec, error) {
	spec := &chain.Spec{
		GenesisTime:    c.GenesisTime,
		SecondsPerSlot: c.SecondsPerSlot,
		SlotsPerEpoch:  c.SlotsPerEpoch,
	}

	if c.GenesisForkVersion != "" {
		decoded, err := hex.DecodeString(strings.TrimPrefix(c.GenesisForkVersion, "0x"))
		if err != nil || len(decoded) != 4 {
			return nil, fmt.Errorf("invalid genesis_fork_version %q", c.GenesisForkVersion)
		}

		copy(spec.GenesisForkVersion[:], decoded)
	}

	if c.GenesisValidatorsRoot != "" {
		decoded, err := hex.DecodeString(strings.TrimPrefix(c.GenesisValidatorsRoot, "0x"))
		if err != nil || len(decoded) != len(phase0.Root{}) {
			return nil, fmt.Errorf("invalid genesis_validators_root %q", c.GenesisValidatorsRoot)
		}

		copy(spec.GenesisValidatorsRoot[:], decoded)
	}

	return spec, nil
}
