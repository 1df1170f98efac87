// Package signer provides BLS signing and verification utilities shared by
// the Boost multiplexer and the auctioneer, along with the fork-dependent
// signing-domain arithmetic both sides need to agree on.
package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/herumi/bls-eth-go-binary/bls"
)

var initOnce sync.Once

// DomainApplicationBuilder is the signing domain builders and relays use for
// validator registrations and bid submissions. Defined by the Builder API
// spec, not configurable.
var DomainApplicationBuilder = phase0.DomainType{0x00, 0x00, 0x00, 0x01}

// DomainBeaconProposer is the signing domain proposers use for blinded
// beacon blocks.
var DomainBeaconProposer = phase0.DomainType{0x00, 0x00, 0x00, 0x00}

func initBLS() {
	initOnce.Do(func() {
		if err := bls.Init(bls.BLS12_381); err != nil {
			panic(fmt.Sprintf("failed to initialize BLS library: %v", err))
		}

		if err := bls.SetETHmode(bls.EthModeLatest); err != nil {
			panic(fmt.Sprintf("failed to set ETH mode: %v", err))
		}
	})
}

// BLSSigner holds a builder or relay's secret key and signs structures on
// its behalf.
type BLSSigner struct {
	secretKey   *bls.SecretKey
	publicKey   *bls.PublicKey
	pubkeyBytes phase0.BLSPubKey
}

// NewBLSSigner creates a signer from a hex-encoded 32-byte secret key.
func NewBLSSigner(privkeyHex string) (*BLSSigner, error) {
	initBLS()

	privkeyHex = strings.TrimPrefix(privkeyHex, "0x")

	privkeyBytes, err := hex.DecodeString(privkeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key hex: %w", err)
	}

	if len(privkeyBytes) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(privkeyBytes))
	}

	secretKey := new(bls.SecretKey)
	if err := secretKey.Deserialize(privkeyBytes); err != nil {
		return nil, fmt.Errorf("failed to deserialize secret key: %w", err)
	}

	publicKey := secretKey.GetPublicKey()

	var pubkeyBytes phase0.BLSPubKey

	copy(pubkeyBytes[:], publicKey.Serialize())

	return &BLSSigner{
		secretKey:   secretKey,
		publicKey:   publicKey,
		pubkeyBytes: pubkeyBytes,
	}, nil
}

// PublicKey returns the BLS public key.
func (s *BLSSigner) PublicKey() phase0.BLSPubKey {
	return s.pubkeyBytes
}

// PublicKeyBytes returns the public key as a byte slice.
func (s *BLSSigner) PublicKeyBytes() []byte {
	return s.pubkeyBytes[:]
}

// Sign signs a raw message and returns the signature.
func (s *BLSSigner) Sign(message []byte) (phase0.BLSSignature, error) {
	sig := s.secretKey.SignByte(message)

	var sigBytes phase0.BLSSignature
	copy(sigBytes[:], sig.Serialize())

	return sigBytes, nil
}

// SignWithDomain signs a structure's hash-tree-root mixed with a signing
// domain, following the standard signing-root construction.
func (s *BLSSigner) SignWithDomain(root phase0.Root, domain phase0.Domain) (phase0.BLSSignature, error) {
	signingRoot := ComputeSigningRoot(root, domain)

	return s.Sign(signingRoot[:])
}

// ComputeDomain computes a signing domain for a domain type and fork.
func ComputeDomain(
	domainType phase0.DomainType,
	forkVersion phase0.Version,
	genesisValidatorsRoot phase0.Root,
) phase0.Domain {
	forkDataRoot := computeForkDataRoot(forkVersion, genesisValidatorsRoot)

	var domain phase0.Domain

	copy(domain[:4], domainType[:])
	copy(domain[4:], forkDataRoot[:28])

	return domain
}

func computeForkDataRoot(forkVersion phase0.Version, genesisValidatorsRoot phase0.Root) phase0.Root {
	// ForkData{current_version, genesis_validators_root}, SSZ hash-tree-root
	// of a two-field container collapses to this fixed 64-byte layout.
	var forkData [64]byte

	copy(forkData[:4], forkVersion[:])
	copy(forkData[32:], genesisValidatorsRoot[:])

	hash := sha256.Sum256(forkData[:])

	var root phase0.Root
	copy(root[:], hash[:])

	return root
}

// ComputeSigningRoot mixes an object root with a domain per
// SigningData{object_root, domain}.
func ComputeSigningRoot(objectRoot phase0.Root, domain phase0.Domain) phase0.Root {
	var signingData [64]byte

	copy(signingData[:32], objectRoot[:])
	copy(signingData[32:], domain[:])

	hash := sha256.Sum256(signingData[:])

	var root phase0.Root
	copy(root[:], hash[:])

	return root
}

// VerifyBLSSignature verifies a signature over a message for a given public
// key. Used after deserialization of validator registrations, builder bids
// and bid submissions; signed blinded blocks are not verified anywhere in
// this repository.
func VerifyBLSSignature(pubkey phase0.BLSPubKey, message []byte, signature phase0.BLSSignature) (bool, error) {
	initBLS()

	var pk bls.PublicKey
	if err := pk.Deserialize(pubkey[:]); err != nil {
		return false, fmt.Errorf("failed to deserialize public key: %w", err)
	}

	var sig bls.Sign
	if err := sig.Deserialize(signature[:]); err != nil {
		return false, fmt.Errorf("failed to deserialize signature: %w", err)
	}

	return sig.VerifyByte(&pk, message), nil
}

// VerifySigningRoot verifies a signature over a domain-mixed object root,
// the counterpart to SignWithDomain.
func VerifySigningRoot(pubkey phase0.BLSPubKey, root phase0.Root, domain phase0.Domain, signature phase0.BLSSignature) (bool, error) {
	signingRoot := ComputeSigningRoot(root, domain)

	return VerifyBLSSignature(pubkey, signingRoot[:], signature)
}
