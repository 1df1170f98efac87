package signer

import (
	"encoding/hex"
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPrivkeyHex() string {
	return "0x" + hex.EncodeToString([]byte{
		0x2c, 0x07, 0x2a, 0x5e, 0x3a, 0x78, 0x5e, 0xea, 0x5e, 0xf5, 0x3f, 0x1a,
		0x5a, 0xb9, 0x1c, 0x7b, 0x8b, 0x2d, 0x4f, 0x5e, 0x6a, 0x7c, 0x8d, 0x9e,
		0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x70, 0x01,
	})
}

func TestSigningRootComputation(t *testing.T) {
	objectRoot := phase0.Root{}
	copy(objectRoot[:], []byte("test object root for signing..."))

	domain := phase0.Domain{}
	copy(domain[:], []byte("test domain for signing........"))

	signingRoot := ComputeSigningRoot(objectRoot, domain)

	var emptyRoot phase0.Root
	assert.NotEqual(t, emptyRoot, signingRoot, "signing root should not be empty")
}

func TestComputeDomain(t *testing.T) {
	forkVersion := phase0.Version{}
	genesisRoot := phase0.Root{}

	domain := ComputeDomain(DomainApplicationBuilder, forkVersion, genesisRoot)
	domain2 := ComputeDomain(DomainApplicationBuilder, forkVersion, genesisRoot)
	assert.Equal(t, domain, domain2, "domain should be deterministic")
	assert.Equal(t, DomainApplicationBuilder[:], domain[:4])
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	signer, err := NewBLSSigner(testPrivkeyHex())
	require.NoError(t, err)

	var objectRoot phase0.Root
	copy(objectRoot[:], []byte("some structure's hash tree root"))

	domain := ComputeDomain(DomainApplicationBuilder, phase0.Version{}, phase0.Root{})

	sig, err := signer.SignWithDomain(objectRoot, domain)
	require.NoError(t, err)

	ok, err := VerifySigningRoot(signer.PublicKey(), objectRoot, domain, sig)
	require.NoError(t, err)
	assert.True(t, ok, "signature produced by SignWithDomain must verify")

	// A tampered root must fail verification.
	objectRoot[0] ^= 0xff
	ok, err = VerifySigningRoot(signer.PublicKey(), objectRoot, domain, sig)
	require.NoError(t, err)
	assert.False(t, ok, "signature must not verify against a different root")
}

func TestVerifyBLSSignatureRejectsWrongKey(t *testing.T) {
	signer, err := NewBLSSigner(testPrivkeyHex())
	require.NoError(t, err)

	other, err := NewBLSSigner("0x" + hex.EncodeToString([]byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c,
		0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
		0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20,
	}))
	require.NoError(t, err)

	message := []byte("register me as a builder")

	sig, err := signer.Sign(message)
	require.NoError(t, err)

	ok, err := VerifyBLSSignature(other.PublicKey(), message, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifyBLSSignature(signer.PublicKey(), message, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}
