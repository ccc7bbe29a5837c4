// Package signer implements the client-side signing of update payloads and
// the binding between a signed payload and its device-attestation nonce
// (spec.md §4.3).
package signer

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strconv"

	"github.com/luxfi/ruth/internal/obs"
	"github.com/luxfi/ruth/pkg/errs"
	"github.com/luxfi/ruth/pkg/party"
	"golang.org/x/crypto/ed25519"
)

// Signer holds a device's Ed25519 key and signs update payloads.
type Signer struct {
	priv ed25519.PrivateKey
}

// NewSigner wraps an existing Ed25519 private key.
func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv}
}

// LoadFromEnv loads a base64-encoded Ed25519 private key from the named
// environment variable, generating an ephemeral key if the variable is
// unset or malformed (a malformed value is logged as a warning; an unset
// variable is not logged) — mirroring the device-keystore fallback
// of the reference client (key storage is platform-delegated; an env var
// stands in for Keystore/Secure Enclave in this core).
func LoadFromEnv(envVar string) (*Signer, error) {
	if raw, ok := os.LookupEnv(envVar); ok {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err == nil && len(decoded) == ed25519.PrivateKeySize {
			return NewSigner(ed25519.PrivateKey(decoded)), nil
		}
		obs.Log().Warn().Str("env", envVar).Msg("malformed signing key in environment, generating ephemeral key")
	}
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errs.New(errs.InternalError, "signer.LoadFromEnv", err)
	}
	return NewSigner(priv), nil
}

// PublicKey returns the public half of the device's signing key; this is
// registered with the server out-of-band.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// CanonicalPayload builds the exact byte sequence signed and hashed by both
// client and server: "{seed_id}:{scalar}:{round_id}". The decimal form of
// scalar is pinned to strconv.FormatFloat(_, 'g', -1, 32), the shortest
// string that round-trips through float32 — both sides run the identical
// Go stdlib function, closing spec OQ-2.
func CanonicalPayload(seedID party.SeedID, scalar float32, roundID party.RoundID) []byte {
	s := strconv.FormatUint(uint64(seedID), 10) + ":" +
		strconv.FormatFloat(float64(scalar), 'g', -1, 32) + ":" +
		strconv.FormatUint(uint64(roundID), 10)
	return []byte(s)
}

// Sign produces the Ed25519 signature over the canonical payload.
func (s *Signer) Sign(seedID party.SeedID, scalar float32, roundID party.RoundID) []byte {
	payload := CanonicalPayload(seedID, scalar, roundID)
	return ed25519.Sign(s.priv, payload)
}

// AttestationNonce computes the nonce that binds a device-attestation token
// to this specific contribution: sha256_hex(payload).
func AttestationNonce(seedID party.SeedID, scalar float32, roundID party.RoundID) string {
	sum := sha256.Sum256(CanonicalPayload(seedID, scalar, roundID))
	return hex.EncodeToString(sum[:])
}

// BindingHash implements the model-identity-bound variant from spec.md §6
// ("generate_binding_hash"): sha256_hex("{seed_id}:{scalar}:{model_hash}").
// Clients that attest against a model identity rather than a round id use
// this instead of AttestationNonce.
func BindingHash(seedID party.SeedID, scalar float32, modelHash string) string {
	s := strconv.FormatUint(uint64(seedID), 10) + ":" +
		strconv.FormatFloat(float64(scalar), 'g', -1, 32) + ":" +
		modelHash
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// AttestationProvider is the device's integrity-attestation API (Play
// Integrity / App Attest). It is an external collaborator — only its
// interface is specified here.
type AttestationProvider interface {
	// Attest returns a platform attestation token whose embedded integrity
	// claim is bound to nonce.
	Attest(nonce string) ([]byte, error)
}
