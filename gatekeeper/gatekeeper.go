// Package gatekeeper verifies an incoming ClientUpdate's signature,
// attestation nonce binding, and device integrity verdict before the
// collector is allowed to stage it (spec.md §4.4).
package gatekeeper

import (
	"context"

	"github.com/luxfi/ruth/internal/obs"
	"github.com/luxfi/ruth/pkg/codec"
	"github.com/luxfi/ruth/pkg/errs"
	"github.com/luxfi/ruth/pkg/party"
	"github.com/luxfi/ruth/signer"
	"golang.org/x/crypto/ed25519"
)

// PublicKeyLookup resolves a device's registered Ed25519 public key. Key
// registration itself happens out-of-band and is outside this core.
type PublicKeyLookup func(deviceID party.DeviceID) (ed25519.PublicKey, bool)

// Gatekeeper verifies ClientUpdates against a key lookup and a remote
// attestation verdict oracle.
type Gatekeeper struct {
	lookupKey PublicKeyLookup
	oracle    VerdictOracle
	minIntegrity bool // require BasicIntegrity == true; always true in this core
}

// New builds a Gatekeeper. oracle is the remote verdict service; an
// unreachable oracle is always treated as fail-closed.
func New(lookupKey PublicKeyLookup, oracle VerdictOracle) *Gatekeeper {
	return &Gatekeeper{lookupKey: lookupKey, oracle: oracle, minIntegrity: true}
}

// Verify runs the full acceptance pipeline for update and returns nil if
// accepted, or a *errs.Error tagged with the rejection category.
func (g *Gatekeeper) Verify(ctx context.Context, update *codec.ClientUpdate) error {
	pub, ok := g.lookupKey(update.DeviceID)
	if !ok {
		obs.Log().Warn().Str("device_id", string(update.DeviceID)).Msg("rejecting update: unknown device")
		return errs.New(errs.SignatureFail, "gatekeeper.Verify", errUnknownDevice)
	}

	payload := signer.CanonicalPayload(update.SeedID, update.Scalar, update.RoundID)
	if !ed25519.Verify(pub, payload, update.Signature) {
		obs.Log().Warn().Str("device_id", string(update.DeviceID)).Uint64("round_id", uint64(update.RoundID)).Msg("rejecting update: signature_fail")
		return errs.New(errs.SignatureFail, "gatekeeper.Verify", errBadSignature)
	}

	expectedNonce := signer.AttestationNonce(update.SeedID, update.Scalar, update.RoundID)

	verdict, err := g.oracle.Verify(ctx, update.AttestationToken)
	if err != nil {
		// VerdictUnreachable is already the error's Kind; always fail-closed.
		return err
	}

	if !verdict.IsValidSignature || (g.minIntegrity && !verdict.BasicIntegrity) {
		obs.Log().Warn().Str("device_id", string(update.DeviceID)).Msg("rejecting update: integrity_fail")
		return errs.New(errs.IntegrityFail, "gatekeeper.Verify", errIntegrityFailed)
	}

	if !nonceMatches(expectedNonce, verdict.Nonce) {
		obs.Log().Warn().Str("device_id", string(update.DeviceID)).Msg("rejecting update: nonce_mismatch")
		return errs.New(errs.NonceMismatch, "gatekeeper.Verify", errNonceMismatch)
	}

	return nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const (
	errUnknownDevice   = sentinelErr("no registered public key for device")
	errBadSignature    = sentinelErr("ed25519 signature verification failed")
	errIntegrityFailed = sentinelErr("attestation failed integrity or signature check")
	errNonceMismatch   = sentinelErr("attestation nonce does not match sha256(payload)")
)
