package gatekeeper

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/ruth/internal/obs"
	"github.com/luxfi/ruth/pkg/errs"
)

// Verdict is the parsed response from the attestation verdict oracle.
type Verdict struct {
	IsValidSignature bool   `json:"isValidSignature"`
	BasicIntegrity   bool   `json:"basicIntegrity"`
	Nonce            string `json:"nonce"`
}

// VerdictOracle is the remote device-attestation verdict service. It is an
// external collaborator — spec.md §1 treats it as a "verdict oracle" and
// only its interface is specified here.
type VerdictOracle interface {
	Verify(ctx context.Context, token []byte) (*Verdict, error)
}

// oracleDeadline is the hard timeout for the attestation call (spec.md §5):
// exceeding it is VerdictUnreachable, which is always fail-closed.
const oracleDeadline = 5 * time.Second

// HTTPVerdictOracle calls a remote "signedAttestation" verdict endpoint
// over HTTP, generalizing the SafetyNet/Play-Integrity-specific POST in
// the reference implementation (ruth/server/verifier.py) into a
// configurable endpoint + API key.
type HTTPVerdictOracle struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPVerdictOracle builds an oracle client with the package's fixed
// 5-second deadline pre-applied to every request.
func NewHTTPVerdictOracle(endpoint, apiKey string) *HTTPVerdictOracle {
	return &HTTPVerdictOracle{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: oracleDeadline},
	}
}

type verifyRequest struct {
	SignedAttestation string `json:"signedAttestation"`
}

// Verify POSTs the attestation token and parses the verdict. Any network
// error, non-200 status, or exceeded deadline surfaces as a
// VerdictUnreachable error; the gatekeeper treats that as fail-closed.
func (o *HTTPVerdictOracle) Verify(ctx context.Context, token []byte) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, oracleDeadline)
	defer cancel()

	body, err := json.Marshal(verifyRequest{SignedAttestation: string(token)})
	if err != nil {
		return nil, errs.New(errs.VerdictUnreachable, "gatekeeper.Verify", err)
	}

	url := o.Endpoint
	if o.APIKey != "" {
		url = fmt.Sprintf("%s?key=%s", o.Endpoint, o.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.VerdictUnreachable, "gatekeeper.Verify", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		obs.Log().Error().Err(err).Msg("attestation oracle unreachable")
		return nil, errs.New(errs.VerdictUnreachable, "gatekeeper.Verify", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.VerdictUnreachable, "gatekeeper.Verify",
			fmt.Errorf("attestation oracle returned status %d", resp.StatusCode))
	}

	var v Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, errs.New(errs.VerdictUnreachable, "gatekeeper.Verify", err)
	}
	return &v, nil
}

// nonceMatches accepts both hex and base64-of-bytes(hex) encodings of the
// expected nonce, per spec.md §4.4.
func nonceMatches(expectedHex, got string) bool {
	if got == expectedHex {
		return true
	}
	decoded, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		return false
	}
	return hex.EncodeToString(decoded) == expectedHex
}
