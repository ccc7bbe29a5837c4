// Package codec defines the wire records exchanged between coordinator,
// client, and server (spec.md §6), and the opaque byte encoding used to
// persist them in the durable store. The schema/transport boundary itself
// is treated as an external collaborator — this package is the concrete,
// minimal implementation of that boundary needed to make the collector and
// aggregator actually run.
package codec

import "github.com/luxfi/ruth/pkg/party"

// SeedSet is published by the coordinator to all eligible clients at the
// start of round RoundID.
type SeedSet struct {
	RoundID    party.RoundID          `cbor:"round_id"`
	PRNGConfig map[string]interface{} `cbor:"prng_config"`
	Seeds      []party.SeedID         `cbor:"seeds"`
	Epsilon    float32                `cbor:"epsilon"`
}

// ClientUpdate is the uplink record a client emits after a training step.
type ClientUpdate struct {
	RoundID          party.RoundID  `cbor:"round_id"`
	DeviceID         party.DeviceID `cbor:"device_id"`
	SeedID           party.SeedID   `cbor:"seed_id"`
	Scalar           float32        `cbor:"scalar"`
	Loss             float32        `cbor:"loss"`
	Signature        []byte         `cbor:"signature"`
	AttestationToken []byte         `cbor:"attestation_token"`
}

// AggResponse is returned to clients once a round has aggregated.
type AggResponse struct {
	ServerUpdates  map[string]interface{} `cbor:"server_updates"`
	NextRoundHint  *string                `cbor:"next_round_hint,omitempty"`
}
