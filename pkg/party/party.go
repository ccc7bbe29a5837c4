// Package party defines the lightweight identity types shared across the
// protocol, generalizing the MPC notion of a party identity to a federated
// learning device/round identity.
package party

// DeviceID identifies a single client device participating in training.
type DeviceID string

// RoundID sequences federated learning rounds. There is no ordering
// guarantee across rounds beyond this numeric value.
type RoundID uint64

// SeedID identifies one entry of a round's SeedSet.
type SeedID uint64
