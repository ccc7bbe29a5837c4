// Package collector stages verified ClientUpdates in a durable store and
// triggers aggregation once a round's quorum is met (spec.md §4.5).
package collector

import "context"

// Status is a RoundState's position in the Open→Aggregating→Closed
// lifecycle (spec.md §3, §9). It is held in the store, not in process
// memory, so a restart never loses it.
type Status string

const (
	StatusOpen        Status = "open"
	StatusAggregating Status = "aggregating"
	StatusClosed      Status = "closed"
)

// Store is the list+counter durable service the collector is built on
// (spec.md §4.5). Implementations: collector/memstore (dependency-free,
// for tests) and collector/redisstore (production, go-redis-backed).
type Store interface {
	// AppendAndIncr atomically appends b to the updates list for round and
	// increments that round's counter, returning the counter's new value.
	AppendAndIncr(ctx context.Context, round uint64, b []byte) (uint64, error)

	// Count returns the current value of round's counter (0 if unset).
	Count(ctx context.Context, round uint64) (uint64, error)

	// ReadAll returns every update appended for round, in append order.
	ReadAll(ctx context.Context, round uint64) ([][]byte, error)

	// DeleteBoth atomically removes the updates list and counter for
	// round. Safe to call on an already-deleted round.
	DeleteBoth(ctx context.Context, round uint64) error

	// TryTransition atomically moves round's status from `from` to `to`
	// and reports whether the transition took effect. A round with no
	// recorded status is implicitly StatusOpen. Used to enforce
	// Open→Aggregating→Closed at most once (spec.md §5 "Ordering
	// guarantees").
	TryTransition(ctx context.Context, round uint64, from, to Status) (bool, error)

	// SetStatus unconditionally sets round's status, used to restore
	// StatusOpen when an aggregation attempt aborts before completing.
	SetStatus(ctx context.Context, round uint64, status Status) error

	// ScanRounds returns every round id whose status is not Closed, so the
	// trigger loop discovers rounds it was never told about in-process — the
	// restart-tolerant discovery mode adopted from the Python
	// prototype's Redis SCAN loop (SPEC_FULL.md §7). memstore also reports
	// a Closed round whose counter is nonzero; the collector's status
	// transition treats such a round as a no-op.
	ScanRounds(ctx context.Context) ([]uint64, error)
}
