package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/luxfi/ruth/aggregator"
	"github.com/luxfi/ruth/gatekeeper"
	"github.com/luxfi/ruth/internal/obs"
	"github.com/luxfi/ruth/pkg/codec"
	"github.com/luxfi/ruth/pkg/errs"
)

// DefaultPollInterval is the trigger loop's scanning cadence (spec.md §4.5).
const DefaultPollInterval = time.Second

// OnAggregated is invoked once per round, after its direction has been
// computed and before the round's keys are deleted.
type OnAggregated func(round uint64, direction []float32)

// Collector stages verified ClientUpdates for each round and runs the
// single cooperative background task that triggers aggregation once a
// round's quorum is met (spec.md §4.5).
type Collector struct {
	store        Store
	gatekeeper   *gatekeeper.Gatekeeper
	aggregator   *aggregator.Aggregator
	k            uint64
	dim          int
	pollInterval time.Duration
	onAggregated OnAggregated

	running int32 // atomic bool; 1 while Run is accepting submissions
}

// New builds a Collector. k is the quorum (spec.md's K); dim is the
// gradient dimension d shared by every round. A zero pollInterval uses
// DefaultPollInterval.
func New(store Store, gk *gatekeeper.Gatekeeper, agg *aggregator.Aggregator, k uint64, dim int, pollInterval time.Duration, onAggregated OnAggregated) *Collector {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Collector{
		store:        store,
		gatekeeper:   gk,
		aggregator:   agg,
		k:            k,
		dim:          dim,
		pollInterval: pollInterval,
		onAggregated: onAggregated,
	}
}

// Submit verifies update and, if accepted, atomically stages it for its
// round. Returns nil on Accepted, or a *errs.Error otherwise (spec.md
// §4.5's submission path).
func (c *Collector) Submit(ctx context.Context, update *codec.ClientUpdate) error {
	if atomic.LoadInt32(&c.running) == 0 {
		return errs.New(errs.Shutdown, "collector.Submit", errNotRunning)
	}

	if err := c.gatekeeper.Verify(ctx, update); err != nil {
		return err
	}

	b, err := codec.EncodeUpdate(update)
	if err != nil {
		return err
	}

	if _, err := c.store.AppendAndIncr(ctx, uint64(update.RoundID), b); err != nil {
		obs.Log().Error().Err(err).Uint64("round_id", uint64(update.RoundID)).Msg("collector: append failed")
		return errs.New(errs.StoreError, "collector.Submit", err)
	}
	return nil
}

// Run starts the trigger loop and blocks until ctx is cancelled or Stop is
// called. Submissions are accepted only while Run is executing.
func (c *Collector) Run(ctx context.Context) error {
	atomic.StoreInt32(&c.running, 1)
	defer atomic.StoreInt32(&c.running, 0)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if atomic.LoadInt32(&c.running) == 0 {
				return nil
			}
			c.pollOnce(ctx)
		}
	}
}

// Stop requests cooperative shutdown: the loop exits at the next poll
// boundary and subsequent Submit calls fail with an *errs.Error of kind
// errs.Shutdown. In-flight
// aggregation is allowed to finish (spec.md §5 "Cancellation").
func (c *Collector) Stop() {
	atomic.StoreInt32(&c.running, 0)
}

func (c *Collector) pollOnce(ctx context.Context) {
	rounds, err := c.store.ScanRounds(ctx)
	if err != nil {
		obs.Log().Error().Err(err).Msg("collector: scan rounds failed")
		return
	}
	for _, r := range rounds {
		count, err := c.store.Count(ctx, r)
		if err != nil {
			obs.Log().Error().Err(err).Uint64("round_id", r).Msg("collector: read count failed")
			continue
		}
		if count < c.k {
			continue
		}
		c.tryAggregate(ctx, r)
	}
}

// tryAggregate is a no-op if the round is already Aggregating or Closed:
// the CAS on the status key enforces at most one in-flight aggregation per
// round (spec.md §4.5, §5 "Ordering guarantees").
func (c *Collector) tryAggregate(ctx context.Context, round uint64) {
	ok, err := c.store.TryTransition(ctx, round, StatusOpen, StatusAggregating)
	if err != nil {
		obs.Log().Error().Err(err).Uint64("round_id", round).Msg("collector: status transition failed")
		return
	}
	if !ok {
		return
	}

	raw, err := c.store.ReadAll(ctx, round)
	if err != nil {
		obs.Log().Error().Err(err).Uint64("round_id", round).Msg("collector: read updates failed")
		c.revertToOpen(ctx, round)
		return
	}

	updates := make([]*codec.ClientUpdate, 0, len(raw))
	for _, b := range raw {
		u, err := codec.DecodeUpdate(b)
		if err != nil {
			obs.Log().Error().Err(err).Uint64("round_id", round).Msg("collector: decode update failed")
			c.revertToOpen(ctx, round)
			return
		}
		updates = append(updates, u)
	}

	gradients, err := c.aggregator.Reconstruct(ctx, updates, c.dim)
	if err != nil {
		// Fatal per spec.md §4.6/§7: malformed seed_id halts the round for
		// operator inspection rather than silently retrying or purging.
		obs.Log().Error().Err(err).Uint64("round_id", round).Msg("collector: aggregation halted, round left in Aggregating")
		return
	}

	direction, err := c.aggregator.Aggregate(ctx, gradients, c.dim)
	if err != nil {
		obs.Log().Error().Err(err).Uint64("round_id", round).Msg("collector: aggregation halted, round left in Aggregating")
		return
	}

	if c.onAggregated != nil {
		c.onAggregated(round, direction)
	}

	c.deleteRoundUntilSuccess(ctx, round)
}

// revertToOpen restores StatusOpen after an aggregation attempt aborts
// before reaching the fatal-halt point, so a later poll can retry it
// instead of leaving the round stuck in Aggregating over a transient
// store read failure.
func (c *Collector) revertToOpen(ctx context.Context, round uint64) {
	if err := c.store.SetStatus(ctx, round, StatusOpen); err != nil {
		obs.Log().Error().Err(err).Uint64("round_id", round).Msg("collector: failed to revert round status")
	}
}

// deleteRoundUntilSuccess removes the round's updates/count keys, retrying
// with backoff: a stale updates/count pair is tolerable, but leaving it
// behind would corrupt the next round's counter if round ids are ever
// reused, so deletion MUST eventually succeed (spec.md §7).
func (c *Collector) deleteRoundUntilSuccess(ctx context.Context, round uint64) {
	backoff := 50 * time.Millisecond
	for {
		if err := c.store.DeleteBoth(ctx, round); err != nil {
			obs.Log().Error().Err(err).Uint64("round_id", round).Msg("collector: cleanup failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		break
	}
	if err := c.store.SetStatus(ctx, round, StatusClosed); err != nil {
		obs.Log().Error().Err(err).Uint64("round_id", round).Msg("collector: failed to mark round closed")
	}
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errNotRunning = sentinelErr("collector is not running")
