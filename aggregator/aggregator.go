// Package aggregator reconstructs per-client gradient contributions from
// their signed scalars and shared seeds, then combines them with a
// coordinate-wise alpha-trimmed mean so that no single Byzantine client can
// dominate the aggregated direction (spec.md §4.6).
package aggregator

import (
	"context"
	"sort"

	"github.com/luxfi/ruth/pkg/codec"
	"github.com/luxfi/ruth/pkg/errs"
	"github.com/luxfi/ruth/pkg/oracle"
	"github.com/luxfi/ruth/pkg/pool"
)

// largeDim is the per-coordinate/per-client count above which work is
// dispatched to the worker pool instead of running inline.
const largeDim = 1 << 12

// Aggregator reconstructs and combines ClientUpdates into one
// AggregatedDirection.
type Aggregator struct {
	TrimRatio float32 // alpha, as passed to New (config.Default uses 0.1)
	pl        *pool.Pool
}

// New builds an Aggregator. pl may be nil, in which case reconstruction and
// trimming run inline.
func New(trimRatio float32, pl *pool.Pool) *Aggregator {
	return &Aggregator{TrimRatio: trimRatio, pl: pl}
}

// Reconstruct computes g_i = update.Scalar * noise(update.SeedID, d) for
// every update, stacked as an n x d matrix (one row per update). A
// malformed seed id is fatal to the round, per spec.md §4.6: the caller
// must abandon the round rather than silently drop the offending update.
func (a *Aggregator) Reconstruct(ctx context.Context, updates []*codec.ClientUpdate, d int) ([][]float32, error) {
	n := len(updates)
	out := make([][]float32, n)

	reconstructOne := func(i int) error {
		v, err := oracle.NoiseWithPool(a.pl, uint64(updates[i].SeedID), d)
		if err != nil {
			return errs.New(errs.InternalError, "aggregator.Reconstruct", err)
		}
		g := make([]float32, d)
		for j, nv := range v {
			g[j] = updates[i].Scalar * nv
		}
		out[i] = g
		return nil
	}

	if a.pl == nil || n < largeDim {
		for i := 0; i < n; i++ {
			if err := reconstructOne(i); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err := a.pl.Parallelize(ctx, n, reconstructOne); err != nil {
		return nil, err
	}
	return out, nil
}

// Aggregate combines an n x d gradient matrix into the coordinate-wise
// alpha-trimmed mean. n == 0 returns the zero vector of length d.
func (a *Aggregator) Aggregate(ctx context.Context, gradients [][]float32, d int) ([]float32, error) {
	n := len(gradients)
	out := make([]float32, d)
	if n == 0 {
		return out, nil
	}

	k := int(float32(n) * a.TrimRatio)
	if k > 0 && k*2 >= n {
		return nil, errs.New(errs.ConfigError, "aggregator.Aggregate", errTrimTooAggressive)
	}

	trimColumn := func(j int) error {
		column := make([]float32, n)
		for i := range gradients {
			column[i] = gradients[i][j]
		}
		if k == 0 {
			out[j] = mean(column)
			return nil
		}
		out[j] = trimmedMean(column, k)
		return nil
	}

	if a.pl == nil || d < largeDim {
		for j := 0; j < d; j++ {
			if err := trimColumn(j); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err := a.pl.Parallelize(ctx, d, trimColumn); err != nil {
		return nil, err
	}
	return out, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errTrimTooAggressive = sentinelErr("trim_ratio discards every sample in this round")

func mean(column []float32) float32 {
	var sum float32
	for _, v := range column {
		sum += v
	}
	return sum / float32(len(column))
}

// trimmedMean sorts column ascending (stably, so ties keep their original
// relative order), discards the lowest and highest k values, and returns
// the mean of what remains.
func trimmedMean(column []float32, k int) float32 {
	idx := make([]int, len(column))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return column[idx[a]] < column[idx[b]] })

	var sum float32
	count := 0
	for _, i := range idx[k : len(idx)-k] {
		sum += column[i]
		count++
	}
	return sum / float32(count)
}
