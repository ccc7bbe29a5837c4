package aggregator_test

import (
	"context"
	"math"
	"testing"

	"github.com/luxfi/ruth/aggregator"
	"github.com/luxfi/ruth/pkg/codec"
	"github.com/luxfi/ruth/pkg/oracle"
	"github.com/luxfi/ruth/pkg/party"
	"github.com/luxfi/ruth/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructMatchesScalarTimesNoise(t *testing.T) {
	agg := aggregator.New(0.1, nil)
	updates := []*codec.ClientUpdate{{SeedID: 7, Scalar: 2.5}}

	got, err := agg.Reconstruct(context.Background(), updates, 50)
	require.NoError(t, err)

	want, err := oracle.Noise(7, 50)
	require.NoError(t, err)
	for j := range want {
		assert.InDelta(t, float64(2.5*want[j]), float64(got[0][j]), 1e-6)
	}
}

func TestAggregateEmptyReturnsZeroVector(t *testing.T) {
	agg := aggregator.New(0.1, nil)
	got, err := agg.Aggregate(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 10), got)
}

func TestAggregatePlainMeanWhenKIsZero(t *testing.T) {
	agg := aggregator.New(0.1, nil) // n=5 -> k = floor(0.5) = 0
	grads := [][]float32{{1}, {2}, {3}, {4}, {5}}
	got, err := agg.Aggregate(context.Background(), grads, 1)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, float64(got[0]), 1e-6)
}

func TestAggregateTrimsExtremes(t *testing.T) {
	agg := aggregator.New(0.2, nil) // n=10 -> k=2
	grads := make([][]float32, 10)
	for i := range grads {
		grads[i] = []float32{float32(i)} // 0..9
	}
	got, err := agg.Aggregate(context.Background(), grads, 1)
	require.NoError(t, err)
	// discard {0,1} and {8,9}, mean of {2..7} = 4.5
	assert.InDelta(t, 4.5, float64(got[0]), 1e-6)
}

func TestAggregateRejectsOverAggressiveTrim(t *testing.T) {
	agg := aggregator.New(0.7, nil) // n=3 -> k=2, 2k>=n
	grads := [][]float32{{1}, {2}, {3}}
	_, err := agg.Aggregate(context.Background(), grads, 1)
	require.Error(t, err)
}

func TestByzantineBoundOneAdversary(t *testing.T) {
	const n = 11 // trim_ratio 0.1 -> k=1, enough to drop a single outlier per coordinate
	const d = 120
	const maxNorm = 5.0
	pl := pool.NewPool(2)
	defer pl.TearDown()
	agg := aggregator.New(0.1, pl)

	updates := make([]*codec.ClientUpdate, n)
	for i := 0; i < n; i++ {
		scalar := float32(1.0)
		if i == n-1 {
			scalar = 100 * maxNorm // adversary: 100x max_norm, 500x the honest scalar of 1.0
		}
		updates[i] = &codec.ClientUpdate{SeedID: party.SeedID(1000 + i), Scalar: scalar}
	}

	grads, err := agg.Reconstruct(context.Background(), updates, d)
	require.NoError(t, err)

	result, err := agg.Aggregate(context.Background(), grads, d)
	require.NoError(t, err)

	honestMean := make([]float32, d)
	for i := 0; i < n-1; i++ {
		for j := 0; j < d; j++ {
			honestMean[j] += grads[i][j]
		}
	}
	for j := range honestMean {
		honestMean[j] /= float32(n - 1)
	}

	distToHonest := l2Distance(result, honestMean)
	distToAdversary := l2Distance(result, grads[n-1])

	assert.Less(t, distToHonest, distToAdversary)
	assert.Less(t, float64(norm(result)), 100.0)
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func norm(a []float32) float64 {
	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
