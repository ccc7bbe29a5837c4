// Package oracle implements the deterministic noise oracle: seed_id -> a
// reproducible standard-normal vector, bit-identical across hosts and
// processes. This is the numerical contract the whole protocol rests on —
// the server reconstructs a client's gradient contribution purely from the
// seed it announced plus the scalar it signed.
package oracle

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/luxfi/ruth/pkg/errs"
	"github.com/luxfi/ruth/pkg/pool"
	"github.com/zeebo/blake3"
)

// largeDim is the threshold above which noise expansion is dispatched to
// the worker pool instead of running inline.
const largeDim = 1 << 16

// Noise returns d i.i.d. N(0,1) float32 samples determined solely by
// seedID. Two invocations with the same (seedID, d), on any host, any
// architecture, any process, produce bit-identical output.
func Noise(seedID uint64, d int) ([]float32, error) {
	return NoiseWithPool(nil, seedID, d)
}

// NoiseWithPool is Noise but dispatches the per-block Box-Muller expansion
// across pl when d is large enough to be worth it. pl may be nil, in which
// case the expansion runs on the calling goroutine.
func NoiseWithPool(pl *pool.Pool, seedID uint64, d int) ([]float32, error) {
	if d <= 0 {
		return nil, errs.New(errs.ConfigError, "oracle.Noise", errConfig("d must be positive"))
	}

	out := make([]float32, d)
	pairs := (d + 1) / 2

	if pl == nil || pairs < largeDim {
		fillRange(seedID, out, 0, pairs)
		return out, nil
	}

	blockSize := 4096
	numBlocks := (pairs + blockSize - 1) / blockSize
	err := pl.Parallelize(context.Background(), numBlocks, func(i int) error {
		start := i * blockSize
		end := start + blockSize
		if end > pairs {
			end = pairs
		}
		fillRange(seedID, out, start, end)
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.InternalError, "oracle.Noise", err)
	}
	return out, nil
}

// fillRange fills out[2*start : min(len(out), 2*end)] with the
// deterministic N(0,1) samples for pair indices [start, end).
func fillRange(seedID uint64, out []float32, start, end int) {
	if start >= end {
		return
	}
	reader := streamFrom(seedID, start)
	buf := make([]byte, 8)
	for pairIdx := start; pairIdx < end; pairIdx++ {
		if _, err := io.ReadFull(reader, buf); err != nil {
			panic(err) // blake3's XOF reader never errs; a failure here is a library invariant break.
		}
		u1 := uniformFromBytes(buf[0:4])
		u2 := uniformFromBytes(buf[4:8])
		z0, z1 := boxMuller(u1, u2)

		i0 := pairIdx * 2
		out[i0] = float32(z0)
		if i0+1 < len(out) {
			out[i0+1] = float32(z1)
		}
	}
}

// streamFrom returns a deterministic byte reader for seedID, already
// advanced past the bytes consumed by pair indices [0, skipPairs).
func streamFrom(seedID uint64, skipPairs int) *blake3.Digest {
	h := blake3.New()
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], seedID)
	_, _ = h.Write(seedBytes[:])
	digest := h.Digest()
	if skipPairs > 0 {
		skip := make([]byte, 8*skipPairs)
		_, _ = io.ReadFull(digest, skip)
	}
	return digest
}

// uniformFromBytes maps 4 bytes to a uniform value in (0, 1), never
// returning exactly 0 so log(u) stays finite.
func uniformFromBytes(b []byte) float64 {
	v := binary.LittleEndian.Uint32(b)
	u := (float64(v) + 1) / (float64(math.MaxUint32) + 2)
	return u
}

// boxMuller performs the standard Box-Muller transform on two independent
// uniform(0,1] samples, returning two independent N(0,1) samples.
func boxMuller(u1, u2 float64) (float64, float64) {
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	return r * math.Cos(theta), r * math.Sin(theta)
}

type errString string

func (e errString) Error() string { return string(e) }

func errConfig(msg string) error { return errString(msg) }
