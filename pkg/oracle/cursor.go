package oracle

import "github.com/luxfi/ruth/pkg/errs"

// Cursor implements the client-side seed selection: next_seed() = seeds[epoch
// mod |seeds|], with epoch incrementing on every call. The cursor advances
// even when the step that consumed the seed later fails, so a seed is never
// reused across local failures (spec OQ-5: advancing is intentional).
type Cursor struct {
	seeds []uint64
	epoch uint64
}

// NewCursor builds a cursor over seeds. An empty seeds slice is a
// ConfigError, since the cursor could never produce a seed.
func NewCursor(seeds []uint64) (*Cursor, error) {
	if len(seeds) == 0 {
		return nil, errs.New(errs.ConfigError, "oracle.NewCursor", errConfig("seeds must be non-empty"))
	}
	cp := make([]uint64, len(seeds))
	copy(cp, seeds)
	return &Cursor{seeds: cp}, nil
}

// Next returns the next seed in rotation and advances the cursor
// unconditionally.
func (c *Cursor) Next() uint64 {
	seed := c.seeds[c.epoch%uint64(len(c.seeds))]
	c.epoch++
	return seed
}

// Epoch reports the number of seeds handed out so far.
func (c *Cursor) Epoch() uint64 { return c.epoch }
