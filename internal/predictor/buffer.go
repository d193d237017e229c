package predictor

import (
	"fmt"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// DefaultBufferCapacity is the default bar buffer capacity (§4.3): large
// enough to cover every indicator lookback the feature engine uses.
const DefaultBufferCapacity = 350

// BarBuffer is a bounded FIFO of closed bars for one symbol (§4.3). Not
// safe for concurrent use; owned exclusively by one symbol's predictor
// task (§4.6 concurrency note).
type BarBuffer struct {
	capacity int
	bars     []types.Bar
	lastTime int64
	hasLast  bool
}

// NewBarBuffer builds an empty buffer with the given capacity.
func NewBarBuffer(capacity int) *BarBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &BarBuffer{capacity: capacity, bars: make([]types.Bar, 0, capacity)}
}

// Push appends bar, evicting the oldest entry once at capacity. Rejects a
// bar whose timestamp does not strictly advance past the last pushed bar
// (§4.3).
func (b *BarBuffer) Push(bar types.Bar) error {
	if b.hasLast && bar.Time <= b.lastTime {
		return fmt.Errorf("buffer: bar time %d <= last bar time %d: %w", bar.Time, b.lastTime, types.ErrOutOfOrderBar)
	}
	if len(b.bars) == b.capacity {
		copy(b.bars, b.bars[1:])
		b.bars = b.bars[:len(b.bars)-1]
	}
	b.bars = append(b.bars, bar)
	b.lastTime = bar.Time
	b.hasLast = true
	return nil
}

// Len returns the number of bars currently buffered.
func (b *BarBuffer) Len() int { return len(b.bars) }

// Ready reports whether the buffer holds a full window (§4.3).
func (b *BarBuffer) Ready() bool { return len(b.bars) >= b.capacity }

// Snapshot returns an ordered, oldest-first view of the buffered bars. The
// returned slice is a copy; callers may not mutate the buffer's internals
// through it.
func (b *BarBuffer) Snapshot() []types.Bar {
	out := make([]types.Bar, len(b.bars))
	copy(out, b.bars)
	return out
}
