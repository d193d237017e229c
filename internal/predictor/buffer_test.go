package predictor

import (
	"errors"
	"testing"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

func bar(t int64, c float64) types.Bar {
	return types.Bar{Symbol: "EURUSD", Time: t, Open: c, High: c, Low: c, Close: c, Volume: 1}
}

func TestBarBufferOrdering(t *testing.T) {
	b := NewBarBuffer(3)
	if err := b.Push(bar(60, 1.1)); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := b.Push(bar(120, 1.2)); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := b.Push(bar(120, 1.3)); !errors.Is(err, types.ErrOutOfOrderBar) {
		t.Fatalf("expected ErrOutOfOrderBar for equal timestamp, got %v", err)
	}
	if err := b.Push(bar(60, 1.3)); !errors.Is(err, types.ErrOutOfOrderBar) {
		t.Fatalf("expected ErrOutOfOrderBar for earlier timestamp, got %v", err)
	}
}

func TestBarBufferCapacityAndReady(t *testing.T) {
	b := NewBarBuffer(3)
	if b.Ready() {
		t.Fatal("empty buffer must not be ready")
	}
	for i := int64(1); i <= 3; i++ {
		if err := b.Push(bar(i*60, float64(i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if !b.Ready() {
		t.Fatal("buffer at capacity must be ready")
	}
	if err := b.Push(bar(4*60, 4)); err != nil {
		t.Fatalf("push 4: %v", err)
	}
	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected capacity-bounded length 3, got %d", len(snap))
	}
	if snap[0].Time != 120 {
		t.Errorf("expected oldest bar evicted, snapshot[0].Time = %d, want 120", snap[0].Time)
	}
	if snap[len(snap)-1].Time != 240 {
		t.Errorf("expected newest bar at tail, got %d", snap[len(snap)-1].Time)
	}
}

func TestBarBufferSnapshotIsCopy(t *testing.T) {
	b := NewBarBuffer(3)
	_ = b.Push(bar(60, 1))
	snap := b.Snapshot()
	snap[0].Close = 999
	snap2 := b.Snapshot()
	if snap2[0].Close == 999 {
		t.Fatal("mutating a snapshot must not affect the buffer")
	}
}
