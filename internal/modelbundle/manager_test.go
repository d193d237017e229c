package modelbundle

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestManagerLoadAllAndGet(t *testing.T) {
	dir := t.TempDir()
	meta := validMetadata()
	writeTestArchive(t, filepath.Join(dir, "EURUSD.zip"), &meta, "")
	writeTestArchive(t, filepath.Join(dir, "GBPUSD.zip"), &meta, "")

	mgr := NewManager(dir, NewLoader(stubFactory(0, 0)), zap.NewNop())
	if err := mgr.LoadAll([]string{"EURUSD", "GBPUSD"}); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if _, ok := mgr.Get("EURUSD"); !ok {
		t.Error("expected EURUSD bundle to be loaded")
	}
	if _, ok := mgr.Get("USDJPY"); ok {
		t.Error("did not expect USDJPY bundle to be present")
	}
}

func TestManagerLoadAllFailsOnMissingArchive(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir, NewLoader(stubFactory(0, 0)), zap.NewNop())
	if err := mgr.LoadAll([]string{"EURUSD"}); err == nil {
		t.Fatal("expected error for missing archive")
	}
}
