package backend

import (
	"context"
	"testing"

	"github.com/xtxerr/strata/internal/storage/types"
)

func TestArchive_RoundTrip(t *testing.T) {
	a, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	ctx := context.Background()

	env := types.NewRawEnvelope([]byte(`{"sessions":120}`))
	if err := a.Set(ctx, "session_log_2025", env); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := a.Get(ctx, "session_log_2025")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got.Data) != `{"sessions":120}` {
		t.Errorf("data corrupted: %s", got.Data)
	}

	exists, err := a.Exists(ctx, "session_log_2025")
	if err != nil || !exists {
		t.Errorf("exists: got %v, %v", exists, err)
	}
}

func TestArchive_Tombstone(t *testing.T) {
	a, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	ctx := context.Background()

	a.Set(ctx, "k", types.NewRawEnvelope([]byte("v")))

	removed, err := a.Delete(ctx, "k")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Error("key visible after tombstone")
	}
	if exists, _ := a.Exists(ctx, "k"); exists {
		t.Error("exists after tombstone")
	}
	if removed, _ := a.Delete(ctx, "k"); removed {
		t.Error("second delete reported removal")
	}
}

func TestArchive_OverwriteKeepsNewest(t *testing.T) {
	a, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	ctx := context.Background()

	a.Set(ctx, "k", types.NewRawEnvelope([]byte("old")))
	a.Set(ctx, "k", types.NewRawEnvelope([]byte("new")))

	got, ok, _ := a.Get(ctx, "k")
	if !ok || string(got.Data) != "new" {
		t.Errorf("expected newest row, got ok=%v data=%s", ok, got.Data)
	}
}

func TestArchive_IndexRebuiltOnOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	first.Set(ctx, "kept", types.NewRawEnvelope([]byte("v")))
	first.Set(ctx, "dropped", types.NewRawEnvelope([]byte("v")))
	first.Delete(ctx, "dropped")

	second, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("reopen archive: %v", err)
	}

	if _, ok, err := second.Get(ctx, "kept"); !ok || err != nil {
		t.Errorf("kept key missing after reopen: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := second.Get(ctx, "dropped"); ok {
		t.Error("tombstoned key resurrected after reopen")
	}
}
