package store

import (
	"path/filepath"
	"testing"

	"surface/internal/types"
)

func testSessions(ids ...string) []*types.Session {
	out := make([]*types.Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, &types.Session{ID: id, State: types.SessionStateRunning})
	}
	return out
}

func TestSnapshotCacheSaveAndLoad(t *testing.T) {
	cache, err := NewSnapshotCache(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSnapshotCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Save("/work/alpha", testSessions("s1", "s2")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sessions, found, err := cache.Load("/work/alpha")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found || len(sessions) != 2 || sessions[0].ID != "s1" {
		t.Fatalf("unexpected load result: found=%v sessions=%#v", found, sessions)
	}

	_, found, err = cache.Load("/work/unknown")
	if err != nil {
		t.Fatalf("Load unknown: %v", err)
	}
	if found {
		t.Fatalf("unknown project reported found")
	}
}

func TestSnapshotCacheSaveOverwrites(t *testing.T) {
	cache, err := NewSnapshotCache(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSnapshotCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Save("/work/alpha", testSessions("s1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cache.Save("/work/alpha", testSessions("s2")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sessions, _, err := cache.Load("/work/alpha")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s2" {
		t.Fatalf("overwrite failed: %#v", sessions)
	}
}

func TestSnapshotCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")

	cache, err := NewSnapshotCache(path)
	if err != nil {
		t.Fatalf("NewSnapshotCache: %v", err)
	}
	if err := cache.Save("/work/alpha", testSessions("s1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cache, err = NewSnapshotCache(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer cache.Close()
	all, err := cache.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || len(all["/work/alpha"]) != 1 {
		t.Fatalf("unexpected contents after reopen: %#v", all)
	}
}

func TestSnapshotCacheDelete(t *testing.T) {
	cache, err := NewSnapshotCache(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSnapshotCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Save("/work/alpha", testSessions("s1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cache.Delete("/work/alpha"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, found, err := cache.Load("/work/alpha")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatalf("deleted snapshot still present")
	}
}

func TestSnapshotCacheRejectsEmptyInputs(t *testing.T) {
	if _, err := NewSnapshotCache("  "); err == nil {
		t.Fatalf("empty path accepted")
	}
	cache, err := NewSnapshotCache(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSnapshotCache: %v", err)
	}
	defer cache.Close()
	if err := cache.Save("", nil); err == nil {
		t.Fatalf("empty project path accepted")
	}
}

func TestSnapshotCacheNilReceiverIsSafe(t *testing.T) {
	var cache *SnapshotCache
	if err := cache.Save("/work/alpha", nil); err != nil {
		t.Fatalf("nil Save: %v", err)
	}
	if _, found, err := cache.Load("/work/alpha"); err != nil || found {
		t.Fatalf("nil Load: found=%v err=%v", found, err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
