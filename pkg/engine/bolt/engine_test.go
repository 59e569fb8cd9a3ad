package bolt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/kvs/pkg/kverr"
)

func TestSetGetRemove(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	if err := e.Set("k1", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := e.Get("k1")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	if err := e.Remove("k1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, err := e.Get("k1"); err != nil || ok {
		t.Fatalf("Get after Remove = ok=%v err=%v", ok, err)
	}
}

func TestRemoveMissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	err = e.Remove("nope")
	if err == nil || kverr.KindOf(err) != kverr.KeyNotFound {
		t.Fatalf("Remove missing key = %v, want KeyNotFound", err)
	}
}

func TestReopenRecoversState(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Set("a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	if v, ok, err := e2.Get("a"); err != nil || !ok || v != "1" {
		t.Fatalf("Get after reopen = %q, %v, %v", v, ok, err)
	}
}

func TestCloneCloseDoesNotCloseSharedDB(t *testing.T) {
	dir := t.TempDir()
	root, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer root.Shutdown()

	clone := root.Clone().(*Engine)
	if err := clone.Close(); err != nil {
		t.Fatalf("clone Close: %v", err)
	}

	// The shared *bolt.DB must still be usable through root and through a
	// second clone after the first clone's Close returned.
	if err := root.Set("k", "v"); err != nil {
		t.Fatalf("Set after clone Close: %v", err)
	}
	other := root.Clone().(*Engine)
	if v, ok, err := other.Get("k"); err != nil || !ok || v != "v" {
		t.Fatalf("Get via second clone after first clone Close = %q, %v, %v", v, ok, err)
	}
}

func TestRootShutdownClosesSharedDB(t *testing.T) {
	dir := t.TempDir()
	root, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	clone := root.Clone().(*Engine)

	if err := root.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, _, err := clone.Get("k"); err == nil {
		t.Fatalf("expected Get on a clone to fail once the root handle is shut down")
	}
}

func TestMarkerMismatchRejectsOpen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "engine"), []byte("kvs"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Open(dir); err == nil {
		t.Fatalf("expected Open to reject mismatched engine marker")
	}
}
