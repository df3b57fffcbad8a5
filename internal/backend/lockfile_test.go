package backend

import (
	"math"
	"os"
	"testing"
)

func TestLockfileRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := WriteLockfile(4140, "secret-token", "v1.2.0"); err != nil {
		t.Fatalf("WriteLockfile: %v", err)
	}
	lf, err := ReadLockfile()
	if err != nil {
		t.Fatalf("ReadLockfile: %v", err)
	}
	if lf.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", lf.PID, os.Getpid())
	}
	if lf.Port != 4140 || lf.Token != "secret-token" || lf.Version != "v1.2.0" {
		t.Errorf("lockfile = %+v", lf)
	}
	if lf.StartedAt.IsZero() {
		t.Error("started_at not set")
	}

	if err := RemoveLockfile(); err != nil {
		t.Fatalf("RemoveLockfile: %v", err)
	}
	if _, err := ReadLockfile(); err == nil {
		t.Error("expected error reading removed lockfile")
	}
	// Removing twice is not an error.
	if err := RemoveLockfile(); err != nil {
		t.Errorf("second RemoveLockfile: %v", err)
	}
}

func TestIsLockfileStale(t *testing.T) {
	// A PID beyond any real pid space marks the lockfile stale without
	// reaching the health endpoint.
	stale := &LockfileData{PID: math.MaxInt32, Port: 1}
	if !IsLockfileStale(stale) {
		t.Error("dead pid should be stale")
	}
	if !IsProcessAlive(os.Getpid()) {
		t.Error("own process should be alive")
	}
}
