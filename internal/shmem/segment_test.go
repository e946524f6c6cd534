//go:build linux

package shmem

import (
	"fmt"
	"os"
	"testing"
	"time"
)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, os.Getpid(), time.Now().UnixNano())
}

func TestCreateOpenRoundTrip(t *testing.T) {
	name := uniqueName("seg-roundtrip")
	created, err := Create(name, 8192)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer created.Close()

	opened, err := Open(name)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer opened.Close()

	if opened.Capacity() != 8192 {
		t.Fatalf("capacity mismatch: %d", opened.Capacity())
	}
	if got := opened.Header().ServerPID(); got != uint32(os.Getpid()) {
		t.Fatalf("server pid mismatch: %d", got)
	}
	if !opened.Header().ClientReady() {
		t.Fatal("Open should set the client-ready flag")
	}

	// Both mappings address the same physical memory.
	created.Ring().SetWriteCursor(42)
	if got := opened.Ring().WriteCursor(); got != 42 {
		t.Fatalf("cursor not shared across mappings: %d", got)
	}
}

func TestCreateIsExclusive(t *testing.T) {
	name := uniqueName("seg-excl")
	seg, err := Create(name, 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer seg.Close()

	if _, err := Create(name, 4096); err == nil {
		t.Fatal("second Create with the same name should fail")
	}
}

func TestOpenRejectsForeignFile(t *testing.T) {
	name := uniqueName("seg-foreign")
	path := segmentPath(name)
	if err := os.WriteFile(path, make([]byte, SegmentSize(4096)), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	defer os.Remove(path)

	if _, err := Open(name); err == nil {
		t.Fatal("Open should reject a file without our magic")
	}
}

func TestCloseUnlinksForOwner(t *testing.T) {
	name := uniqueName("seg-unlink")
	seg, err := Create(name, 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	path := seg.Path
	if err := seg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("owner Close should unlink the file, stat err=%v", err)
	}
	// Idempotent.
	if err := seg.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := Remove(name); err != nil {
		t.Fatalf("Remove of missing segment should succeed: %v", err)
	}
}

func TestSegmentName(t *testing.T) {
	if got := SegmentName("editorsvc", 7, DirSend); got != "editorsvc_7_send" {
		t.Fatalf("unexpected segment name %q", got)
	}
	if got := SegmentName("editorsvc", 7, DirRecv); got != "editorsvc_7_recv" {
		t.Fatalf("unexpected segment name %q", got)
	}
}

func TestClampCapacity(t *testing.T) {
	cases := []struct {
		in   uint64
		want uint64
	}{
		{0, DefaultRingCapacity},
		{1, MinRingCapacity},
		{4096, 4096},
		{5000, 8192},
		{MaxRingCapacity + 1, MaxRingCapacity},
	}
	for _, c := range cases {
		if got := ClampCapacity(c.in); got != c.want {
			t.Fatalf("ClampCapacity(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestValidateHeaderVersionMismatch(t *testing.T) {
	name := uniqueName("seg-version")
	seg, err := Create(name, 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer seg.Close()

	seg.Header().SetVersion(99)
	if err := ValidateHeader(seg.Header(), seg.Header().TotalSize()); err == nil {
		t.Fatal("expected version mismatch error")
	}
}
