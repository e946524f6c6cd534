//go:build linux

package ring

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/not-vinayakverma71/ipcbridge/internal/shmem"
)

func testRing(t *testing.T, capacity uint64) *Ring {
	t.Helper()
	name := fmt.Sprintf("ring-test-%d-%d", time.Now().UnixNano(), capacity)
	seg, err := shmem.Create(name, capacity)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	t.Cleanup(func() { seg.Close() })
	return New(seg)
}

func TestWriteReadRoundTrip(t *testing.T) {
	r := testRing(t, 4096)
	data := []byte("hello ring")

	if err := r.TryWrite(data); err != nil {
		t.Fatalf("TryWrite failed: %v", err)
	}
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(buf[:n], data) {
		t.Fatalf("data mismatch: got %q, want %q", buf[:n], data)
	}
}

func TestFIFOOrdering(t *testing.T) {
	r := testRing(t, 4096)

	var want []byte
	for i := 0; i < 20; i++ {
		chunk := bytes.Repeat([]byte{byte(i + 1)}, 50)
		if err := r.TryWrite(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
		want = append(want, chunk...)
	}

	var got []byte
	buf := make([]byte, 128)
	for len(got) < len(want) {
		n, err := r.Read(buf)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if n == 0 {
			t.Fatal("ring empty before all writes were drained")
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("reads out of order or corrupted")
	}
}

func TestWrapAround(t *testing.T) {
	r := testRing(t, 4096)
	capacity := r.Capacity()

	// Advance the cursors close to the wrap point, then write a chunk that
	// must split across it.
	pad := make([]byte, capacity-100)
	if err := r.TryWrite(pad); err != nil {
		t.Fatalf("pad write failed: %v", err)
	}
	drain := make([]byte, capacity)
	if _, err := r.Read(drain); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := r.TryWrite(data); err != nil {
		t.Fatalf("wrapping write failed: %v", err)
	}
	buf := make([]byte, 300)
	total := 0
	for total < len(data) {
		n, err := r.Read(buf[total:])
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		total += n
	}
	if !bytes.Equal(buf, data) {
		t.Fatal("wrapped data corrupted")
	}
}

func TestWouldBlockPreservesUnreadData(t *testing.T) {
	r := testRing(t, 4096)
	capacity := r.Capacity()

	fill := bytes.Repeat([]byte{0xAB}, int(capacity))
	if err := r.TryWrite(fill); err != nil {
		t.Fatalf("filling write failed: %v", err)
	}

	// Overflow attempts, including write sequences totaling well over 2x
	// capacity, must all observe WouldBlock and leave the ring untouched.
	for i := 0; i < 3; i++ {
		if err := r.TryWrite([]byte("overflow")); err != ErrWouldBlock {
			t.Fatalf("expected ErrWouldBlock, got %v", err)
		}
	}
	if r.Used() != capacity {
		t.Fatalf("used changed after rejected writes: %d", r.Used())
	}

	got := make([]byte, capacity)
	total := 0
	for total < int(capacity) {
		n, err := r.Read(got[total:])
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		total += n
	}
	if !bytes.Equal(got, fill) {
		t.Fatal("unread data corrupted by rejected writes")
	}

	// Once drained, a retried write succeeds.
	if err := r.TryWrite([]byte("overflow")); err != nil {
		t.Fatalf("retry after drain failed: %v", err)
	}
}

func TestWriteLargerThanCapacity(t *testing.T) {
	r := testRing(t, 4096)
	if err := r.TryWrite(make([]byte, r.Capacity()+1)); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestReadEmpty(t *testing.T) {
	r := testRing(t, 4096)
	n, err := r.Read(make([]byte, 16))
	if err != nil || n != 0 {
		t.Fatalf("empty read: n=%d err=%v, want 0,nil", n, err)
	}
}

func TestCloseSemantics(t *testing.T) {
	r := testRing(t, 4096)
	if err := r.TryWrite([]byte("last words")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	r.Close()

	if err := r.TryWrite([]byte("x")); err != ErrClosed {
		t.Fatalf("write after close: got %v, want ErrClosed", err)
	}

	// Remaining data is still readable after close; only then ErrClosed surfaces.
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "last words" {
		t.Fatalf("drain after close: n=%d err=%v", n, err)
	}
	if _, err := r.Read(buf); err != ErrClosed {
		t.Fatalf("read on closed empty ring: got %v, want ErrClosed", err)
	}
}

func TestCursorsNeverReset(t *testing.T) {
	r := testRing(t, 4096)
	chunk := make([]byte, 1000)
	buf := make([]byte, 1000)

	// Push several capacities' worth of data through; monotonic cursors mean
	// total bytes written keeps growing past the capacity without ambiguity.
	for i := 0; i < 20; i++ {
		if err := r.TryWrite(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
		total := 0
		for total < len(chunk) {
			n, err := r.Read(buf[total:])
			if err != nil {
				t.Fatalf("read %d failed: %v", i, err)
			}
			total += n
		}
	}
	if r.Used() != 0 {
		t.Fatalf("ring should be empty, used=%d", r.Used())
	}
}
