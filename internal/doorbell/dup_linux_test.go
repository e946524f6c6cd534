//go:build linux

package doorbell

import (
	"testing"

	"golang.org/x/sys/unix"
)

func dupFd(t *testing.T, fd int) int {
	t.Helper()
	dup, err := unix.Dup(fd)
	if err != nil {
		t.Fatalf("dup failed: %v", err)
	}
	return dup
}
