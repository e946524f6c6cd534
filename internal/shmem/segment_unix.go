//go:build linux || darwin

/*
 * Copyright 2026 The ipcbridge Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shmem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// filePrefix namespaces segment files so orphan scans never touch foreign
// objects in /dev/shm.
const filePrefix = "ipcbridge_"

// Segment is one mapped shared-memory object holding a single ring.
type Segment struct {
	Name string
	Path string

	file   *os.File
	mem    []byte
	owner  bool // creator unlinks the file on Unlink/Close
	closed atomic.Bool
}

// Create creates and maps a new segment with the given ring capacity. The
// capacity must already be clamped to a power of two. Creation is exclusive:
// a leftover file with the same name fails the call rather than being
// silently reused.
func Create(name string, capacity uint64) (*Segment, error) {
	if !IsPowerOfTwo(capacity) || capacity < MinRingCapacity {
		return nil, fmt.Errorf("shmem: invalid capacity %d", capacity)
	}
	path := segmentPath(name)
	total := SegmentSize(capacity)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmem: create %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(total)); err != nil {
		cleanup()
		return nil, fmt.Errorf("shmem: truncate %s: %w", path, err)
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, int(total),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("shmem: mmap %s: %w", path, err)
	}

	s := &Segment{Name: name, Path: path, file: file, mem: mem, owner: true}
	h := s.Header()
	var magic [8]byte
	copy(magic[:], SegmentMagic)
	h.SetMagic(magic)
	h.SetVersion(SegmentVersion)
	h.SetCapacity(capacity)
	h.SetTotalSize(total)
	h.SetServerPID(uint32(os.Getpid()))
	h.SetServerReady(true)
	return s, nil
}

// Open maps an existing segment created by the peer and validates its header.
func Open(name string) (*Segment, error) {
	path := segmentPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shmem: open %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shmem: stat %s: %w", path, err)
	}
	if info.Size() < SegmentHeaderSize {
		file.Close()
		return nil, fmt.Errorf("shmem: %s too small (%d bytes)", path, info.Size())
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shmem: mmap %s: %w", path, err)
	}

	s := &Segment{Name: name, Path: path, file: file, mem: mem}
	if err := ValidateHeader(s.Header(), uint64(info.Size())); err != nil {
		s.Close()
		return nil, err
	}
	s.Header().SetClientPID(uint32(os.Getpid()))
	s.Header().SetClientReady(true)
	return s, nil
}

// Header returns the typed segment header.
func (s *Segment) Header() *SegmentHeader { return header(s.mem) }

// Ring returns the typed ring header.
func (s *Segment) Ring() *RingHeader { return ring(s.mem) }

// Data returns the ring data area.
func (s *Segment) Data() []byte {
	return s.mem[SegmentHeaderSize+RingHeaderSize : SegmentHeaderSize+RingHeaderSize+s.Header().Capacity()]
}

// Capacity returns the ring data capacity in bytes.
func (s *Segment) Capacity() uint64 { return s.Header().Capacity() }

// Close unmaps the segment. The creator also unlinks the backing file so the
// name becomes reusable; a second Close is a no-op.
func (s *Segment) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var firstErr error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shmem: munmap %s: %w", s.Path, err)
		}
		s.mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.file = nil
	}
	if s.owner {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Remove unlinks a segment file by name. Missing files are not an error, so
// teardown stays idempotent.
func Remove(name string) error {
	if err := os.Remove(segmentPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListOrphans returns the names of segments under the given rendezvous prefix
// whose creating server process is no longer alive.
func ListOrphans(rendezvous string) ([]string, error) {
	dir := shmDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("shmem: scan %s: %w", dir, err)
	}
	prefix := filePrefix + rendezvous + "_"
	var orphans []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		name := strings.TrimPrefix(e.Name(), filePrefix)
		seg, err := Open(name)
		if err != nil {
			continue
		}
		pid := int(seg.Header().ServerPID())
		seg.Close()
		if pid > 0 && unix.Kill(pid, 0) == unix.ESRCH {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

func segmentPath(name string) string {
	return filepath.Join(shmDir(), filePrefix+name)
}

// shmDir prefers /dev/shm so the mapping never touches disk; the temp
// directory is the portable fallback.
func shmDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}
