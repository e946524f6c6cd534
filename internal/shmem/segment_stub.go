//go:build !linux && !darwin

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

import "errors"

// ErrNotSupported marks platforms without a shared-memory implementation.
var ErrNotSupported = errors.New("shmem: not supported on this platform")

// Segment is one mapped shared-memory object holding a single ring.
type Segment struct {
	Name string
	Path string
}

func Create(name string, capacity uint64) (*Segment, error) { return nil, ErrNotSupported }

func Open(name string) (*Segment, error) { return nil, ErrNotSupported }

func (s *Segment) Header() *SegmentHeader { return nil }

func (s *Segment) Ring() *RingHeader { return nil }

func (s *Segment) Data() []byte { return nil }

func (s *Segment) Capacity() uint64 { return 0 }

func (s *Segment) Close() error { return ErrNotSupported }

func Remove(name string) error { return ErrNotSupported }

func ListOrphans(rendezvous string) ([]string, error) { return nil, ErrNotSupported }
