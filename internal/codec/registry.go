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

package codec

import "sync"

// Registry is the dispatch table of message types a decoder accepts.
// Registration typically happens at startup; lookups run on the hot path.
type Registry struct {
	mu    sync.RWMutex
	types map[MessageType]struct{}
}

// NewRegistry returns a Registry pre-populated with the control-plane types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[MessageType]struct{})}
	for _, t := range []MessageType{
		TypeError, TypeHeartbeat, TypeHandshake, TypeHandshakeAck, TypeDisconnect,
	} {
		r.types[t] = struct{}{}
	}
	return r
}

// Register adds message types to the table.
func (r *Registry) Register(ts ...MessageType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		r.types[t] = struct{}{}
	}
}

// Known reports whether t has a registered handler.
func (r *Registry) Known(t MessageType) bool {
	r.mu.RLock()
	_, ok := r.types[t]
	r.mu.RUnlock()
	return ok
}
