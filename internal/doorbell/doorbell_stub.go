//go:build !linux

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

package doorbell

// Non-Linux builds compile but cannot create doorbells. A kqueue user-event
// or Windows event-object backend would slot in behind the same contract.

// New is unavailable on this platform.
func New() (Doorbell, error) {
	return nil, ErrNotSupported
}

// FromFd is unavailable on this platform.
func FromFd(fd int) (Doorbell, error) {
	return nil, ErrNotSupported
}
