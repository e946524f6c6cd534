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

//go:build !linux

// Command ipcbridge serves and exercises a shared-memory IPC endpoint.
//
// The transport needs /dev/shm, eventfd, and SCM_RIGHTS fd passing, so the
// binary only runs on Linux.
package main

import (
	"fmt"
	"os"
	"runtime"
)

func main() {
	fmt.Fprintf(os.Stderr, "ipcbridge: unsupported platform %s/%s (requires linux)\n",
		runtime.GOOS, runtime.GOARCH)
	os.Exit(1)
}
