//go:build linux

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

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sendWithFds writes data and transfers ownership of fds over the control
// socket in a single message. Handle transfer happens only here, during the
// handshake; the steady-state protocol never carries descriptors.
func sendWithFds(conn *net.UnixConn, data []byte, fds []int) error {
	oob := unix.UnixRights(fds...)
	n, oobn, err := conn.WriteMsgUnix(data, oob, nil)
	if err != nil {
		return fmt.Errorf("transport: sendmsg: %w", err)
	}
	if n != len(data) || oobn != len(oob) {
		return fmt.Errorf("transport: short sendmsg: data %d/%d, oob %d/%d",
			n, len(data), oobn, len(oob))
	}
	return nil
}

// recvWithFds reads one message and any descriptors riding its ancillary
// data. The returned fds are owned by the caller.
func recvWithFds(conn *net.UnixConn, buf []byte, maxFds int) (int, []int, error) {
	oob := make([]byte, unix.CmsgSpace(maxFds*4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return 0, nil, fmt.Errorf("transport: recvmsg: %w", err)
	}
	if oobn == 0 {
		return n, nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return n, nil, fmt.Errorf("transport: parse control message: %w", err)
	}
	var fds []int
	for _, m := range msgs {
		got, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return n, fds, nil
}

func closeFds(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
