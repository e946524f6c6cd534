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
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/not-vinayakverma71/ipcbridge/internal/codec"
	"github.com/not-vinayakverma71/ipcbridge/internal/doorbell"
	"github.com/not-vinayakverma71/ipcbridge/internal/shmem"
)

// Dial connects to a listening server, runs the handshake, and maps the
// shared rings. On return the connection is ready for Send and Recv.
func Dial(opts DialOptions) (*Conn, error) {
	if opts.Rendezvous == "" {
		return nil, fmt.Errorf("dial: empty rendezvous name")
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Backpressure == (BackpressureConfig{}) {
		opts.Backpressure = DefaultBackpressureConfig()
	}
	if opts.Registry == nil {
		opts.Registry = codec.NewRegistry()
	}

	sock := SocketPath(opts.Dir, opts.Rendezvous)
	uc, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: sock, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", sock, err)
	}
	deadline := time.Now().Add(opts.HandshakeTimeout)
	uc.SetDeadline(deadline)

	ctlEnc := codec.NewEncoder()
	req := encodeHandshakeRequest(HandshakeRequest{
		ProtocolVersion:     ProtocolVersion,
		ClientPID:           uint32(os.Getpid()),
		RequestedBufferSize: uint32(opts.BufferSize),
	})
	frame := ctlEnc.Encode(codec.TypeHandshake, 0, req)
	_, err = uc.Write(frame)
	codec.Free(frame)
	if err != nil {
		uc.Close()
		return nil, fmt.Errorf("dial: send handshake: %w", err)
	}

	resp, fds, err := readHandshakeResponse(uc)
	if err != nil {
		uc.Close()
		if errors.Is(err, os.ErrDeadlineExceeded) {
			err = ErrHandshakeTimeout
		}
		return nil, fmt.Errorf("dial: %w", err)
	}

	fail := func(stage string, err error) (*Conn, error) {
		closeFds(fds)
		uc.Close()
		return nil, fmt.Errorf("dial: %s: %w", stage, err)
	}
	if len(fds) != 4 {
		return fail("handshake", fmt.Errorf("expected 4 doorbell fds, got %d", len(fds)))
	}

	sendSeg, err := shmem.Open(resp.SendSegment)
	if err != nil {
		return fail("open send segment", err)
	}
	recvSeg, err := shmem.Open(resp.RecvSegment)
	if err != nil {
		sendSeg.Close()
		return fail("open recv segment", err)
	}
	// fds arrive in segment order: [0,1] are the send ring's data and space
	// lines, [2,3] the recv ring's. The client transmits on recv and
	// receives on send.
	imported := make([]doorbell.Doorbell, 0, 4)
	for _, fd := range fds {
		db, err := doorbell.FromFd(fd)
		if err != nil {
			closeFds(fds[len(imported):])
			for _, b := range imported {
				b.Close()
			}
			recvSeg.Close()
			sendSeg.Close()
			uc.Close()
			return nil, fmt.Errorf("dial: import doorbell: %w", err)
		}
		imported = append(imported, db)
	}
	sendBells := ringBells{data: imported[0], space: imported[1]}
	recvBells := ringBells{data: imported[2], space: imported[3]}

	uc.SetDeadline(time.Time{})

	log := opts.Logger.With().Str("rendezvous", opts.Rendezvous).Logger()
	conn := newConn(connParams{
		slotID:   resp.SlotID,
		connID:   uuid.NewString(),
		isServer: false,
		control:  uc,
		ctlEnc:   ctlEnc,
		txSeg:    recvSeg,
		rxSeg:    sendSeg,
		txBells:  recvBells,
		rxBells:  sendBells,
		bp:       opts.Backpressure,
		registry: opts.Registry,
		log:      log,
	})
	conn.watchControl(func() { conn.Close() })

	log.Info().Uint32("slot", resp.SlotID).Uint32("capacity", resp.BufferSize).
		Msg("connected")
	return conn, nil
}

// readHandshakeResponse reads the server's single answer frame plus the
// doorbell fds riding its control message. A TypeError frame is a rejection
// and maps onto the error taxonomy.
func readHandshakeResponse(uc *net.UnixConn) (HandshakeResponse, []int, error) {
	buf := make([]byte, 4096)
	n, fds, err := recvWithFds(uc, buf, 4)
	if err != nil {
		return HandshakeResponse{}, nil, err
	}
	dec := codec.NewDecoder(nil)
	f, _, err := dec.Decode(buf[:n])
	for err != nil {
		// A short first read leaves the frame incomplete; the fds always ride
		// the first message, so the rest is plain bytes.
		var need *codec.NeedMoreError
		if !errors.As(err, &need) {
			closeFds(fds)
			return HandshakeResponse{}, nil, fmt.Errorf("handshake response: %w", err)
		}
		rn, rerr := uc.Read(buf[n:])
		if rerr != nil {
			closeFds(fds)
			return HandshakeResponse{}, nil, rerr
		}
		n += rn
		f, _, err = dec.Decode(buf[:n])
	}
	switch f.Type {
	case codec.TypeHandshakeAck:
		resp, err := decodeHandshakeResponse(f.Payload)
		if err != nil {
			closeFds(fds)
			return HandshakeResponse{}, nil, err
		}
		return resp, fds, nil
	case codec.TypeError:
		closeFds(fds)
		code, msg, derr := decodeReject(f.Payload)
		if derr != nil {
			return HandshakeResponse{}, nil, derr
		}
		return HandshakeResponse{}, nil, fmt.Errorf("%s: %w", msg, code.Err())
	default:
		closeFds(fds)
		return HandshakeResponse{}, nil, fmt.Errorf("unexpected handshake frame %#04x", uint16(f.Type))
	}
}
