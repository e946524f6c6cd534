package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRequestRoundTrip(t *testing.T) {
	in := HandshakeRequest{
		ProtocolVersion:     ProtocolVersion,
		ClientPID:           4242,
		RequestedBufferSize: 1 << 20,
	}
	out, err := decodeHandshakeRequest(encodeHandshakeRequest(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHandshakeRequestTruncated(t *testing.T) {
	b := encodeHandshakeRequest(HandshakeRequest{ProtocolVersion: 1})
	_, err := decodeHandshakeRequest(b[:len(b)-1])
	assert.Error(t, err)
}

func TestHandshakeResponseRoundTrip(t *testing.T) {
	in := HandshakeResponse{
		SlotID:      7,
		BufferSize:  64 * 1024,
		SendSegment: "ep_7_send",
		RecvSegment: "ep_7_recv",
	}
	out, err := decodeHandshakeResponse(encodeHandshakeResponse(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHandshakeResponseTruncatedString(t *testing.T) {
	b := encodeHandshakeResponse(HandshakeResponse{
		SlotID:      1,
		BufferSize:  4096,
		SendSegment: "ep_1_send",
		RecvSegment: "ep_1_recv",
	})
	for _, cut := range []int{len(b) - 1, len(b) - 5, 9} {
		_, err := decodeHandshakeResponse(b[:cut])
		assert.Error(t, err, "cut at %d", cut)
	}
}

func TestRejectRoundTrip(t *testing.T) {
	code, msg, err := decodeReject(encodeReject(RejectResourceExhausted, "connection limit reached"))
	require.NoError(t, err)
	assert.Equal(t, RejectResourceExhausted, code)
	assert.Equal(t, "connection limit reached", msg)
}

func TestRejectCodeErrors(t *testing.T) {
	assert.ErrorIs(t, RejectVersionMismatch.Err(), ErrVersionMismatch)
	assert.ErrorIs(t, RejectResourceExhausted.Err(), ErrResourceExhausted)
}
