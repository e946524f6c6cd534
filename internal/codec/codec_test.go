package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder()
	dec := NewDecoder(NewRegistry())

	payloads := [][]byte{
		[]byte("hello"),
		{},
		make([]byte, 4096),
		{0x00, 0xFF, 0x7F, 0x80},
	}
	for i, p := range payloads {
		buf := enc.Encode(TypeHeartbeat, 0, p)
		f, n, err := dec.Decode(buf)
		require.NoError(t, err, "payload %d", i)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, TypeHeartbeat, f.Type)
		assert.Equal(t, uint64(i+1), f.Sequence)
		assert.Equal(t, p, append([]byte{}, f.Payload...))
		Free(buf)
	}
}

func TestDecodePartialInput(t *testing.T) {
	enc := NewEncoder()
	dec := NewDecoder(NewRegistry())
	buf := enc.Encode(TypeHeartbeat, 0, []byte("partial frame payload"))
	defer Free(buf)

	// Shorter than the header: need the rest of the header.
	_, _, err := dec.Decode(buf[:10])
	var need *NeedMoreError
	require.ErrorAs(t, err, &need)
	assert.Equal(t, HeaderSize-10, need.N)
	assert.True(t, errors.Is(err, ErrNeedMore))

	// Full header, truncated payload: need exactly the missing tail.
	_, _, err = dec.Decode(buf[:len(buf)-5])
	require.ErrorAs(t, err, &need)
	assert.Equal(t, 5, need.N)

	// Whole frame decodes.
	_, n, err := dec.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
}

func TestDecodeChecksumMismatchOnAnyBitFlip(t *testing.T) {
	enc := NewEncoder()
	payload := []byte("checksum sensitivity")
	frame := enc.Encode(TypeHeartbeat, 0, payload)
	defer Free(frame)

	for byteIdx := HeaderSize; byteIdx < len(frame); byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte{}, frame...)
			corrupted[byteIdx] ^= 1 << bit

			dec := NewDecoder(NewRegistry())
			_, _, err := dec.Decode(corrupted)
			require.Error(t, err, "byte %d bit %d", byteIdx, bit)
			assert.True(t, errors.Is(err, ErrChecksumMismatch), "byte %d bit %d: %v", byteIdx, bit, err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	enc := NewEncoder()
	dec := NewDecoder(NewRegistry())
	buf := enc.Encode(MessageType(0x7777), 0, []byte("x"))
	defer Free(buf)

	_, _, err := dec.Decode(buf)
	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, MessageType(0x7777), unknown.Type)

	// Registering the type makes the same bytes decodable.
	reg := NewRegistry()
	reg.Register(0x7777)
	_, _, err = NewDecoder(reg).Decode(buf)
	assert.NoError(t, err)
}

func TestDecodeMalformedLength(t *testing.T) {
	enc := NewEncoder()
	dec := NewDecoder(NewRegistry(), WithMaxMessageSize(64))
	buf := enc.Encode(TypeHeartbeat, 0, make([]byte, 65))
	defer Free(buf)

	_, _, err := dec.Decode(buf)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeSequenceTracking(t *testing.T) {
	enc := NewEncoder()
	first := enc.Encode(TypeHeartbeat, 0, []byte("a"))
	second := enc.Encode(TypeHeartbeat, 0, []byte("b"))
	defer Free(first)
	defer Free(second)

	dec := NewDecoder(NewRegistry(), WithSequenceTracking())
	_, _, err := dec.Decode(first)
	require.NoError(t, err)

	// Replaying the first frame is a duplicate.
	_, _, err = dec.Decode(first)
	assert.True(t, errors.Is(err, ErrSequenceGap))

	// A fresh decoder notices the gap when frame one was never seen.
	dec2 := NewDecoder(NewRegistry(), WithSequenceTracking())
	_, _, err = dec2.Decode(second)
	var gap *SequenceError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, uint64(1), gap.Want)
	assert.Equal(t, uint64(2), gap.Got)
}

func TestEncoderSequencesAreMonotonic(t *testing.T) {
	enc := NewEncoder()
	for i := 1; i <= 100; i++ {
		buf := enc.Encode(TypeHeartbeat, 0, nil)
		Free(buf)
	}
	assert.Equal(t, uint64(100), enc.LastSequence())
}
