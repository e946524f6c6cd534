package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotManagerReserveLimit(t *testing.T) {
	m := NewSlotManager(2)

	id1, err := m.Reserve()
	require.NoError(t, err)
	id2, err := m.Reserve()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, err = m.Reserve()
	assert.ErrorIs(t, err, ErrResourceExhausted)

	// An aborted handshake returns its capacity.
	m.Release()
	_, err = m.Reserve()
	assert.NoError(t, err)
}

func TestSlotManagerReserveConcurrent(t *testing.T) {
	const limit = 8
	m := NewSlotManager(limit)

	var wg sync.WaitGroup
	granted := make(chan uint32, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, err := m.Reserve(); err == nil {
				granted <- id
			}
		}()
	}
	wg.Wait()
	close(granted)

	seen := map[uint32]bool{}
	for id := range granted {
		require.False(t, seen[id], "slot id %d granted twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, limit)
	assert.Equal(t, limit, m.Count())
}

func TestSlotManagerRemoveUnknownIsNoop(t *testing.T) {
	m := NewSlotManager(4)
	m.Remove(99)
	assert.Equal(t, 0, m.Count())
}

func TestSlotManagerGetMissing(t *testing.T) {
	m := NewSlotManager(4)
	_, ok := m.Get(1)
	assert.False(t, ok)
}

func TestSlotStateTransitions(t *testing.T) {
	var s Slot
	assert.Equal(t, SlotHandshaking, s.State())
	s.Activate()
	assert.Equal(t, SlotActive, s.State())
}
