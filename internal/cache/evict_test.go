package cache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforceCapacity_Scenario(t *testing.T) {
	s, clock := newTestStore(t)

	clock.Set(1)
	require.NoError(t, s.Write("k1", []string{"one"}))
	clock.Set(2)
	require.NoError(t, s.Write("k2", []string{"two"}))
	evicted, err := EnforceCapacity(s, 2)
	require.NoError(t, err)
	assert.Empty(t, evicted)

	clock.Set(3)
	_, err = s.Read("k1")
	require.NoError(t, err)

	clock.Set(4)
	require.NoError(t, s.Write("k3", []string{"three"}))
	evicted, err = EnforceCapacity(s, 2)
	require.NoError(t, err)
	assert.Equal(t, []Key{"k2"}, evicted)

	assert.True(t, s.Has("k1"))
	assert.False(t, s.Has("k2"))
	assert.True(t, s.Has("k3"))
}

func TestEnforceCapacity_Idempotent(t *testing.T) {
	s, clock := newTestStore(t)
	for i := range 3 {
		clock.Set(int64(i + 1))
		require.NoError(t, s.Write(Key(fmt.Sprintf("k%d", i)), []string{"x"}))
	}

	for range 2 {
		evicted, err := EnforceCapacity(s, 3)
		require.NoError(t, err)
		assert.Empty(t, evicted)
	}
	evicted, err := EnforceCapacity(s, 10)
	require.NoError(t, err)
	assert.Empty(t, evicted)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestEnforceCapacity_Zero(t *testing.T) {
	s, clock := newTestStore(t)
	for i := range 4 {
		clock.Set(int64(i + 1))
		require.NoError(t, s.Write(Key(fmt.Sprintf("k%d", i)), []string{"x"}))
	}

	evicted, err := EnforceCapacity(s, 0)
	require.NoError(t, err)
	assert.Equal(t, []Key{"k0", "k1", "k2", "k3"}, evicted)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnforceCapacity_NegativeActsAsZero(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Write("k1", []string{"x"}))

	_, err := EnforceCapacity(s, -1)
	require.NoError(t, err)
	assert.False(t, s.Has("k1"))
}

func TestEnforceCapacity_BoundHoldsAcrossWrites(t *testing.T) {
	const capacity = 3
	s, clock := newTestStore(t)

	for i := range 20 {
		clock.Set(int64(i + 1))
		key := Key(fmt.Sprintf("k%02d", i))
		require.NoError(t, s.Write(key, []string{"x"}))

		// Touch an old survivor now and then so eviction is not plain FIFO.
		if i%5 == 4 {
			keys, err := s.ListByRecency()
			require.NoError(t, err)
			clock.Set(int64(i+1) * 100)
			_, err = s.Read(keys[0])
			require.NoError(t, err)
			clock.Set(int64(i + 1))
		}

		before, err := s.ListByRecency()
		require.NoError(t, err)
		evicted, err := EnforceCapacity(s, capacity)
		require.NoError(t, err)

		n, err := s.Len()
		require.NoError(t, err)
		assert.LessOrEqual(t, n, capacity)
		if len(before) > capacity {
			assert.Equal(t, before[:len(before)-capacity], evicted, "evicted entries must be the least recently used")
		}
	}
}

// failingDeleteStore fails every Delete.
type failingDeleteStore struct {
	*DiskStore
}

func (f failingDeleteStore) Delete(Key) error { return errors.New("permission denied") }

func TestEnforceCapacity_DeleteError(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Write("k1", []string{"x"}))
	require.NoError(t, s.Write("k2", []string{"x"}))

	evicted, err := EnforceCapacity(failingDeleteStore{s}, 1)
	assert.Error(t, err)
	assert.Empty(t, evicted)
}
