package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltBackendSharesHandles(t *testing.T) {
	backend := NewBoltBackend(BoltOptions{NoSync: true})
	dir := t.TempDir()

	s1, err := backend.Open(dir)
	require.NoError(t, err)
	s2, err := backend.Open(dir)
	require.NoError(t, err)

	require.NoError(t, s1.Put([]byte("k"), []byte("v")))
	v, err := s2.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close())
	v, err = s2.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s2.Close())
	assert.Empty(t, backend.handles)
}

func TestBoltStoreIteratePrefix(t *testing.T) {
	backend := NewBoltBackend(BoltOptions{NoSync: true})
	s, err := backend.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	for _, k := range []string{"a::1", "a::2", "b::1", "a:"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}
	var seen []string
	require.NoError(t, s.Iterate([]byte("a::"), func(k, _ []byte) error {
		seen = append(seen, string(k))
		return nil
	}))
	assert.Equal(t, []string{"a::1", "a::2"}, seen)

	require.NoError(t, s.Delete([]byte("a::1")))
	v, err := s.Get([]byte("a::1"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBoltBackendOpenReadOnly(t *testing.T) {
	backend := NewBoltBackend(BoltOptions{NoSync: true})
	dir := t.TempDir()

	_, err := backend.OpenReadOnly(dir)
	require.Error(t, err)

	rw, err := backend.Open(dir)
	require.NoError(t, err)
	require.NoError(t, rw.Put([]byte("k"), []byte("v")))
	require.NoError(t, rw.Close())

	ro, err := backend.OpenReadOnly(dir)
	require.NoError(t, err)
	v, err := ro.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.ErrorIs(t, ro.Put([]byte("k"), []byte("w")), errReadOnly)
	assert.ErrorIs(t, ro.Delete([]byte("k")), errReadOnly)

	_, err = backend.Open(dir)
	assert.Error(t, err)

	require.NoError(t, ro.Close())
	assert.Empty(t, backend.handles)
}

func TestBoltBackendReadOnlySharesWritableHandle(t *testing.T) {
	backend := NewBoltBackend(BoltOptions{NoSync: true})
	dir := t.TempDir()

	rw, err := backend.Open(dir)
	require.NoError(t, err)
	defer rw.Close()
	ro, err := backend.OpenReadOnly(dir)
	require.NoError(t, err)
	defer ro.Close()

	require.NoError(t, rw.Put([]byte("k"), []byte("v")))
	v, err := ro.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.ErrorIs(t, ro.Put([]byte("k"), []byte("w")), errReadOnly)
}
