package featurecache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceguard/mfcc"
)

func openMemory(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t)
	cfg := mfcc.DefaultConfig()

	m := mfcc.NewMatrix(13, 200)
	for i := range m.Data {
		m.Data[i] = float32(i) * 0.5
	}
	key := Key([]byte("clip bytes"), cfg)

	_, err := c.Get(ctx, key)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, c.Put(ctx, key, "real/a.wav", cfg, m))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, m.Equal(got))

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKeyDependsOnContentAndParams(t *testing.T) {
	cfg := mfcc.DefaultConfig()
	other := cfg
	other.Frames = 100

	assert.Equal(t, Key([]byte("a"), cfg), Key([]byte("a"), cfg))
	assert.NotEqual(t, Key([]byte("a"), cfg), Key([]byte("b"), cfg))
	assert.NotEqual(t, Key([]byte("a"), cfg), Key([]byte("a"), other))
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestOnDiskPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := mfcc.DefaultConfig()
	m := mfcc.NewMatrix(13, 200)
	m.Data[0] = 42
	key := Key([]byte("persisted"), cfg)

	c, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, key, "fake/b.wav", cfg, m))
	require.NoError(t, c.Close())

	c, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer c.Close()
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, float32(42), got.At(0, 0))
}
