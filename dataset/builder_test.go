package dataset

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceguard/featurecache"
	"voiceguard/mfcc"
	"voiceguard/models"
	"voiceguard/wav"
)

func writeTone(t *testing.T, path string, freq float64, seconds float64) {
	t.Helper()
	n := int(seconds * wav.TargetSampleRate)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.4 * math.Sin(2*math.Pi*freq*float64(i)/wav.TargetSampleRate))
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, wav.WriteFile(path, samples, wav.TargetSampleRate))
}

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "fake", "b.wav"), 300, 0.5)
	writeTone(t, filepath.Join(root, "fake", "a.wav"), 600, 1.0)
	writeTone(t, filepath.Join(root, "real", "c.wav"), 200, 0.75)
	writeTone(t, filepath.Join(root, "real", "d.wav"), 400, 2.0)
	writeTone(t, filepath.Join(root, "real", "e.wav"), 800, 0.25)
	require.NoError(t, os.WriteFile(filepath.Join(root, "real", "notes.txt"), []byte("skip me"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real", "nested"), 0o755))
	return root
}

func TestBuildLabelsFollowDirectoryOrder(t *testing.T) {
	root := makeTree(t)
	b := NewBuilder(mfcc.Default(), Options{Root: root})

	ds, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, ds.Len())

	assert.Equal(t, []models.Label{models.LabelFake, models.LabelFake, models.LabelReal, models.LabelReal, models.LabelReal}, ds.Labels)
	assert.Equal(t, filepath.Join(root, "fake", "a.wav"), ds.Sources[0])
	assert.Equal(t, filepath.Join(root, "fake", "b.wav"), ds.Sources[1])
	assert.Equal(t, map[models.Label]int{models.LabelFake: 2, models.LabelReal: 3}, ds.Counts())

	x, y := ds.Arrays()
	assert.Equal(t, []int{5, 13, 200, 1}, x.Shape)
	assert.Equal(t, []int64{0, 0, 1, 1, 1}, y.Data)
}

func TestBuildSkipsNonWAVByDefault(t *testing.T) {
	root := makeTree(t)
	writeTone(t, filepath.Join(root, "fake", "extra.wav"), 500, 0.5)
	require.NoError(t, os.Rename(filepath.Join(root, "fake", "extra.wav"), filepath.Join(root, "fake", "extra.flac")))

	ds, err := NewBuilder(mfcc.Default(), Options{Root: root}).Build(context.Background())
	require.NoError(t, err)
	x, y := ds.Arrays()
	assert.Equal(t, []int{5, 13, 200, 1}, x.Shape)
	assert.Equal(t, []int64{0, 0, 1, 1, 1}, y.Data)

	// the bytes are RIFF so the opt-in path decodes without ffmpeg
	ds, err = NewBuilder(mfcc.Default(), Options{Root: root, Extensions: []string{".wav", ".flac"}}).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, ds.Len())
}

func TestSaveAndLoadPair(t *testing.T) {
	root := makeTree(t)
	ds, err := NewBuilder(mfcc.Default(), Options{Root: root}).Build(context.Background())
	require.NoError(t, err)

	out := t.TempDir()
	xPath := filepath.Join(out, DefaultFeaturesFile)
	yPath := filepath.Join(out, DefaultLabelsFile)
	require.NoError(t, ds.Save(xPath, yPath))

	x, y, err := LoadPair(xPath, yPath)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 13, 200, 1}, x.Shape)
	assert.Equal(t, []int{5}, y.Shape)

	labels, err := Labels(y)
	require.NoError(t, err)
	assert.Equal(t, ds.Labels, labels)

	for i := range ds.Features {
		m, err := Example(x, i)
		require.NoError(t, err)
		assert.True(t, ds.Features[i].Equal(m), "example %d", i)
	}
	_, err = Example(x, 5)
	assert.Error(t, err)
}

func TestBuildAbortsOnCorruptFile(t *testing.T) {
	root := makeTree(t)
	bad := filepath.Join(root, "real", "broken.wav")
	require.NoError(t, os.WriteFile(bad, []byte("RIFF....WAVEjunk"), 0o644))

	_, err := NewBuilder(mfcc.Default(), Options{Root: root}).Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.wav")

	var decErr *wav.DecodeError
	assert.True(t, errors.As(err, &decErr))
}

func TestBuildRequiresBothLabelDirs(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "fake", "a.wav"), 300, 0.5)

	_, err := NewBuilder(mfcc.Default(), Options{Root: root}).Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBuildUsesCache(t *testing.T) {
	root := makeTree(t)
	cache, err := featurecache.Open(featurecache.Options{InMemory: true})
	require.NoError(t, err)
	defer cache.Close()

	opts := Options{Root: root, Cache: cache}
	first, err := NewBuilder(mfcc.Default(), opts).Build(context.Background())
	require.NoError(t, err)

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	second, err := NewBuilder(mfcc.Default(), opts).Build(context.Background())
	require.NoError(t, err)
	for i := range first.Features {
		assert.True(t, first.Features[i].Equal(second.Features[i]))
	}
}

func TestBuildHonoursCancellation(t *testing.T) {
	root := makeTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(mfcc.Default(), Options{Root: root}).Build(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadRejectsMismatchedShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.msgpack")
	err := Save(path, &Array[int64]{Shape: []int{3}, Data: []int64{1, 2}})
	require.Error(t, err)

	_, err = Load[int64](filepath.Join(t.TempDir(), "missing.msgpack"))
	assert.Error(t, err)
}
