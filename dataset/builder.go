// Package dataset walks a labelled audio tree and turns it into the feature
// and label arrays the classifier trains on.
//
// Expected layout:
//
//	root/
//	  fake/   clips labelled LabelFake
//	  real/   clips labelled LabelReal
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"voiceguard/featurecache"
	"voiceguard/mfcc"
	"voiceguard/models"
	"voiceguard/utils"
	"voiceguard/wav"
)

// DefaultExtensions are the audio containers picked up by the builder.
// Other containers need an explicit Options.Extensions and ffmpeg.
var DefaultExtensions = []string{".wav"}

// Options configures a Builder.
type Options struct {
	Root       string
	Extensions []string
	// Cache is optional. Read failures are treated as misses.
	Cache *featurecache.Cache
}

type Builder struct {
	extractor *mfcc.Extractor
	opts      Options
	logger    *slog.Logger
}

// Dataset holds extracted examples in build order.
type Dataset struct {
	Features []*mfcc.Matrix
	Labels   []models.Label
	Sources  []string
}

func NewBuilder(extractor *mfcc.Extractor, opts Options) *Builder {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	return &Builder{extractor: extractor, opts: opts, logger: utils.GetLogger()}
}

// Build processes fake/ then real/, files in lexical order. The first file
// that cannot be decoded or extracted aborts the build.
func (b *Builder) Build(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}
	for _, label := range models.Labels {
		dir := filepath.Join(b.opts.Root, label.String())
		files, err := b.listAudio(dir)
		if err != nil {
			return nil, err
		}

		b.logger.InfoContext(ctx, "processing label directory",
			slog.String("label", label.String()),
			slog.String("dir", dir),
			slog.Int("files", len(files)),
		)

		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			m, err := b.features(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("dataset: %s: %w", path, err)
			}
			ds.Features = append(ds.Features, m)
			ds.Labels = append(ds.Labels, label)
			ds.Sources = append(ds.Sources, path)
		}
	}
	return ds, nil
}

func (b *Builder) listAudio(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if b.accepts(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func (b *Builder) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range b.opts.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

func (b *Builder) features(ctx context.Context, path string) (*mfcc.Matrix, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &wav.DecodeError{Source: path, Err: err}
	}

	cfg := b.extractor.Config()
	var key string
	if b.opts.Cache != nil {
		key = featurecache.Key(content, cfg)
		m, err := b.opts.Cache.Get(ctx, key)
		if err == nil {
			b.logger.DebugContext(ctx, "feature cache hit", slog.String("path", path))
			return m, nil
		}
		if !errors.Is(err, featurecache.ErrNotFound) {
			b.logger.WarnContext(ctx, "feature cache read failed", slog.String("path", path), slog.Any("error", err))
		}
	}

	w, err := wav.Decode(ctx, content, path, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	m, err := b.extractor.Extract(w.Samples, w.SampleRate)
	if err != nil {
		return nil, err
	}

	if b.opts.Cache != nil {
		if err := b.opts.Cache.Put(ctx, key, path, cfg, m); err != nil {
			b.logger.WarnContext(ctx, "feature cache write failed", slog.String("path", path), slog.Any("error", err))
		}
	}
	return m, nil
}

// Len is the number of examples.
func (d *Dataset) Len() int { return len(d.Features) }

// Counts returns examples per label.
func (d *Dataset) Counts() map[models.Label]int {
	counts := make(map[models.Label]int, len(models.Labels))
	for _, l := range d.Labels {
		counts[l]++
	}
	return counts
}

// Arrays packs the dataset into X (N, rows, cols, 1) and y (N).
func (d *Dataset) Arrays() (*Array[float32], *Array[int64]) {
	rows, cols := 0, 0
	if len(d.Features) > 0 {
		rows, cols = d.Features[0].Rows, d.Features[0].Cols
	}
	x := &Array[float32]{
		Shape: []int{len(d.Features), rows, cols, 1},
		Data:  make([]float32, 0, len(d.Features)*rows*cols),
	}
	for _, m := range d.Features {
		x.Data = append(x.Data, m.Data...)
	}

	y := &Array[int64]{Shape: []int{len(d.Labels)}, Data: make([]int64, len(d.Labels))}
	for i, l := range d.Labels {
		y.Data[i] = int64(l)
	}
	return x, y
}

// Save writes both dumps.
func (d *Dataset) Save(featuresPath, labelsPath string) error {
	x, y := d.Arrays()
	if err := Save(featuresPath, x); err != nil {
		return err
	}
	return Save(labelsPath, y)
}
