// Package featurecache stores extracted MFCC matrices in BadgerDB keyed by
// the content hash of the source file and the extractor parameters.
package featurecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"voiceguard/mfcc"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("featurecache: not found")

const keyPrefix = "mfcc:"

// Options configures the cache.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger sets the badger logger. If nil, debug and info output is dropped.
	Logger badger.Logger
}

// Cache is a content addressed store of MFCC matrices.
type Cache struct {
	db *badger.DB
}

type entry struct {
	Params string       `msgpack:"params"`
	Source string       `msgpack:"source"`
	Matrix *mfcc.Matrix `msgpack:"matrix"`
}

// Open creates or opens a cache.
func Open(opts Options) (*Cache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("featurecache: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(quietLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("featurecache: open: %w", err)
	}
	return &Cache{db: db}, nil
}

// Key derives the cache key for file content extracted with cfg.
func Key(content []byte, cfg mfcc.Config) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte{0})
	h.Write([]byte(cfg.Fingerprint()))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(_ context.Context, key string) (*mfcc.Matrix, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("featurecache: get: %w", err)
	}

	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("featurecache: decode entry: %w", err)
	}
	if e.Matrix == nil || len(e.Matrix.Data) != e.Matrix.Rows*e.Matrix.Cols {
		return nil, errors.New("featurecache: corrupt entry")
	}
	return e.Matrix, nil
}

func (c *Cache) Put(_ context.Context, key, source string, cfg mfcc.Config, m *mfcc.Matrix) error {
	raw, err := msgpack.Marshal(&entry{Params: cfg.Fingerprint(), Source: source, Matrix: m})
	if err != nil {
		return fmt.Errorf("featurecache: encode entry: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("featurecache: put: %w", err)
	}
	return nil
}

// Len counts cached matrices.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// quietLogger forwards badger warnings and errors to the standard logger.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (quietLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (quietLogger) Infof(string, ...interface{})        {}
func (quietLogger) Debugf(string, ...interface{})       {}
