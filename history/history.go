package history

import (
	"context"
	"fmt"
	"time"

	"voiceguard/models"
	"voiceguard/utils"
)

// DefaultLimit caps ListAnalyses when the caller passes a non-positive limit.
const DefaultLimit = 50

// Store records front-end analyses.
type Store interface {
	SaveAnalysis(ctx context.Context, a *models.Analysis) error
	// ListAnalyses returns the newest analyses first.
	ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendJSON   = "json"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	SQLitePath string
	JSONPath   string
	MongoURI   string
	MongoDB    string
}

// Open returns the configured store. BackendNone yields a store that
// discards writes.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendNone:
		return Nop{}, nil
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendJSON:
		return NewJSONStore(opts.JSONPath), nil
	case BackendMongo:
		return NewMongoStore(ctx, opts.MongoURI, opts.MongoDB)
	}
	return nil, fmt.Errorf("unknown history backend %q", opts.Backend)
}

// Nop discards analyses.
type Nop struct{}

func (Nop) SaveAnalysis(context.Context, *models.Analysis) error { return nil }
func (Nop) ListAnalyses(context.Context, int) ([]models.Analysis, error) {
	return []models.Analysis{}, nil
}
func (Nop) Close() error { return nil }

// prepare fills the id and timestamp of a new analysis.
func prepare(a *models.Analysis) {
	if a.ID == "" {
		a.ID = utils.GenerateUniqueID()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
}

func normLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
