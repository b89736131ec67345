package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"voiceguard/models"
	"voiceguard/utils"
)

// DefaultJSONPath is used when no path is configured.
const DefaultJSONPath = "analyses.json"

// JSONStore keeps every analysis in one JSON file. It suits single-process
// deployments with a small history.
type JSONStore struct {
	path string
	mu   sync.RWMutex
}

func NewJSONStore(path string) *JSONStore {
	if path == "" {
		path = DefaultJSONPath
	}
	return &JSONStore{path: path}
}

// load reads all analyses; callers hold the lock.
func (s *JSONStore) load() ([]models.Analysis, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []models.Analysis{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading analyses file: %w", err)
	}
	if len(data) == 0 {
		return []models.Analysis{}, nil
	}

	var analyses []models.Analysis
	if err := json.Unmarshal(data, &analyses); err != nil {
		return nil, fmt.Errorf("error unmarshaling analyses: %w", err)
	}
	return analyses, nil
}

func (s *JSONStore) SaveAnalysis(ctx context.Context, a *models.Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	analyses, err := s.load()
	if err != nil {
		return err
	}
	prepare(a)
	analyses = append(analyses, *a)

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(analyses, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling analyses: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("error writing analyses file: %w", err)
	}
	return nil
}

func (s *JSONStore) ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	analyses, err := s.load()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].Timestamp.After(analyses[j].Timestamp)
	})
	if n := normLimit(limit); len(analyses) > n {
		analyses = analyses[:n]
	}
	return analyses, nil
}

func (s *JSONStore) Close() error { return nil }
