package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceguard/models"
)

func sample(name string, ts time.Time, label models.Label) *models.Analysis {
	return &models.Analysis{
		Timestamp:   ts,
		FileName:    name,
		Label:       label,
		Verdict:     label.DisplayName(),
		Probability: 0.8,
		Confidence:  0.8,
		Frames:      63,
		Duration:    2,
		LatencyMs:   12.5,
		Source:      "http",
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	first := sample("a.wav", base, models.LabelReal)
	require.NoError(t, s.SaveAnalysis(ctx, first))
	assert.NotEmpty(t, first.ID)
	require.NoError(t, s.SaveAnalysis(ctx, sample("b.wav", base.Add(time.Minute), models.LabelFake)))
	require.NoError(t, s.SaveAnalysis(ctx, sample("c.wav", base.Add(2*time.Minute), models.LabelReal)))

	got, err := s.ListAnalyses(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c.wav", got[0].FileName)
	assert.Equal(t, "b.wav", got[1].FileName)
	assert.Equal(t, models.LabelFake, got[1].Label)
	assert.Equal(t, "Fake Audio", got[1].Verdict)
	assert.True(t, base.Add(time.Minute).Equal(got[1].Timestamp))

	all, err := s.ListAnalyses(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, first.ID, all[2].ID)
	assert.Equal(t, 63, all[2].Frames)
	assert.Equal(t, 12.5, all[2].LatencyMs)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.sqlite3")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSQLiteStoreDuplicateID(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.sqlite3"))
	require.NoError(t, err)
	defer s.Close()

	a := sample("a.wav", time.Now(), models.LabelReal)
	a.ID = "fixed"
	require.NoError(t, s.SaveAnalysis(context.Background(), a))
	b := sample("b.wav", time.Now(), models.LabelFake)
	b.ID = "fixed"
	assert.Error(t, s.SaveAnalysis(context.Background(), b))
}

// Runs against a live server only when MONGO_URI is set.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx := context.Background()
	database := fmt.Sprintf("voiceguard_test_%d", time.Now().UnixNano())

	s, err := NewMongoStore(ctx, uri, database)
	if err != nil {
		t.Skipf("MongoDB not reachable: %v", err)
	}
	t.Cleanup(func() {
		assert.NoError(t, s.client.Database(database).Drop(context.Background()))
		assert.NoError(t, s.Close())
	})

	exerciseStore(t, s)

	dup := sample("d.wav", time.Now(), models.LabelFake)
	dup.ID = "fixed"
	require.NoError(t, s.SaveAnalysis(ctx, dup))
	again := sample("e.wav", time.Now(), models.LabelFake)
	again.ID = "fixed"
	assert.Error(t, s.SaveAnalysis(ctx, again))
}

func TestJSONStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "analyses.json")
	exerciseStore(t, NewJSONStore(path))

	// a second handle sees the persisted entries
	got, err := NewJSONStore(path).ListAnalyses(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestJSONStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyses.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewJSONStore(path).ListAnalyses(context.Background(), 10)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	require.NoError(t, s.SaveAnalysis(ctx, sample("a.wav", time.Now(), models.LabelReal)))
	got, err := s.ListAnalyses(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	s, err = Open(ctx, Options{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "h.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Backend: "postgres"})
	assert.Error(t, err)
}
