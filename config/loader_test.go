package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func files(contents map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		if c, ok := contents[path]; ok {
			return []byte(c), nil
		}
		return nil, os.ErrNotExist
	}
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := Loader{Lookup: env(nil), ReadFile: files(nil)}.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 10, cfg.Train.Epochs)
	assert.Equal(t, 1, cfg.Train.BatchSize)
	assert.Equal(t, "none", cfg.History.Backend)
}

func TestLoaderEnvOverrides(t *testing.T) {
	cfg, err := Loader{
		Lookup: env(map[string]string{
			"VOICEGUARD_MODEL_PATH":       " models/detector.ckpt ",
			"VOICEGUARD_PORT":             "8080",
			"VOICEGUARD_HISTORY":          "SQLite",
			"VOICEGUARD_SQLITE_PATH":      "/tmp/h.db",
			"VOICEGUARD_MAX_UPLOAD_MB":    "8",
			"VOICEGUARD_EPOCHS":           "3",
			"VOICEGUARD_BATCH_SIZE":       "16",
			"VOICEGUARD_LEARNING_RATE":    "0.01",
			"VOICEGUARD_SEED":             "7",
			"VOICEGUARD_VALIDATION_SPLIT": "0.2",
			"MONGO_URI":                   "",
			"VOICEGUARD_ALLOWED_ORIGINS":  "https://a.example, ,https://b.example",
		}),
		ReadFile: files(nil),
	}.Load()
	require.NoError(t, err)
	assert.Equal(t, "models/detector.ckpt", cfg.ModelPath)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.History.Backend)
	assert.Equal(t, "/tmp/h.db", cfg.History.SQLitePath)
	assert.Equal(t, DefaultMongoURI, cfg.History.MongoURI)
	assert.Equal(t, 8, cfg.MaxUploadMB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, Training{Epochs: 3, BatchSize: 16, LearningRate: 0.01, Seed: 7, ValidationSplit: 0.2}, cfg.Train)
}

func TestLoaderYAMLThenEnv(t *testing.T) {
	yamlDoc := `
port: "9000"
allowed_origins: ["*"]
history:
  backend: json
  json_path: out/analyses.json
train:
  epochs: 25
  learning_rate: 0.0005
`
	cfg, err := Loader{
		Lookup:   env(map[string]string{"VOICEGUARD_EPOCHS": "4"}),
		ReadFile: files(map[string]string{DefaultConfigFile: yamlDoc}),
	}.Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "json", cfg.History.Backend)
	assert.Equal(t, "out/analyses.json", cfg.History.JSONPath)
	assert.Equal(t, 4, cfg.Train.Epochs)
	assert.Equal(t, 0.0005, cfg.Train.LearningRate)
	assert.Equal(t, 1, cfg.Train.BatchSize)
}

func TestLoaderExplicitConfigMissing(t *testing.T) {
	_, err := Loader{
		Lookup:   env(map[string]string{"VOICEGUARD_CONFIG": "custom.yaml"}),
		ReadFile: files(nil),
	}.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoaderRejectsUnknownYAMLKeys(t *testing.T) {
	_, err := Loader{
		Lookup:   env(nil),
		ReadFile: files(map[string]string{DefaultConfigFile: "prot: http\n"}),
	}.Load()
	assert.Error(t, err)
}

func TestLoaderInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"int":      {"VOICEGUARD_EPOCHS": "ten"},
		"float":    {"VOICEGUARD_LEARNING_RATE": "fast"},
		"epochs":   {"VOICEGUARD_EPOCHS": "0"},
		"batch":    {"VOICEGUARD_BATCH_SIZE": "-1"},
		"rate":     {"VOICEGUARD_LEARNING_RATE": "0"},
		"split":    {"VOICEGUARD_VALIDATION_SPLIT": "1"},
		"backend":  {"VOICEGUARD_HISTORY": "redis"},
		"protocol": {"VOICEGUARD_PROTO": "ftp"},
		"https":    {"VOICEGUARD_PROTO": "https"},
		"upload":   {"VOICEGUARD_MAX_UPLOAD_MB": "0"},
		"negSeed":  {"VOICEGUARD_SEED": "-3"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Loader{Lookup: env(values), ReadFile: files(nil)}.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoaderToolsIgnoreServerSettings(t *testing.T) {
	values := map[string]string{
		"VOICEGUARD_PROTO":   "https",
		"VOICEGUARD_HISTORY": "redis",
		"VOICEGUARD_EPOCHS":  "3",
	}
	l := Loader{Lookup: env(values), ReadFile: files(nil)}

	_, err := l.Load()
	require.Error(t, err)

	cfg, err := l.LoadTools()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Train.Epochs)

	values["VOICEGUARD_EPOCHS"] = "0"
	_, err = l.LoadTools()
	assert.Error(t, err)
}
