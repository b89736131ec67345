package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader builds a Config from defaults, an optional YAML file and the
// environment. Tests can override Lookup and ReadFile to inject fixtures.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
	// DotEnv loads a .env file into the process environment first.
	DotEnv bool
}

// Load reads .env and the process environment.
func Load() (Config, error) {
	return Loader{DotEnv: true}.Load()
}

// LoadTools is Load for the offline tools: only the training section is
// validated, so server settings such as https without certs do not matter.
func LoadTools() (Config, error) {
	return Loader{DotEnv: true}.LoadTools()
}

func (l Loader) Load() (Config, error) {
	cfg, err := l.read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l Loader) LoadTools() (Config, error) {
	cfg, err := l.read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Train.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l Loader) read() (Config, error) {
	if l.DotEnv {
		// a missing .env is fine
		_ = godotenv.Load()
	}
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Default()

	path, explicit := DefaultConfigFile, false
	if raw, ok := l.Lookup("VOICEGUARD_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		path, explicit = strings.TrimSpace(raw), true
	}
	if err := l.applyYAML(path, explicit, &cfg); err != nil {
		return Config{}, err
	}

	overrideString(l.Lookup, "VOICEGUARD_MODEL_PATH", &cfg.ModelPath)
	overrideString(l.Lookup, "VOICEGUARD_PORT", &cfg.Port)
	overrideString(l.Lookup, "VOICEGUARD_PROTO", &cfg.Protocol)
	overrideString(l.Lookup, "CERT_KEY", &cfg.CertKey)
	overrideString(l.Lookup, "CERT_FILE", &cfg.CertFile)
	overrideString(l.Lookup, "LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "VOICEGUARD_CACHE_DIR", &cfg.CacheDir)
	overrideList(l.Lookup, "VOICEGUARD_ALLOWED_ORIGINS", &cfg.AllowedOrigins)
	overrideString(l.Lookup, "VOICEGUARD_HISTORY", &cfg.History.Backend)
	overrideString(l.Lookup, "VOICEGUARD_SQLITE_PATH", &cfg.History.SQLitePath)
	overrideString(l.Lookup, "VOICEGUARD_HISTORY_JSON", &cfg.History.JSONPath)
	overrideString(l.Lookup, "MONGO_URI", &cfg.History.MongoURI)
	overrideString(l.Lookup, "MONGO_DATABASE", &cfg.History.MongoDB)
	if err := overrideInt(l.Lookup, "VOICEGUARD_MAX_UPLOAD_MB", &cfg.MaxUploadMB); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "VOICEGUARD_EPOCHS", &cfg.Train.Epochs); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "VOICEGUARD_BATCH_SIZE", &cfg.Train.BatchSize); err != nil {
		return Config{}, err
	}
	if err := overrideFloat(l.Lookup, "VOICEGUARD_LEARNING_RATE", &cfg.Train.LearningRate); err != nil {
		return Config{}, err
	}
	if err := overrideUint(l.Lookup, "VOICEGUARD_SEED", &cfg.Train.Seed); err != nil {
		return Config{}, err
	}
	if err := overrideFloat(l.Lookup, "VOICEGUARD_VALIDATION_SPLIT", &cfg.Train.ValidationSplit); err != nil {
		return Config{}, err
	}

	cfg.Protocol = strings.ToLower(cfg.Protocol)
	cfg.History.Backend = strings.ToLower(cfg.History.Backend)
	return cfg, nil
}

// applyYAML overlays the file at path. A missing default file is ignored; a
// missing explicit file is an error.
func (l Loader) applyYAML(path string, explicit bool, cfg *Config) error {
	raw, err := l.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideList(lookup func(string) (string, bool), key string, target *[]string) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*target = items
}

func overrideFloat(lookup func(string) (string, bool), key string, target *float64) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideUint(lookup func(string) (string, bool), key string, target *uint64) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}
