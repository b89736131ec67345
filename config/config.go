package config

import (
	"fmt"
	"strings"
)

const (
	DefaultModelPath    = "deepfake_audio_detector.ckpt"
	DefaultPort         = "5000"
	DefaultProtocol     = "http"
	DefaultMaxUploadMB  = 32
	DefaultHistory      = "none"
	DefaultSQLitePath   = "db/voiceguard.sqlite3"
	DefaultHistoryJSON  = "analyses.json"
	DefaultMongoURI     = "mongodb://localhost:27017"
	DefaultMongoDB      = "voiceguard"
	DefaultConfigFile   = "voiceguard.yaml"
	DefaultEpochs       = 10
	DefaultBatchSize    = 1
	DefaultLearningRate = 0.001
	DefaultSeed         = 42
)

// Config holds settings shared by the server and the tools.
type Config struct {
	ModelPath   string `yaml:"model_path"`
	Port        string `yaml:"port"`
	Protocol    string `yaml:"protocol"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	CertKey     string `yaml:"cert_key"`
	CertFile    string `yaml:"cert_file"`
	LogLevel    string `yaml:"log_level"`
	CacheDir    string `yaml:"cache_dir"`
	// AllowedOrigins lists browser origins allowed on the socket endpoint
	// besides the server's own host. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	History History  `yaml:"history"`
	Train   Training `yaml:"train"`
}

// History selects the analysis history backend.
type History struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	JSONPath   string `yaml:"json_path"`
	MongoURI   string `yaml:"mongo_uri"`
	MongoDB    string `yaml:"mongo_database"`
}

// Training holds classifier training settings.
type Training struct {
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float64 `yaml:"learning_rate"`
	Seed            uint64  `yaml:"seed"`
	ValidationSplit float64 `yaml:"validation_split"`
}

func Default() Config {
	return Config{
		ModelPath:   DefaultModelPath,
		Port:        DefaultPort,
		Protocol:    DefaultProtocol,
		MaxUploadMB: DefaultMaxUploadMB,
		History: History{
			Backend:    DefaultHistory,
			SQLitePath: DefaultSQLitePath,
			JSONPath:   DefaultHistoryJSON,
			MongoURI:   DefaultMongoURI,
			MongoDB:    DefaultMongoDB,
		},
		Train: Training{
			Epochs:       DefaultEpochs,
			BatchSize:    DefaultBatchSize,
			LearningRate: DefaultLearningRate,
			Seed:         DefaultSeed,
		},
	}
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ModelPath) == "" {
		return fmt.Errorf("config: model path is required")
	}
	switch c.Protocol {
	case "http", "https":
	default:
		return fmt.Errorf("config: protocol must be http or https, got %q", c.Protocol)
	}
	if c.Protocol == "https" && (c.CertKey == "" || c.CertFile == "") {
		return fmt.Errorf("config: https requires CERT_KEY and CERT_FILE")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("config: max upload size must be positive, got %d", c.MaxUploadMB)
	}
	switch c.History.Backend {
	case "none", "sqlite", "json", "mongo":
	default:
		return fmt.Errorf("config: unknown history backend %q", c.History.Backend)
	}
	return c.Train.Validate()
}

func (t Training) Validate() error {
	if t.Epochs <= 0 {
		return fmt.Errorf("config: epochs must be positive, got %d", t.Epochs)
	}
	if t.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", t.BatchSize)
	}
	if t.LearningRate <= 0 {
		return fmt.Errorf("config: learning rate must be positive, got %g", t.LearningRate)
	}
	if t.ValidationSplit < 0 || t.ValidationSplit >= 1 {
		return fmt.Errorf("config: validation split must be in [0, 1), got %g", t.ValidationSplit)
	}
	return nil
}

// MaxUploadBytes is the upload cap in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
