package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

func GetEnv(key string, fallback ...string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}

// CreateFolder creates folderPath and any missing parents.
func CreateFolder(folderPath string) error {
	if folderPath == "" || folderPath == "." {
		return nil
	}
	return os.MkdirAll(folderPath, 0o755)
}

func GenerateUniqueID() string {
	return uuid.NewString()
}

// WriteFileAtomic writes data to a sibling temp file and renames it over path
// so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte) error {
	if err := CreateFolder(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
