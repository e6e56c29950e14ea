package extraction

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for writing output files
type Storage interface {
	// Save writes a file and returns its name
	Save(filename string, data []byte) (string, error)

	// Get reads a file by name
	Get(filename string) ([]byte, error)

	// Delete removes a file
	Delete(filename string) error

	// Path returns where a file name lives, for reporting
	Path(filename string) string
}

// LocalStorage implements the Storage interface on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the output directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes a file, replacing any previous version
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	if err := os.WriteFile(l.Path(filename), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get reads a file
func (l *LocalStorage) Get(filename string) ([]byte, error) {
	data, err := os.ReadFile(l.Path(filename))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file
func (l *LocalStorage) Delete(filename string) error {
	if err := os.Remove(l.Path(filename)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Path joins the file name onto the output directory
func (l *LocalStorage) Path(filename string) string {
	return filepath.Join(l.basePath, filepath.Base(filename))
}
