package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WorkArea is the scratch directory a save run writes into. The host saves
// the primary file and the export copy here; the workflow reads them back
// for upload. Implements storage.Reader for the files it holds.
type WorkArea struct {
	baseDir string
}

// NewWorkArea creates (if needed) and wraps a work directory
func NewWorkArea(baseDir string) (*WorkArea, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	return &WorkArea{
		baseDir: baseDir,
	}, nil
}

// Dir returns the work directory root
func (wa *WorkArea) Dir() string { return wa.baseDir }

// Path resolves a file name inside the work area, rejecting traversal
func (wa *WorkArea) Path(name string) (string, error) {
	path := filepath.Join(wa.baseDir, name)

	// Security: prevent directory traversal
	if !filepath.HasPrefix(filepath.Clean(path), filepath.Clean(wa.baseDir)) {
		return "", fmt.Errorf("invalid name: path traversal detected")
	}
	return path, nil
}

// GetReader returns a reader for the file at the given name
func (wa *WorkArea) GetReader(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := wa.Path(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", name)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Exists checks if a file exists at the given name
func (wa *WorkArea) Exists(ctx context.Context, name string) (bool, error) {
	path, err := wa.Path(name)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

// GetMetadata returns metadata for the file at the given name
func (wa *WorkArea) GetMetadata(ctx context.Context, name string) (*Metadata, error) {
	path, err := wa.Path(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", name)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &Metadata{
		Size: info.Size(),
	}, nil
}
