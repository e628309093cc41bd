// Package archive packages an images folder into a single ZIP file.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Path returns the archive location for folder: a sibling named after the
// folder with a .zip suffix.
func Path(folder string) string {
	return filepath.Clean(folder) + ".zip"
}

// Zip writes every file under folder into Path(folder) and returns that path.
// An empty folder produces a valid archive with no entries.
func Zip(folder string) (string, error) {
	if strings.TrimSpace(folder) == "" {
		return "", fmt.Errorf("folder is required")
	}
	info, err := os.Stat(folder)
	if err != nil {
		return "", fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", folder)
	}

	target := Path(folder)
	// #nosec G304 -- target is derived from the pipeline's own folder name.
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(f)
	writeErr := zw.AddFS(os.DirFS(folder))
	if writeErr != nil {
		writeErr = fmt.Errorf("add folder to archive: %w", writeErr)
	}
	if err := zw.Close(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Close(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("close archive: %w", err)
	}
	if writeErr != nil {
		if rmErr := os.Remove(target); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return "", fmt.Errorf("%w (cleanup: %v)", writeErr, rmErr)
		}
		return "", writeErr
	}
	return target, nil
}
