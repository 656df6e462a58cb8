package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	credentialFilePermissions = 0600
	credentialDirPermissions  = 0700
)

// FileBackend keeps all keys in one JSON object file, replaced atomically on every write.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) ReadAll() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	entries := map[string]string{}
	if len(data) == 0 {
		return entries, nil
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("credential file %s is corrupt: %w", f.path, err)
	}

	return entries, nil
}

// WriteAll rewrites the whole file. The new record replaces the old one, it is not merged.
func (f *FileBackend) WriteAll(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), credentialDirPermissions); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	return atomicWriteFile(f.path, data, credentialFilePermissions)
}

func (f *FileBackend) DeleteAll(keys []string) error {
	entries, err := f.ReadAll()
	if err != nil {
		// Unreadable means there is nothing trustworthy to keep
		return removeIfExists(f.path)
	}

	for _, k := range keys {
		delete(entries, k)
	}

	if len(entries) == 0 {
		return removeIfExists(f.path)
	}

	return f.WriteAll(entries)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// atomicWriteFile writes via a synced temp file in the same directory and a rename,
// so readers see either the old file or the new one.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()
	renamed := false

	defer func() {
		tmpFile.Close()
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	renamed = true

	return nil
}
