package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store is a file-backed mapping from well-known configuration keys to
// JSON/TOML content. Writes are atomic (write-to-temp-then-rename) and
// create a timestamped backup when the destination already exists.
type Store struct {
	// Root is the directory configuration files live under
	Root string

	// BackupDir receives timestamped copies of overwritten files.
	// Defaults to <Root>/.backups.
	BackupDir string
}

// NewStore creates a config store rooted at dir
func NewStore(dir string) *Store {
	return &Store{
		Root:      dir,
		BackupDir: filepath.Join(dir, ".backups"),
	}
}

// path resolves a key to its file path. Keys are relative paths; path
// separators are allowed but escaping the root is not.
func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid config key: %s", key)
	}
	return filepath.Join(s.Root, clean), nil
}

// Read returns the content stored under key
func (s *Store) Read(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether a value is stored under key
func (s *Store) Exists(key string) bool {
	p, err := s.path(key)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(p)
	return statErr == nil
}

// Write atomically stores content under key, backing up any existing
// value first. The backup path is returned when a backup was made.
func (s *Store) Write(key string, content []byte) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}

	backupPath := ""
	if _, statErr := os.Stat(p); statErr == nil {
		backupPath, err = s.backup(key, p)
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := atomicWrite(p, content, 0644); err != nil {
		return "", fmt.Errorf("write config %s: %w", key, err)
	}
	return backupPath, nil
}

// backup copies the current content of p into the backup directory with
// a timestamp suffix
func (s *Store) backup(key, p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read for backup: %w", err)
	}

	if err := os.MkdirAll(s.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	name := strings.ReplaceAll(filepath.Clean(key), string(filepath.Separator), "_")
	backupPath := filepath.Join(s.BackupDir, fmt.Sprintf("%s.%s.bak", name, stamp))
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backupPath, nil
}

// atomicWrite writes data to a temp file in the destination directory
// and renames it into place
func atomicWrite(dest string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}
