// Package session persists the opaque authorization string the injected
// wire client hands us after login. The file is owner-only; loading from a
// file with wider permissions logs a warning once.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store reads and writes the session string at a fixed path.
type Store struct {
	path     string
	warnOnce sync.Once
}

// NewStore creates a session store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load returns the stored session string, or "" when no session exists yet.
func (s *Store) Load() (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat session: %w", err)
	}

	if perm := info.Mode().Perm(); perm&0077 != 0 {
		s.warnOnce.Do(func() {
			slog.Warn("session.permissions_too_open", "path", s.path, "perm", fmt.Sprintf("%o", perm), "want", "600")
		})
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the session atomically with owner-only permissions.
func (s *Store) Save(session string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if _, err := tmp.WriteString(session); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	cleanup = false
	return nil
}

// Clear removes the session file. Missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
