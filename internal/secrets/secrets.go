// Package secrets provides a small secure key-value store for credentials and
// session markers, keyed by (service, account).
//
// The contract mirrors an OS keychain: Save fails on a duplicate entry, Get
// fails with a distinguishable ErrNotFound, and Delete is idempotent. Callers
// that treat absence as a normal state (e.g. "no session yet") check
// errors.Is(err, ErrNotFound) instead of surfacing the error.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound means no entry exists for the (service, account) pair.
	ErrNotFound = errors.New("secrets: entry not found")
	// ErrDuplicateEntry means Save was called for a pair that already has a value.
	ErrDuplicateEntry = errors.New("secrets: entry already exists")
)

// Store is the secure key-value contract the credential service depends on.
type Store interface {
	// Save stores a new entry. Fails with ErrDuplicateEntry if one exists.
	Save(service, account string, value []byte) error
	// Update overwrites an existing entry. Fails with ErrNotFound if absent.
	Update(service, account string, value []byte) error
	// Get returns the stored value, or ErrNotFound.
	Get(service, account string) ([]byte, error)
	// Delete removes the entry. Deleting an absent entry is not an error.
	Delete(service, account string) error
}

// FileStore keeps each entry in its own file under a private directory.
// Files are 0600 and the directory 0700 — readable only by the service user.
// One file per entry keeps writes atomic at the filesystem level without any
// index to corrupt.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the backing directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("secrets: creating store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(service, account string, value []byte) error {
	path := s.entryPath(service, account)
	// O_EXCL makes create-if-absent atomic — no stat-then-write race.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("secrets: creating entry: %w", err)
	}
	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("secrets: writing entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("secrets: closing entry: %w", err)
	}
	return nil
}

func (s *FileStore) Update(service, account string, value []byte) error {
	path := s.entryPath(service, account)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("secrets: checking entry: %w", err)
	}
	if err := os.WriteFile(path, value, 0600); err != nil {
		return fmt.Errorf("secrets: updating entry: %w", err)
	}
	return nil
}

func (s *FileStore) Get(service, account string) ([]byte, error) {
	value, err := os.ReadFile(s.entryPath(service, account))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("secrets: reading entry: %w", err)
	}
	return value, nil
}

func (s *FileStore) Delete(service, account string) error {
	err := os.Remove(s.entryPath(service, account))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("secrets: deleting entry: %w", err)
	}
	return nil
}

// entryPath maps (service, account) to a flat filename. Both components are
// sanitized so a hostile account string can't traverse out of the store dir.
func (s *FileStore) entryPath(service, account string) string {
	name := sanitize(service) + "__" + sanitize(account)
	return filepath.Clean(filepath.Join(s.dir, name))
}

func sanitize(part string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", string(os.PathSeparator), "_")
	return replacer.Replace(part)
}
