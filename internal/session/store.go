// Package session persists opaque per-account session blobs.
//
// Blobs live in <dir>/<username>.json and are mirrored to a legacy directory
// that older tooling still reads. Loads prefer the primary directory.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("session not found")

type Store struct {
	dir    string
	legacy string
}

// New returns a store rooted at dir. legacy may be empty.
func New(dir, legacy string) *Store {
	return &Store{dir: dir, legacy: legacy}
}

func (s *Store) dirs() []string {
	if s.legacy == "" || s.legacy == s.dir {
		return []string{s.dir}
	}
	return []string{s.dir, s.legacy}
}

func fileName(username string) (string, error) {
	u := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if u == "" || strings.ContainsAny(u, `/\`) || u == "." || u == ".." {
		return "", fmt.Errorf("invalid username %q", username)
	}
	return u + ".json", nil
}

// Candidates lists the paths checked for username, in load order.
func (s *Store) Candidates(username string) []string {
	name, err := fileName(username)
	if err != nil {
		return nil
	}
	var out []string
	for _, d := range s.dirs() {
		out = append(out, filepath.Join(d, name))
	}
	return out
}

func (s *Store) Has(username string) bool {
	for _, p := range s.Candidates(username) {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return true
		}
	}
	return false
}

// Load returns the first blob found, or ErrNotFound.
func (s *Store) Load(username string) ([]byte, error) {
	for _, p := range s.Candidates(username) {
		b, err := os.ReadFile(p)
		if err == nil {
			return b, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, username)
}

// Save writes the blob to the primary directory and mirrors it to the legacy
// one. Only a primary write failure is returned.
func (s *Store) Save(username string, blob []byte) error {
	name, err := fileName(username)
	if err != nil {
		return err
	}
	for i, d := range s.dirs() {
		err := writeAtomic(filepath.Join(d, name), blob)
		if err != nil && i == 0 {
			return err
		}
	}
	return nil
}

// Remove deletes every copy. Missing files are not an error.
func (s *Store) Remove(username string) error {
	var errs []error
	for _, p := range s.Candidates(username) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
