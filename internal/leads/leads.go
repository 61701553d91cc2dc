// Package leads manages recipient lists stored as <dir>/<name>.txt, one
// handle per line.
package leads

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("lead list not found")

type Store struct {
	dir string
}

func New(dir string) *Store { return &Store{dir: dir} }

// Clean trims a handle and drops a leading "@".
func Clean(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

func (s *Store) path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid list name %q", name)
	}
	return filepath.Join(s.dir, name+".txt"), nil
}

// List returns the sorted list names.
func (s *Store) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".txt"))
	}
	sort.Strings(out)
	return out, nil
}

// Load returns the handles of a list in file order. A missing list is empty.
func (s *Store) Load(name string) ([]string, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if h := Clean(sc.Text()); h != "" {
			out = append(out, h)
		}
	}
	return out, sc.Err()
}

// Append adds handles to a list, creating it if needed. Blank entries are
// skipped. It returns how many were written.
func (s *Store) Append(name string, handles []string) (int, error) {
	p, err := s.path(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(f)
	n := 0
	for _, h := range handles {
		h = Clean(h)
		if h == "" {
			continue
		}
		if _, err := w.WriteString(h + "\n"); err != nil {
			_ = f.Close()
			return n, err
		}
		n++
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return n, err
	}
	return n, f.Close()
}

// ImportCSV appends the first column of every non-empty row.
func (s *Store) ImportCSV(r io.Reader, name string) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var handles []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("csv: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		handles = append(handles, row[0])
	}
	return s.Append(name, handles)
}

func (s *Store) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
