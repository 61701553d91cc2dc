package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "dmrotor/pkg/logx"
)

// fileStore keeps the log as JSON Lines:
//
//	{"ts":1700000000,"account":"a","to":"b","ok":true,"detail":""}
//
// The recipient index and totals are rebuilt on open and maintained on append.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	f      *os.File
	seen   map[string]struct{}
	totals Totals
}

type fileRecord struct {
	TS      int64  `json:"ts"`
	Account string `json:"account"`
	To      string `json:"to"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail"`
}

func (fr fileRecord) record() Record {
	return Record{At: time.Unix(fr.TS, 0), Account: fr.Account, To: fr.To, OK: fr.OK, Detail: fr.Detail}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, seen: map[string]struct{}{}}
	skipped, err := s.scan(func(fr fileRecord) {
		s.index(fr.To, fr.OK)
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("skipped malformed log lines", logx.String("path", path), logx.Int("count", skipped))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	return s, nil
}

// scan decodes every well-formed line; malformed lines are counted and skipped.
func (s *fileStore) scan(fn func(fileRecord)) (skipped int, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var fr fileRecord
		if err := json.Unmarshal(line, &fr); err != nil || fr.TS == 0 {
			skipped++
			continue
		}
		fn(fr)
	}
	return skipped, sc.Err()
}

func (s *fileStore) index(to string, ok bool) {
	if key := NormalizeRecipient(to); key != "" {
		s.seen[key] = struct{}{}
	}
	if ok {
		s.totals.OK++
	} else {
		s.totals.Fail++
	}
}

func (s *fileStore) Append(ctx context.Context, r Record) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	b, err := json.Marshal(fileRecord{TS: r.At.Unix(), Account: r.Account, To: r.To, OK: r.OK, Detail: r.Detail})
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if _, err := s.f.Write(b); err != nil {
		return err
	}
	s.index(r.To, r.OK)
	return nil
}

func (s *fileStore) ContainsRecipient(ctx context.Context, to string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return false, ErrClosed
	}
	_, ok := s.seen[NormalizeRecipient(to)]
	return ok, nil
}

func (s *fileStore) LifetimeTotals(ctx context.Context) (Totals, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return Totals{}, ErrClosed
	}
	return s.totals, nil
}

func (s *fileStore) Records(ctx context.Context, q Query) ([]Record, error) {
	s.mu.Lock()
	closed := s.f == nil
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	var all []Record
	_, err := s.scan(func(fr fileRecord) {
		if ctx.Err() == nil {
			all = append(all, fr.record())
		}
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return q.apply(all), nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
