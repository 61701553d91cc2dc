// Package accounts is the sender-account registry, persisted as a JSON array.
package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dmrotor/internal/proxy"
)

const DefaultAlias = "default"

var (
	ErrNotFound = errors.New("account not found")
	ErrExists   = errors.New("account already exists")
)

// Account is a sender identity. Username is the case-insensitive key; Alias
// groups accounts into campaigns.
type Account struct {
	Username  string
	Alias     string
	Active    bool
	Connected bool
	Proxy     proxy.Config
}

// record is the on-disk shape. Active is a pointer so a missing key defaults
// to true.
type record struct {
	Username  string `json:"username"`
	Alias     string `json:"alias,omitempty"`
	Active    *bool  `json:"active,omitempty"`
	Connected bool   `json:"connected"`
	proxy.Config
}

func (r record) account() Account {
	a := Account{
		Username:  NormalizeUsername(r.Username),
		Alias:     strings.TrimSpace(r.Alias),
		Active:    r.Active == nil || *r.Active,
		Connected: r.Connected,
		Proxy:     r.Config,
	}
	return normalize(a)
}

func toRecord(a Account) record {
	active := a.Active
	r := record{Username: a.Username, Alias: a.Alias, Active: &active, Connected: a.Connected}
	if a.Proxy.Enabled() {
		r.Config = a.Proxy
	}
	return r
}

func normalize(a Account) Account {
	if a.Alias == "" {
		a.Alias = DefaultAlias
	}
	if a.Proxy.StickyMinutes < 1 {
		a.Proxy.StickyMinutes = proxy.DefaultStickyMinutes
	}
	return a
}

// NormalizeUsername trims whitespace and a leading "@".
func NormalizeUsername(u string) string {
	return strings.TrimPrefix(strings.TrimSpace(u), "@")
}

// Registry is safe for concurrent use. Mutations are written through to the
// file immediately.
type Registry struct {
	path string

	mu    sync.Mutex
	items []Account
}

// Open loads path. A missing file yields an empty registry.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return r, nil
	}
	var recs []record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("accounts %s: %w", path, err)
	}
	for _, rec := range recs {
		if NormalizeUsername(rec.Username) == "" {
			continue
		}
		r.items = append(r.items, rec.account())
	}
	return r, nil
}

func (r *Registry) All() []Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Account(nil), r.items...)
}

// List returns the accounts of one alias in file order.
func (r *Registry) List(alias string) []Account {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		alias = DefaultAlias
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Account
	for _, a := range r.items {
		if a.Alias == alias {
			out = append(out, a)
		}
	}
	return out
}

// Aliases returns every alias in use plus the default one, sorted.
func (r *Registry) Aliases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := map[string]struct{}{DefaultAlias: {}}
	for _, a := range r.items {
		set[a.Alias] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Get(username string) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(username)
	if i < 0 {
		return Account{}, false
	}
	return r.items[i], true
}

func (r *Registry) Add(a Account) error {
	a.Username = NormalizeUsername(a.Username)
	if a.Username == "" {
		return errors.New("username is required")
	}
	a = normalize(a)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(a.Username) >= 0 {
		return ErrExists
	}
	r.items = append(r.items, a)
	return r.saveLocked()
}

// Remove reports whether the account existed.
func (r *Registry) Remove(username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(username)
	if i < 0 {
		return false, nil
	}
	r.items = append(r.items[:i], r.items[i+1:]...)
	return true, r.saveLocked()
}

func (r *Registry) SetActive(username string, active bool) error {
	return r.update(username, func(a *Account) { a.Active = active })
}

func (r *Registry) MarkConnected(username string, connected bool) error {
	return r.update(username, func(a *Account) { a.Connected = connected })
}

func (r *Registry) SetProxy(username string, p proxy.Config) error {
	return r.update(username, func(a *Account) { a.Proxy = p })
}

func (r *Registry) update(username string, fn func(*Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(username)
	if i < 0 {
		return ErrNotFound
	}
	a := r.items[i]
	fn(&a)
	r.items[i] = normalize(a)
	return r.saveLocked()
}

func (r *Registry) indexLocked(username string) int {
	username = NormalizeUsername(username)
	for i, a := range r.items {
		if strings.EqualFold(a.Username, username) {
			return i
		}
	}
	return -1
}

// saveLocked writes via a temp file and rename.
func (r *Registry) saveLocked() error {
	recs := make([]record, 0, len(r.items))
	for _, a := range r.items {
		recs = append(recs, toRecord(a))
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
