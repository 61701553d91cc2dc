package gate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dmrotor/internal/accounts"
	"dmrotor/internal/session"
	"dmrotor/internal/transport"
	"dmrotor/internal/transport/fake"
)

type flags struct {
	mu sync.Mutex
	m  map[string]bool
}

func (f *flags) MarkConnected(username string, connected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = map[string]bool{}
	}
	f.m[username] = connected
	return nil
}

func (f *flags) get(username string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.m[username]
	return v, ok
}

type passwords map[string]string

func (p passwords) Password(_ context.Context, username string) (string, error) {
	return p[username], nil
}

func setup(t *testing.T, prompter Prompter) (*Gate, *fake.Transport, *session.Store, *flags) {
	t.Helper()
	tr := fake.New()
	store := session.New(t.TempDir(), "")
	reg := &flags{}
	g, err := New(Options{Dialer: tr, Auth: tr, Sessions: store, Accounts: reg, Prompter: prompter})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, tr, store, reg
}

func acct(name string) accounts.Account {
	return accounts.Account{Username: name, Alias: "default", Active: true}
}

func TestPartition(t *testing.T) {
	t.Parallel()
	g, tr, store, reg := setup(t, nil)
	for _, u := range []string{"ok", "stale"} {
		if err := store.Save(u, []byte(`{"token":"t"}`)); err != nil {
			t.Fatal(err)
		}
	}
	tr.FailPing("stale", transport.Wrap(transport.KindSessionInvalid, "me", errors.New("login_required")))

	ready, pending := g.Partition(context.Background(), []accounts.Account{acct("ok"), acct("missing"), acct("stale")})
	if len(ready) != 1 || ready[0].Username != "ok" {
		t.Fatalf("ready = %+v", ready)
	}
	if len(pending) != 2 || pending[0].Reason != ReasonNoSession || pending[1].Reason != ReasonExpired {
		t.Fatalf("pending = %+v", pending)
	}
	if v, _ := reg.get("ok"); !v {
		t.Fatal("ok should be marked connected")
	}
	if v, seen := reg.get("stale"); !seen || v {
		t.Fatal("stale should be marked disconnected")
	}
}

func TestRecoverLogsInAndSaves(t *testing.T) {
	t.Parallel()
	g, tr, store, reg := setup(t, passwords{"a": "secret\n", "b": "wrong"})
	tr.SetPassword("a", "secret")
	tr.SetPassword("b", "right")

	got := g.Recover(context.Background(), []Pending{
		{Account: acct("a"), Reason: ReasonNoSession},
		{Account: acct("b"), Reason: ReasonNoSession},
	})
	if len(got) != 1 || got[0].Username != "a" {
		t.Fatalf("recovered = %+v", got)
	}
	if !store.Has("a") || store.Has("b") {
		t.Fatal("only a should have a session")
	}
	if v, _ := reg.get("b"); v {
		t.Fatal("b should be disconnected")
	}
}

func TestLoginRejectsEmptyPassword(t *testing.T) {
	t.Parallel()
	g, _, _, _ := setup(t, nil)
	if err := g.Login(context.Background(), acct("a"), ""); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v", err)
	}
	if g.Reauthenticate(context.Background(), acct("a")) {
		t.Fatal("no prompter means no reauthentication")
	}
}
