package accounts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dmrotor/internal/proxy"
)

func TestOpenNormalizesRecords(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "accounts.json")
	raw := `[
  {"username": "@Alice"},
  {"username": "bob", "alias": "ventas", "active": false, "connected": true,
   "proxy_url": "http://p.example", "proxy_sticky_minutes": 0},
  {"username": "  "}
]`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	reg, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("got %d accounts", len(all))
	}
	a := all[0]
	if a.Username != "Alice" || a.Alias != DefaultAlias || !a.Active || a.Connected {
		t.Fatalf("alice = %+v", a)
	}
	if a.Proxy.StickyMinutes != proxy.DefaultStickyMinutes {
		t.Fatalf("sticky default = %d", a.Proxy.StickyMinutes)
	}
	b := all[1]
	if b.Alias != "ventas" || b.Active || !b.Connected || b.Proxy.URL != "http://p.example" {
		t.Fatalf("bob = %+v", b)
	}
	if got := reg.Aliases(); strings.Join(got, ",") != "default,ventas" {
		t.Fatalf("aliases = %v", got)
	}
}

func TestRegistryMutationsPersist(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "accounts.json")
	reg, err := Open(path)
	if err != nil {
		t.Fatalf("Open missing file: %v", err)
	}
	if err := reg.Add(Account{Username: "@carol", Active: true}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := reg.Add(Account{Username: "CAROL"}); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate Add = %v", err)
	}
	if err := reg.Add(Account{Username: "dave", Alias: "x", Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := reg.MarkConnected("Carol", true); err != nil {
		t.Fatalf("MarkConnected error: %v", err)
	}
	if err := reg.SetActive("dave", false); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetProxy("dave", proxy.Config{URL: "http://q.example", StickyMinutes: 4}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetActive("nobody", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetActive unknown = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	c, ok := reopened.Get("carol")
	if !ok || !c.Connected || !c.Active || c.Alias != DefaultAlias {
		t.Fatalf("carol = %+v ok=%v", c, ok)
	}
	d, _ := reopened.Get("DAVE")
	if d.Active || d.Proxy.URL != "http://q.example" || d.Proxy.StickyMinutes != 4 {
		t.Fatalf("dave = %+v", d)
	}
	if got := reopened.List("x"); len(got) != 1 || got[0].Username != "dave" {
		t.Fatalf("List(x) = %+v", got)
	}

	removed, err := reopened.Remove("carol")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if removed, _ := reopened.Remove("carol"); removed {
		t.Fatal("second Remove reported true")
	}
	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "carol") {
		t.Fatalf("file still contains removed account: %s", b)
	}
}
