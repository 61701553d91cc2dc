package board

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLifecycleAndExpiry(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	b := New(2).WithClock(func() time.Time { return now })

	b.Begin("alice", "lead1")
	now = now.Add(time.Second)
	b.Begin("bob", "lead2")
	now = now.Add(time.Second)
	b.Begin("carol", "lead3")

	rows := b.Rows()
	if len(rows) != 2 || rows[0].Account != "alice" || rows[1].Account != "bob" {
		t.Fatalf("rows = %+v", rows)
	}

	b.Complete("alice", true, "")
	b.Abandon("bob", "cancelado")
	b.Complete("ghost", true, "")

	now = now.Add(DefaultExpiry)
	if got := len(b.Rows()); got != 2 {
		t.Fatalf("entries expired too early: %d rows", got)
	}
	now = now.Add(time.Second)
	rows = b.Rows()
	if len(rows) != 1 || rows[0].Account != "carol" || rows[0].State != StateRunning {
		t.Fatalf("after expiry rows = %+v", rows)
	}
}

func TestBeginReplacesEntry(t *testing.T) {
	t.Parallel()
	b := New(5)
	b.Begin("alice", "one")
	b.Complete("alice", false, "envío falló")
	b.Begin("alice", "two")
	rows := b.Rows()
	if len(rows) != 1 || rows[0].Lead != "two" || rows[0].State != StateRunning || rows[0].Detail != "" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestConcurrentUse(t *testing.T) {
	t.Parallel()
	b := New(4)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc := string(rune('a' + i%4))
			b.Begin(acc, "x")
			b.Complete(acc, i%2 == 0, "")
			_ = b.Render()
		}(i)
	}
	wg.Wait()
	if got := len(b.Rows()); got > 4 {
		t.Fatalf("rows = %d", got)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	b := New(3)
	if !strings.Contains(b.Render(), "Sin envíos en vuelo") {
		t.Fatal("empty board render")
	}
	b.Begin("alice", "bob")
	out := b.Render()
	if !strings.Contains(out, "@alice") || !strings.Contains(out, "@bob") || !strings.Contains(out, "Cuenta") {
		t.Fatalf("render = %q", out)
	}
}
