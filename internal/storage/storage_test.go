package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "dmrotor/pkg/logx"
)

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sent_log.jsonl")
	if driver == "sqlite" {
		path = filepath.Join(t.TempDir(), "ledger.db")
	}
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s) error: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreDrivers(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, driver := range []string{"file", "sqlite", "memory"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openDriver(t, driver)

			recs := []Record{
				{At: base, Account: "alice", To: "Bob", OK: true},
				{At: base.Add(time.Hour), Account: "carol", To: "dave", OK: false, Detail: "proxy sin respuesta"},
				{At: base.Add(2 * time.Hour), Account: "Alice", To: "erin", OK: true},
			}
			for _, r := range recs {
				if err := st.Append(ctx, r); err != nil {
					t.Fatalf("Append error: %v", err)
				}
			}

			for _, to := range []string{"bob", "BOB", "@bob", " Bob "} {
				ok, err := st.ContainsRecipient(ctx, to)
				if err != nil || !ok {
					t.Fatalf("ContainsRecipient(%q) = %v, %v", to, ok, err)
				}
			}
			if ok, _ := st.ContainsRecipient(ctx, "zed"); ok {
				t.Fatal("unexpected match for zed")
			}

			tot, err := st.LifetimeTotals(ctx)
			if err != nil {
				t.Fatalf("LifetimeTotals error: %v", err)
			}
			if tot != (Totals{OK: 2, Fail: 1}) {
				t.Fatalf("totals = %+v", tot)
			}

			got, err := st.Records(ctx, Query{Account: "alice"})
			if err != nil {
				t.Fatalf("Records error: %v", err)
			}
			if len(got) != 2 || got[0].To != "Bob" || got[1].To != "erin" {
				t.Fatalf("account filter = %+v", got)
			}

			got, _ = st.Records(ctx, Query{Limit: 1})
			if len(got) != 1 || got[0].To != "erin" {
				t.Fatalf("limit = %+v", got)
			}

			got, _ = st.Records(ctx, Query{Since: base.Add(30 * time.Minute), Until: base.Add(2 * time.Hour)})
			if len(got) != 1 || got[0].Detail != "proxy sin respuesta" || got[0].OK {
				t.Fatalf("range = %+v", got)
			}

			if err := st.Close(); err != nil {
				t.Fatalf("Close error: %v", err)
			}
			if err := st.Append(ctx, Record{To: "late"}); err == nil {
				t.Fatal("expected error appending after Close")
			}
		})
	}
}

func TestFileStoreReopenAndMalformedLines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log", "sent_log.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	seed := `{"ts":1700000000,"account":"a","to":"Known","ok":true,"detail":""}
not json
{"ts":1700000001,"account":"a","to":"other","ok":false,"detail":"x"}

`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if ok, _ := st.ContainsRecipient(ctx, "known"); !ok {
		t.Fatal("seeded recipient not indexed")
	}
	if err := st.Append(ctx, Record{Account: "b", To: "new", OK: true}); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer st.Close()
	tot, _ := st.LifetimeTotals(ctx)
	if tot != (Totals{OK: 2, Fail: 1}) {
		t.Fatalf("totals after reopen = %+v", tot)
	}
	if ok, _ := st.ContainsRecipient(ctx, "NEW"); !ok {
		t.Fatal("appended recipient lost after reopen")
	}

	b, _ := os.ReadFile(path)
	last := strings.TrimSpace(string(b))
	last = last[strings.LastIndex(last, "\n")+1:]
	for _, key := range []string{`"ts":`, `"account":"b"`, `"to":"new"`, `"ok":true`, `"detail":""`} {
		if !strings.Contains(last, key) {
			t.Fatalf("record line %s missing %s", last, key)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("ART", -3*60*60)
	now := time.Date(2024, 5, 10, 10, 0, 0, 0, loc)
	day := func(d, h int) time.Time { return time.Date(2024, 5, d, h, 0, 0, 0, loc) }
	recs := []Record{
		{At: day(10, 1), Account: "a", OK: true},
		{At: day(10, 2), Account: "b", OK: true},
		{At: day(10, 3), Account: "b", OK: false},
		{At: day(9, 23), Account: "b", OK: true},
		{At: day(4, 12), Account: "c", OK: true},
		{At: day(3, 12), Account: "c", OK: true},
	}

	today := Aggregate(recs, now, 1, loc)
	if today.Sent != 2 || today.Errors != 1 || len(today.PerDay) != 1 {
		t.Fatalf("today = %+v", today)
	}

	week := Aggregate(recs, now, 7, loc)
	if week.Sent != 4 || week.Errors != 1 {
		t.Fatalf("week = %+v", week)
	}
	if len(week.PerDay) != 3 || week.PerDay[0].Day != "2024-05-04" || week.PerDay[2].Day != "2024-05-10" {
		t.Fatalf("per day = %+v", week.PerDay)
	}
	if week.TopAccounts[0] != (AccountCount{Account: "b", Sent: 2}) {
		t.Fatalf("top = %+v", week.TopAccounts)
	}
}

func TestAggregateTopAccountsCapped(t *testing.T) {
	t.Parallel()
	now := time.Now()
	var recs []Record
	for i, acc := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		for j := 0; j <= i; j++ {
			recs = append(recs, Record{At: now, Account: acc, OK: true})
		}
	}
	st := Aggregate(recs, now, 1, time.UTC)
	if len(st.TopAccounts) != 5 || st.TopAccounts[0].Account != "g" {
		t.Fatalf("top = %+v", st.TopAccounts)
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	recs := []Record{
		{At: time.Date(2024, 5, 1, 15, 4, 5, 0, time.UTC), Account: "a", To: "b", OK: true},
		{At: time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC), Account: "a", To: "c", Detail: "line1\nline2, more"},
	}
	if err := WriteCSV(&buf, recs, time.UTC); err != nil {
		t.Fatalf("WriteCSV error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if lines[0] != "timestamp,account,to,status,detail" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "2024-05-01 15:04:05,a,b,OK," {
		t.Fatalf("row = %q", lines[1])
	}
	if lines[2] != `2024-05-01 16:00:00,a,c,ERROR,"line1 line2, more"` {
		t.Fatalf("row = %q", lines[2])
	}
}
