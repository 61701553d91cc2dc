package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dmrotor/internal/accounts"
	"dmrotor/internal/campaign"
	"dmrotor/internal/config"
	"dmrotor/internal/operator"
	"dmrotor/internal/transport/fake"
)

func noEnv(string) (string, bool) { return "", false }

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := strings.Join([]string{
		"logging:",
		"  level: error",
		"storage:",
		"  driver: memory",
		"paths:",
		"  accounts: " + filepath.Join(dir, "accounts.json"),
		"  sessions: " + filepath.Join(dir, "sessions"),
		"  legacy_sessions: " + filepath.Join(dir, "legacy"),
		"  leads: " + filepath.Join(dir, "leads"),
		"timezone: UTC",
		"campaign:",
		"  max_concurrency: 2",
		"",
	}, "\n")
	path := filepath.Join(dir, "dmrotor.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestApp(t *testing.T, tr *fake.Transport) *App {
	t.Helper()
	dir := t.TempDir()
	a, err := New(context.Background(), Options{
		ConfigPath: writeConfig(t, dir),
		Transport:  tr,
		SkipDotEnv: true,
		Lookup:     noEnv,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestRunCampaignEndToEnd(t *testing.T) {
	t.Parallel()
	tr := fake.New()
	a := newTestApp(t, tr)

	for _, u := range []string{"alice", "bob"} {
		if err := a.Accounts().Add(accounts.Account{Username: u, Active: true}); err != nil {
			t.Fatal(err)
		}
		if err := a.Sessions().Save(u, []byte(`{"token":"x"}`)); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Accounts().Add(accounts.Account{Username: "carol", Active: false}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Leads().Append("ventas", []string{"@lead1", "lead2"}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	con := operator.New(strings.NewReader(""), &out)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sum, err := a.RunCampaign(ctx, con, campaign.Request{
		List:        "ventas",
		PerAccount:  5,
		Concurrency: 9,
		Templates:   []string{"hola"},
	})
	if err != nil {
		t.Fatalf("RunCampaign: %v", err)
	}
	if sum.Successes != 2 || sum.Failures != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Accounts) != 2 {
		t.Fatalf("inactive account used: %v", sum.Accounts)
	}
	if got := len(tr.Sent()); got != 2 {
		t.Fatalf("sent = %d", got)
	}
	if !strings.Contains(out.String(), "MAX_CONCURRENCY (2)") || !strings.Contains(out.String(), "== Resumen ==") {
		t.Fatalf("console output:\n%s", out.String())
	}
	if ok, _ := a.Store().ContainsRecipient(ctx, "LEAD1"); !ok {
		t.Fatal("ledger missing lead1")
	}
}

func TestRunCampaignWithoutSessions(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, fake.New())
	if err := a.Accounts().Add(accounts.Account{Username: "alice", Active: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Leads().Append("l", []string{"x"}); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	// The operator declines the login offer.
	con := operator.New(strings.NewReader("n\n"), &out)
	_, err := a.RunCampaign(context.Background(), con, campaign.Request{List: "l", PerAccount: 2, Concurrency: 1})
	if !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out.String(), "sin sesión guardada") {
		t.Fatalf("console output:\n%s", out.String())
	}
}

func TestRunCampaignEmptyList(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, fake.New())
	var out bytes.Buffer
	_, err := a.RunCampaign(context.Background(), operator.New(strings.NewReader(""), &out), campaign.Request{List: "nada"})
	if !errors.Is(err, ErrNoLeads) {
		t.Fatalf("err = %v", err)
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      *config.StorageConfig
		driver  string
		path    string
		wantErr bool
	}{
		{name: "default", in: nil, driver: "file", path: config.DefaultLedgerPath},
		{name: "jsonl alias", in: &config.StorageConfig{Driver: "JSONL", Path: "x.jsonl"}, driver: "file", path: "x.jsonl"},
		{name: "sqlite", in: &config.StorageConfig{Driver: "sqlite3", Path: "db.sqlite"}, driver: "sqlite", path: "db.sqlite"},
		{name: "sqlite needs path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "bad busy timeout", in: &config.StorageConfig{Driver: "sqlite", Path: "db", BusyTimeout: "soon"}, wantErr: true},
		{name: "unknown", in: &config.StorageConfig{Driver: "mongo"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mapStorageConfig(&config.Config{Storage: tc.in})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Driver != tc.driver || got.Path != tc.path {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	got, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{Enabled: true, RetryBase: "2s"}})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Enabled || got.RetryBase != 2*time.Second || got.RetryMaxDelay != 10*time.Second {
		t.Fatalf("got %+v", got)
	}
	if _, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{RetryMaxDelay: "x"}}); err == nil {
		t.Fatal("bad duration accepted")
	}
	if r := mapReportConfig(&config.Config{Report: &config.ReportConfig{Enabled: true}}); r.Spec != config.DefaultDigestSpec || !r.Enabled {
		t.Fatalf("report = %+v", r)
	}
}

func TestEnvOverlayLimits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lookup := func(k string) (string, bool) {
		switch k {
		case config.EnvMaxPerAccount:
			return "7", true
		case config.EnvDelayMin:
			return "15", true
		}
		return "", false
	}
	a, err := New(context.Background(), Options{ConfigPath: writeConfig(t, dir), SkipDotEnv: true, Lookup: lookup})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())
	if a.Campaign().MaxPerAccount != 7 || a.EnvDefaults().DelayMin != 15 {
		t.Fatalf("campaign = %+v env = %+v", a.Campaign(), a.EnvDefaults())
	}
	if _, err := a.Transport(); err == nil {
		t.Fatal("gateway without base_url should fail")
	}
}
