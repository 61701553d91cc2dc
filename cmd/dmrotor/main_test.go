package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dmrotor/internal/app"
	"dmrotor/internal/transport/fake"
)

func noEnv(string) (string, bool) { return "", false }

type harness struct {
	dir  string
	cfg  string
	tr   *fake.Transport
	opts app.Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	body := strings.Join([]string{
		"logging:",
		"  level: error",
		"storage:",
		"  driver: file",
		"  path: " + filepath.Join(dir, "sent.jsonl"),
		"paths:",
		"  accounts: " + filepath.Join(dir, "accounts.json"),
		"  sessions: " + filepath.Join(dir, "sessions"),
		"  legacy_sessions: " + filepath.Join(dir, "legacy"),
		"  leads: " + filepath.Join(dir, "leads"),
		"timezone: UTC",
		"",
	}, "\n")
	cfg := filepath.Join(dir, "dmrotor.yaml")
	if err := os.WriteFile(cfg, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	tr := fake.New()
	return &harness{
		dir: dir,
		cfg: cfg,
		tr:  tr,
		opts: app.Options{
			Transport:  tr,
			SkipDotEnv: true,
			Lookup:     noEnv,
		},
	}
}

// run executes one command line with input as stdin and returns stdout.
func (h *harness) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := newCLI(strings.NewReader(input), &out)
	c.opts = h.opts
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.run(ctx, append([]string{"-config", h.cfg}, args...))
	return out.String(), err
}

func TestUsage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	out, err := h.run(t, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Commands:") {
		t.Fatalf("usage output:\n%s", out)
	}
	if _, err := h.run(t, "", "bogus"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("err = %v", err)
	}
}

func TestLeadsCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run(t, "", "leads", "add", "ventas", "@uno", "dos", " ")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 leads agregados") {
		t.Fatalf("add output:\n%s", out)
	}

	csvPath := filepath.Join(h.dir, "more.csv")
	if err := os.WriteFile(csvPath, []byte("tres,extra\n@cuatro\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if out, err = h.run(t, "", "leads", "import", "ventas", csvPath); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 leads importados") {
		t.Fatalf("import output:\n%s", out)
	}

	if out, err = h.run(t, "", "leads", "list"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ventas") || !strings.Contains(out, "4") {
		t.Fatalf("list output:\n%s", out)
	}

	if out, err = h.run(t, "", "leads", "show", "-limit", "1", "ventas"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "@uno") || strings.Contains(out, "@dos") || !strings.Contains(out, "3 más") {
		t.Fatalf("show output:\n%s", out)
	}

	// Declined confirmation keeps the list.
	if _, err = h.run(t, "n\n", "leads", "delete", "ventas"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "leads", "ventas.txt")); err != nil {
		t.Fatalf("list removed: %v", err)
	}
	if _, err = h.run(t, "", "leads", "delete", "-y", "ventas"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "leads", "ventas.txt")); !os.IsNotExist(err) {
		t.Fatalf("list still present: %v", err)
	}
}

func TestAccountsCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if _, err := h.run(t, "", "accounts", "add", "-user", "@Alice", "-alias", "ventas"); err != nil {
		t.Fatal(err)
	}
	out, err := h.run(t, "", "accounts", "add", "-user", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ya existe") {
		t.Fatalf("duplicate add output:\n%s", out)
	}
	if _, err := h.run(t, "", "accounts", "disable", "alice"); err != nil {
		t.Fatal(err)
	}
	if out, err = h.run(t, "", "accounts", "list", "-group", "ventas"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "@Alice") || !strings.Contains(out, "no") {
		t.Fatalf("list output:\n%s", out)
	}

	h.tr.SetPassword("Alice", "secreto")
	if out, err = h.run(t, "secreto\n", "accounts", "login", "alice"); err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Sesión guardada") {
		t.Fatalf("login output:\n%s", out)
	}

	if out, err = h.run(t, "", "accounts", "proxy-test", "alice"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no tiene proxy") {
		t.Fatalf("proxy-test output:\n%s", out)
	}

	if _, err := h.run(t, "", "accounts", "remove", "alice"); err != nil {
		t.Fatal(err)
	}
	if out, err = h.run(t, "", "accounts", "list"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No hay cuentas") {
		t.Fatalf("list after remove:\n%s", out)
	}
}

func TestCampaignAndLogs(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if _, err := h.run(t, "", "accounts", "add", "-user", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.run(t, "", "leads", "add", "l", "uno"); err != nil {
		t.Fatal(err)
	}
	h.tr.SetPassword("alice", "pw")

	// The session is missing, so the run offers a login and reads the password.
	out, err := h.run(t, "s\npw\n", "campaign",
		"-group", "default", "-list", "l",
		"-per-account", "5", "-concurrency", "1",
		"-delay-min", "10", "-delay-max", "10",
		"-template", "hola {nombre}")
	if err != nil {
		t.Fatalf("campaign: %v\n%s", err, out)
	}
	if !strings.Contains(out, "== Resumen ==") {
		t.Fatalf("campaign output:\n%s", out)
	}
	if got := len(h.tr.Sent()); got != 1 {
		t.Fatalf("sent = %d", got)
	}

	if out, err = h.run(t, "", "logs", "recent"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "@uno") || !strings.Contains(out, "OK") {
		t.Fatalf("recent output:\n%s", out)
	}

	if out, err = h.run(t, "", "logs", "stats", "-window", "semana"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Mensajes enviados: 1") {
		t.Fatalf("stats output:\n%s", out)
	}

	export := filepath.Join(h.dir, "export.csv")
	if _, err = h.run(t, "", "logs", "export", "-account", "alice", "-out", export); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(export)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(b), "\n"); lines != 2 {
		t.Fatalf("export has %d lines:\n%s", lines, b)
	}

	if _, err := h.run(t, "", "logs", "range", "-from", "2024-02-10", "-to", "2024-02-01"); err == nil {
		t.Fatal("inverted range accepted")
	}
}

func TestCampaignInputClosed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.run(t, "", "campaign", "-group", "default")
	if err == nil || !strings.Contains(err.Error(), "input closed") {
		t.Fatalf("err = %v", err)
	}
}

func TestRangeQuery(t *testing.T) {
	t.Parallel()
	q, err := rangeQuery("2024-03-01", "2024-03-01", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if q.Until.Sub(q.Since) != 24*time.Hour {
		t.Fatalf("q = %+v", q)
	}
	if _, err := rangeQuery("03/01/2024", "", time.UTC); err == nil {
		t.Fatal("bad layout accepted")
	}
}
