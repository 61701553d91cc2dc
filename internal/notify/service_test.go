package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dmrotor/internal/campaign"
	"dmrotor/internal/eventbus"
	logx "dmrotor/pkg/logx"
)

type recorder struct {
	mu    sync.Mutex
	fails int
	texts []string
	got   chan string
}

func newRecorder(fails int) *recorder {
	return &recorder{fails: fails, got: make(chan string, 16)}
}

func (r *recorder) SendText(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("telegram: 502")
	}
	r.texts = append(r.texts, text)
	r.got <- text
	return nil
}

func waitText(t *testing.T, r *recorder) string {
	t.Helper()
	select {
	case s := <-r.got:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("nothing delivered")
		return ""
	}
}

func testConfig() Config {
	return Config{Enabled: true, RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond, DedupWindow: time.Minute}
}

func TestNotifyRetriesAndPrefixes(t *testing.T) {
	t.Parallel()
	rec := newRecorder(2)
	s := New(testConfig(), rec, 42, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.SendAlert(context.Background(), "proxy caído"); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	got := waitText(t, rec)
	if !strings.HasSuffix(got, "proxy caído") || !strings.HasPrefix(got, "⚠️") {
		t.Fatalf("text = %q", got)
	}
	if len(s.Snapshot()) != 1 {
		t.Fatalf("history = %+v", s.Snapshot())
	}
}

func TestNotifyDedup(t *testing.T) {
	t.Parallel()
	rec := newRecorder(0)
	s := New(testConfig(), rec, 42, logx.Nop(), nil)
	s.Start(context.Background())

	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), Notification{Text: "igual"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Notify(context.Background(), Notification{Text: "otro"}); err != nil {
		t.Fatal(err)
	}
	s.Stop(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if strings.Join(rec.texts, ",") != "igual,otro" {
		t.Fatalf("texts = %v", rec.texts)
	}
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, newRecorder(0), 42, logx.Nop(), nil)
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v", err)
	}
	s2 := New(testConfig(), newRecorder(0), 42, logx.Nop(), nil)
	if err := s2.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v", err)
	}
}

func TestForwardCampaignEvents(t *testing.T) {
	t.Parallel()
	rec := newRecorder(0)
	bus := eventbus.New()
	s := New(testConfig(), rec, 42, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = s.Forward(ctx, bus)
	}()
	<-ready

	// Forward subscribes asynchronously; keep publishing until it is seen.
	deadline := time.After(2 * time.Second)
	for {
		bus.Publish(eventbus.Event{Type: eventbus.TypeAttention, Data: campaign.Incident{Account: "a", Message: "proxy caído"}})
		select {
		case got := <-rec.got:
			if !strings.Contains(got, "Atención en @a: proxy caído") {
				t.Fatalf("text = %q", got)
			}
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("event never forwarded")
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	sum := campaign.Summary{
		Group:      "ventas",
		Successes:  2,
		Failures:   1,
		Accounts:   []string{"a"},
		PerAccount: map[string]campaign.Tally{"a": {Sent: 2, Errors: 1}},
		StopReason: "se presionó Q",
	}
	n, ok := Format(eventbus.Event{Type: eventbus.TypeCampaignFinished, Data: sum})
	if !ok || !strings.Contains(n.Text, "2 OK, 1 errores") || !strings.Contains(n.Text, "@a: 2 enviados") {
		t.Fatalf("notification = %+v", n)
	}
	if _, ok := Format(eventbus.Event{Type: eventbus.TypeJobFinished, Data: campaign.Result{}}); ok {
		t.Fatal("job events should not be forwarded")
	}
	if n, ok := Format(eventbus.Event{Type: eventbus.TypeDigest, Data: "resumen"}); !ok || n.Text != "resumen" {
		t.Fatalf("digest = %+v", n)
	}
}

func TestClip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hola", 10, "hola"},
		{"hola", 4, "hola"},
		{"holá mundo", 5, "holá…"},
		{"ñññ", 2, "ñ…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := clip(tc.in, tc.n); got != tc.want {
			t.Fatalf("clip(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
