package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"dmrotor/internal/proxy"
	"dmrotor/internal/session"
	"dmrotor/internal/transport"
)

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_password","message":"wrong"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-` + in["username"] + `"}`))
	})
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Session tok-alice" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/direct", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		switch in["recipient"] {
		case "blocked":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"feedback_required","message":"try later"}`))
		case "busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "spam":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T, base string) (*Gateway, *session.Store) {
	t.Helper()
	store := session.New(filepath.Join(t.TempDir(), "sessions"), "")
	g, err := New(Options{BaseURL: base, Sessions: store, Proxies: proxy.NewManager(proxy.Options{})})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return g, store
}

func TestLoginOpenSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	relay := newRelay(t)
	g, store := newGateway(t, relay.URL+"/")
	id := transport.Identity{Username: "alice"}

	if _, err := g.Open(ctx, id); !errors.Is(err, transport.ErrSessionInvalid) {
		t.Fatalf("Open without session = %v", err)
	}

	if _, err := g.Login(ctx, id, "nope"); transport.KindOf(err) != transport.KindRejected {
		t.Fatalf("bad login = %v", err)
	} else if !strings.Contains(err.Error(), "bad_password") {
		t.Fatalf("bad login message = %v", err)
	}

	blob, err := g.Login(ctx, id, "secret")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if err := store.Save("alice", blob); err != nil {
		t.Fatal(err)
	}

	c, err := g.Open(ctx, id)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping error: %v", err)
	}
	if err := c.Send(ctx, "bob", "hola!"); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	err = c.Send(ctx, "blocked", "hola!")
	if !errors.Is(err, transport.ErrRejected) || !strings.Contains(err.Error(), "feedback_required") {
		t.Fatalf("blocked send = %v", err)
	}
	if err := c.Send(ctx, "busy", "hola!"); !errors.Is(err, transport.ErrUnavailable) {
		t.Fatalf("busy send = %v", err)
	}
	if err := c.Send(ctx, "spam", "hola!"); !strings.Contains(err.Error(), "rate_limit") {
		t.Fatalf("spam send = %v", err)
	}
}

func TestPingExpiredSession(t *testing.T) {
	t.Parallel()
	relay := newRelay(t)
	g, store := newGateway(t, relay.URL)
	blob, _ := json.Marshal(SessionFile{Username: "carol", Token: "stale"})
	if err := store.Save("carol", blob); err != nil {
		t.Fatal(err)
	}
	c, err := g.Open(context.Background(), transport.Identity{Username: "carol"})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, transport.ErrSessionInvalid) {
		t.Fatalf("Ping = %v", err)
	}
}

func TestUnreachableRelayIsUnavailable(t *testing.T) {
	t.Parallel()
	relay := newRelay(t)
	base := relay.URL
	relay.Close()
	g, _ := newGateway(t, base)
	_, err := g.Login(context.Background(), transport.Identity{Username: "dave"}, "secret")
	if transport.KindOf(err) != transport.KindUnavailable {
		t.Fatalf("Login against closed relay = %v", err)
	}
}
