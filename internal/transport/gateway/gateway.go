// Package gateway talks to the messaging platform through an HTTP relay.
//
// Relay API (JSON):
//
//	POST /v1/login   {"username","password"}        -> {"token"}
//	GET  /v1/me      Authorization: Session <token>  -> 200 | 401
//	POST /v1/direct  {"recipient","text"}            -> 200 | 401 | 4xx {"error","message"}
//
// Every request goes through the account's sticky proxy binding.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dmrotor/internal/proxy"
	"dmrotor/internal/session"
	"dmrotor/internal/transport"
	logx "dmrotor/pkg/logx"
)

// SessionFile is the blob persisted in the session store.
type SessionFile struct {
	Username string    `json:"username"`
	Token    string    `json:"token"`
	SavedAt  time.Time `json:"saved_at"`
}

type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Sessions *session.Store
	Proxies  *proxy.Manager
	Log      logx.Logger
}

// Gateway implements transport.Dialer and transport.Authenticator.
type Gateway struct {
	base     *url.URL
	timeout  time.Duration
	sessions *session.Store
	proxies  *proxy.Manager
	log      logx.Logger
}

var (
	_ transport.Dialer        = (*Gateway)(nil)
	_ transport.Authenticator = (*Gateway)(nil)
)

func New(opts Options) (*Gateway, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("gateway.base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("gateway.base_url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Sessions == nil || opts.Proxies == nil {
		return nil, errors.New("gateway needs a session store and a proxy manager")
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gateway{
		base:     u,
		timeout:  opts.Timeout,
		sessions: opts.Sessions,
		proxies:  opts.Proxies,
		log:      log.With(logx.String("comp", "gateway")),
	}, nil
}

// httpClient binds the account's proxy. Binding failures are unavailable
// faults.
func (g *Gateway) httpClient(ctx context.Context, id transport.Identity, reason string) (*http.Client, error) {
	tr := &http.Transport{TLSHandshakeTimeout: 10 * time.Second}
	b, err := g.proxies.Ensure(ctx, id.Username, id.Proxy, reason)
	if err != nil {
		return nil, transport.Wrap(transport.KindUnavailable, "proxy", err)
	}
	if b != nil {
		pu, err := url.Parse(b.URL)
		if err != nil {
			return nil, transport.Wrap(transport.KindUnavailable, "proxy", err)
		}
		tr.Proxy = http.ProxyURL(pu)
	}
	return &http.Client{Transport: tr, Timeout: g.timeout}, nil
}

func (g *Gateway) Open(ctx context.Context, id transport.Identity) (transport.Client, error) {
	blob, err := g.sessions.Load(id.Username)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, transport.Wrap(transport.KindSessionInvalid, "open", err)
		}
		return nil, err
	}
	var sf SessionFile
	if err := json.Unmarshal(blob, &sf); err != nil || sf.Token == "" {
		return nil, transport.Wrap(transport.KindSessionInvalid, "open", errors.New("corrupt session file"))
	}
	hc, err := g.httpClient(ctx, id, "send")
	if err != nil {
		return nil, err
	}
	return &client{g: g, id: id, token: sf.Token, http: hc}, nil
}

func (g *Gateway) Login(ctx context.Context, id transport.Identity, password string) ([]byte, error) {
	hc, err := g.httpClient(ctx, id, "login")
	if err != nil {
		return nil, err
	}
	var out struct {
		Token string `json:"token"`
	}
	err = g.do(ctx, hc, http.MethodPost, "/v1/login", "", map[string]string{
		"username": id.Username,
		"password": password,
	}, &out)
	if err != nil {
		g.invalidateOn(id.Username, err)
		return nil, err
	}
	if out.Token == "" {
		return nil, transport.Wrap(transport.KindRejected, "login", errors.New("empty token"))
	}
	g.log.Info("login ok", logx.String("account", id.Username))
	return json.Marshal(SessionFile{Username: id.Username, Token: out.Token, SavedAt: time.Now().UTC()})
}

func (g *Gateway) invalidateOn(username string, err error) {
	if transport.KindOf(err) == transport.KindUnavailable {
		g.proxies.Invalidate(username, err)
	}
}

type apiError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (g *Gateway) do(ctx context.Context, hc *http.Client, method, path, token string, in, out any) error {
	op := strings.TrimPrefix(path, "/v1/")
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Session "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Transport-level failures (dial, TLS, proxy, timeouts).
		return transport.Wrap(transport.KindUnavailable, op, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode/100 == 2:
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return transport.Wrap(transport.KindSessionInvalid, op, errors.New(apiMessage(raw, "login_required")))
	case resp.StatusCode == http.StatusProxyAuthRequired,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return transport.Wrap(transport.KindUnavailable, op, fmt.Errorf("relay returned %s", resp.Status))
	case resp.StatusCode == http.StatusTooManyRequests:
		return transport.Wrap(transport.KindRejected, op, errors.New(apiMessage(raw, "rate_limit")))
	default:
		return transport.Wrap(transport.KindRejected, op, errors.New(apiMessage(raw, resp.Status)))
	}
}

// apiMessage renders "code: message" from a relay error body.
func apiMessage(raw []byte, fallback string) string {
	var ae apiError
	if err := json.Unmarshal(raw, &ae); err != nil || (ae.Code == "" && ae.Message == "") {
		return fallback
	}
	switch {
	case ae.Code != "" && ae.Message != "":
		return ae.Code + ": " + ae.Message
	case ae.Code != "":
		return ae.Code
	default:
		return ae.Message
	}
}

type client struct {
	g     *Gateway
	id    transport.Identity
	token string
	http  *http.Client
}

func (c *client) Send(ctx context.Context, recipient, text string) error {
	err := c.g.do(ctx, c.http, http.MethodPost, "/v1/direct", c.token, map[string]string{
		"recipient": recipient,
		"text":      text,
	}, nil)
	c.g.invalidateOn(c.id.Username, err)
	return err
}

func (c *client) Ping(ctx context.Context) error {
	err := c.g.do(ctx, c.http, http.MethodGet, "/v1/me", c.token, nil, nil)
	c.g.invalidateOn(c.id.Username, err)
	return err
}

func (c *client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
