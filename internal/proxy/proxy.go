package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	logx "dmrotor/pkg/logx"

	"github.com/google/uuid"
)

const (
	DefaultCheckURL      = "https://api.ipify.org"
	DefaultStickyMinutes = 10
	sessionPlaceholder   = "{session}"
)

// Config is an account's proxy settings. URL, User and Password may contain
// the {session} placeholder, replaced by a fresh id per binding.
type Config struct {
	URL           string `json:"proxy_url,omitempty"`
	User          string `json:"proxy_user,omitempty"`
	Password      string `json:"proxy_pass,omitempty"`
	StickyMinutes int    `json:"proxy_sticky_minutes,omitempty"`
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

func (c Config) sticky() time.Duration {
	m := c.StickyMinutes
	if m < 1 {
		m = DefaultStickyMinutes
	}
	return time.Duration(m) * time.Minute
}

// Binding is a probed proxy endpoint pinned to one account until ExpiresAt.
type Binding struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
	PublicIP  string
	MaskedIP  string
	Latency   time.Duration
}

type Options struct {
	CheckURL     string
	ProbeTimeout time.Duration
	// Default applies to accounts without a proxy URL of their own.
	Default Config
	Log     logx.Logger
	// Now and NewTransport are replaced in tests.
	Now          func() time.Time
	NewTransport func(proxyURL *url.URL) http.RoundTripper
}

// Manager keeps one sticky binding per account.
type Manager struct {
	opts Options
	log  logx.Logger

	mu       sync.Mutex
	bindings map[string]*Binding
}

func NewManager(opts Options) *Manager {
	if strings.TrimSpace(opts.CheckURL) == "" {
		opts.CheckURL = DefaultCheckURL
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewTransport == nil {
		opts.NewTransport = func(u *url.URL) http.RoundTripper {
			return &http.Transport{Proxy: http.ProxyURL(u), TLSHandshakeTimeout: 10 * time.Second}
		}
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{opts: opts, log: log.With(logx.String("comp", "proxy")), bindings: map[string]*Binding{}}
}

// Resolve merges an account's settings with the configured default.
func (m *Manager) Resolve(c Config) Config {
	d := m.opts.Default
	out := c
	if !out.Enabled() {
		out.URL = d.URL
	}
	if out.User == "" {
		out.User = d.User
	}
	if out.Password == "" {
		out.Password = d.Password
	}
	if out.StickyMinutes < 1 {
		out.StickyMinutes = d.StickyMinutes
	}
	if out.StickyMinutes < 1 {
		out.StickyMinutes = DefaultStickyMinutes
	}
	return out
}

// Ensure returns the live binding for username or probes a new one. It
// returns (nil, nil) when no proxy applies.
func (m *Manager) Ensure(ctx context.Context, username string, c Config, reason string) (*Binding, error) {
	c = m.Resolve(c)
	if !c.Enabled() {
		return nil, nil
	}
	key := strings.ToLower(username)

	m.mu.Lock()
	if b, ok := m.bindings[key]; ok && b.ExpiresAt.After(m.opts.Now()) {
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()

	b, err := m.bind(ctx, username, c)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.bindings[key] = b
	m.mu.Unlock()

	m.log.Info("proxy bound",
		logx.String("account", username),
		logx.String("reason", reason),
		logx.String("ip", b.MaskedIP),
		logx.Duration("latency", b.Latency),
		logx.Int("sticky_min", c.StickyMinutes),
	)
	return b, nil
}

// Test probes c without storing a binding.
func (m *Manager) Test(ctx context.Context, c Config) (*Binding, error) {
	c = m.Resolve(c)
	if !c.Enabled() {
		return nil, errors.New("no proxy configured")
	}
	return m.bind(ctx, "test", c)
}

// Invalidate drops the binding so the next Ensure probes a new endpoint.
func (m *Manager) Invalidate(username string, cause error) {
	key := strings.ToLower(username)
	m.mu.Lock()
	_, ok := m.bindings[key]
	delete(m.bindings, key)
	m.mu.Unlock()
	if ok {
		m.log.Warn("proxy binding dropped", logx.String("account", username), logx.Err(cause))
	}
}

func (m *Manager) bind(ctx context.Context, username string, c Config) (*Binding, error) {
	sid := username + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	raw, err := BuildURL(c, sid)
	if err != nil {
		return nil, err
	}
	ip, latency, err := m.probe(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("proxy probe: %w", err)
	}
	return &Binding{
		URL:       raw,
		SessionID: sid,
		ExpiresAt: m.opts.Now().Add(c.sticky()),
		PublicIP:  ip,
		MaskedIP:  MaskIP(ip),
		Latency:   latency,
	}, nil
}

func (m *Manager) probe(ctx context.Context, rawProxy string) (string, time.Duration, error) {
	pu, err := url.Parse(rawProxy)
	if err != nil {
		return "", 0, err
	}
	client := &http.Client{Transport: m.opts.NewTransport(pu), Timeout: m.opts.ProbeTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.CheckURL, nil)
	if err != nil {
		return "", 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode/100 != 2 {
		return "", 0, fmt.Errorf("check returned %s", resp.Status)
	}
	return strings.TrimSpace(string(body)), time.Since(start), nil
}

// BuildURL substitutes the session id and injects credentials. Only http and
// https proxies are accepted.
func BuildURL(c Config, sessionID string) (string, error) {
	base := strings.TrimSpace(c.URL)
	if base == "" {
		return "", errors.New("proxy url is empty")
	}
	u, err := url.Parse(strings.ReplaceAll(base, sessionPlaceholder, sessionID))
	if err != nil {
		return "", fmt.Errorf("proxy url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("proxy url must start with http:// or https://")
	}
	user := strings.ReplaceAll(c.User, sessionPlaceholder, sessionID)
	pass := strings.ReplaceAll(c.Password, sessionPlaceholder, sessionID)
	if user == "" && u.User != nil {
		user = u.User.Username()
	}
	if pass == "" && u.User != nil {
		pass, _ = u.User.Password()
	}
	switch {
	case user != "" && pass != "":
		u.User = url.UserPassword(user, pass)
	case user != "":
		u.User = url.User(user)
	default:
		u.User = nil
	}
	return u.String(), nil
}

// MaskIP hides the host part: the last IPv4 octet or everything after the
// second IPv6 group.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) > 2 {
			return strings.Join(parts[:2], ":") + ":…"
		}
		return ip
	}
	blocks := strings.Split(ip, ".")
	if len(blocks) == 4 {
		blocks[3] = "x"
		return strings.Join(blocks, ".")
	}
	return ip
}

var retryKeywords = []string{"proxy", "timed out", "timeout", "407", "dns", "tunnel", "connection aborted"}

// ShouldRetry reports whether err looks like a proxy/network fault worth
// retrying on a fresh binding.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, k := range retryKeywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}
