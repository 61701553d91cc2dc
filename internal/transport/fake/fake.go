// Package fake is a scripted in-memory transport for tests and dry runs.
package fake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"dmrotor/internal/transport"
)

// Sent is one delivered message.
type Sent struct {
	Account   string
	Recipient string
	Text      string
}

// Transport implements transport.Dialer and transport.Authenticator.
//
// Failures are queued per account and consumed in order; once a queue is
// empty the operation succeeds. It also tracks concurrency so tests can
// assert the scheduler's limits.
type Transport struct {
	// Latency is how long each Send takes. Cancellation does not shorten it.
	Latency time.Duration

	mu        sync.Mutex
	openErrs  map[string][]error
	sendErrs  map[string][]error
	pingErrs  map[string][]error
	passwords map[string]string
	sent      []Sent
	opens     map[string]int

	inflight        int
	maxInflight     int
	perAccount      map[string]int
	maxPerAccount   map[string]int
	overlapDetected bool
}

var (
	_ transport.Dialer        = (*Transport)(nil)
	_ transport.Authenticator = (*Transport)(nil)
)

func New() *Transport {
	return &Transport{
		openErrs:      map[string][]error{},
		sendErrs:      map[string][]error{},
		pingErrs:      map[string][]error{},
		passwords:     map[string]string{},
		opens:         map[string]int{},
		perAccount:    map[string]int{},
		maxPerAccount: map[string]int{},
	}
}

func key(u string) string { return strings.ToLower(u) }

// FailOpen queues errors returned by successive Open calls for account.
func (t *Transport) FailOpen(account string, errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErrs[key(account)] = append(t.openErrs[key(account)], errs...)
}

// FailSend queues errors returned by successive Send calls for account.
func (t *Transport) FailSend(account string, errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErrs[key(account)] = append(t.sendErrs[key(account)], errs...)
}

// FailPing queues errors returned by successive Ping calls for account.
func (t *Transport) FailPing(account string, errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pingErrs[key(account)] = append(t.pingErrs[key(account)], errs...)
}

// SetPassword makes Login succeed for account with password.
func (t *Transport) SetPassword(account, password string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.passwords[key(account)] = password
}

func pop(m map[string][]error, k string) error {
	q := m[k]
	if len(q) == 0 {
		return nil
	}
	m[k] = q[1:]
	return q[0]
}

func (t *Transport) Open(ctx context.Context, id transport.Identity) (transport.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens[key(id.Username)]++
	if err := pop(t.openErrs, key(id.Username)); err != nil {
		return nil, err
	}
	return &client{t: t, account: id.Username}, nil
}

func (t *Transport) Login(ctx context.Context, id transport.Identity, password string) ([]byte, error) {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	want, ok := t.passwords[key(id.Username)]
	if !ok || want != password {
		return nil, transport.Wrap(transport.KindRejected, "login", errors.New("bad_password"))
	}
	return []byte(`{"username":"` + id.Username + `","token":"fake"}`), nil
}

// Sent returns delivered messages in delivery order.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

// Opens returns how many times Open was called for account.
func (t *Transport) Opens(account string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens[key(account)]
}

// MaxInFlight is the highest number of concurrent Sends observed.
func (t *Transport) MaxInFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxInflight
}

// Overlapped reports whether one account ever had two Sends in flight.
func (t *Transport) Overlapped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overlapDetected
}

type client struct {
	t       *Transport
	account string
}

func (c *client) Send(ctx context.Context, recipient, text string) error {
	_ = ctx
	t := c.t
	k := key(c.account)

	t.mu.Lock()
	t.inflight++
	if t.inflight > t.maxInflight {
		t.maxInflight = t.inflight
	}
	t.perAccount[k]++
	if t.perAccount[k] > 1 {
		t.overlapDetected = true
	}
	if t.perAccount[k] > t.maxPerAccount[k] {
		t.maxPerAccount[k] = t.perAccount[k]
	}
	t.mu.Unlock()

	if t.Latency > 0 {
		time.Sleep(t.Latency)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight--
	t.perAccount[k]--
	if err := pop(t.sendErrs, k); err != nil {
		return err
	}
	t.sent = append(t.sent, Sent{Account: c.account, Recipient: recipient, Text: text})
	return nil
}

func (c *client) Ping(ctx context.Context) error {
	_ = ctx
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	return pop(c.t.pingErrs, key(c.account))
}

func (c *client) Close() error { return nil }
