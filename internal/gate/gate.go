// Package gate decides which accounts have a working session before a
// campaign starts, and repairs the ones that do not.
package gate

import (
	"context"
	"errors"
	"strings"
	"time"

	"dmrotor/internal/accounts"
	"dmrotor/internal/session"
	"dmrotor/internal/transport"
	logx "dmrotor/pkg/logx"
)

const (
	ReasonNoSession = "sin sesión guardada"
	ReasonExpired   = "sesión expirada"
)

// ErrCancelled is returned when the operator enters an empty password.
var ErrCancelled = errors.New("login cancelled")

// Prompter asks the operator for an account password.
type Prompter interface {
	Password(ctx context.Context, username string) (string, error)
}

type Registry interface {
	MarkConnected(username string, connected bool) error
}

type Options struct {
	Dialer   transport.Dialer
	Auth     transport.Authenticator
	Sessions *session.Store
	Accounts Registry
	Prompter Prompter
	Log      logx.Logger
	// CheckTimeout bounds one liveness check. Zero means 30s.
	CheckTimeout time.Duration
}

// Pending is an account that needs a new login.
type Pending struct {
	Account accounts.Account
	Reason  string
}

type Gate struct {
	opts Options
	log  logx.Logger
}

func New(opts Options) (*Gate, error) {
	if opts.Dialer == nil || opts.Sessions == nil {
		return nil, errors.New("gate needs a dialer and a session store")
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 30 * time.Second
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{opts: opts, log: log.With(logx.String("comp", "gate"))}, nil
}

func identity(a accounts.Account) transport.Identity {
	return transport.Identity{Username: a.Username, Proxy: a.Proxy}
}

func (g *Gate) mark(username string, connected bool) {
	if g.opts.Accounts == nil {
		return
	}
	if err := g.opts.Accounts.MarkConnected(username, connected); err != nil {
		g.log.Warn("could not update connected flag", logx.String("account", username), logx.Err(err))
	}
}

// IsSessionUsable opens the stored session and makes one authenticated call.
// The account's connected flag is updated to match.
func (g *Gate) IsSessionUsable(ctx context.Context, a accounts.Account) bool {
	if !g.opts.Sessions.Has(a.Username) {
		g.mark(a.Username, false)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.CheckTimeout)
	defer cancel()

	client, err := g.opts.Dialer.Open(ctx, identity(a))
	if err != nil {
		g.log.Debug("session open failed", logx.String("account", a.Username), logx.String("kind", transport.KindOf(err).String()), logx.Err(err))
		g.mark(a.Username, false)
		return false
	}
	defer client.Close()
	if err := client.Ping(ctx); err != nil {
		g.log.Debug("session check failed", logx.String("account", a.Username), logx.String("kind", transport.KindOf(err).String()), logx.Err(err))
		g.mark(a.Username, false)
		return false
	}
	g.mark(a.Username, true)
	return true
}

// Partition splits accts into ready ones and ones needing a login, keeping
// order.
func (g *Gate) Partition(ctx context.Context, accts []accounts.Account) (ready []accounts.Account, pending []Pending) {
	for _, a := range accts {
		switch {
		case !g.opts.Sessions.Has(a.Username):
			g.mark(a.Username, false)
			pending = append(pending, Pending{Account: a, Reason: ReasonNoSession})
		case !g.IsSessionUsable(ctx, a):
			pending = append(pending, Pending{Account: a, Reason: ReasonExpired})
		default:
			ready = append(ready, a)
		}
	}
	return ready, pending
}

// Login authenticates with password and stores the new session.
func (g *Gate) Login(ctx context.Context, a accounts.Account, password string) error {
	if g.opts.Auth == nil {
		return errors.New("this transport cannot log in")
	}
	if password == "" {
		return ErrCancelled
	}
	blob, err := g.opts.Auth.Login(ctx, identity(a), password)
	if err != nil {
		g.mark(a.Username, false)
		return err
	}
	if err := g.opts.Sessions.Save(a.Username, blob); err != nil {
		g.mark(a.Username, false)
		return err
	}
	g.mark(a.Username, true)
	g.log.Info("session saved", logx.String("account", a.Username))
	return nil
}

// Reauthenticate prompts for the password and logs in. It blocks on the
// operator.
func (g *Gate) Reauthenticate(ctx context.Context, a accounts.Account) bool {
	if g.opts.Prompter == nil {
		return false
	}
	pwd, err := g.opts.Prompter.Password(ctx, a.Username)
	if err != nil {
		g.log.Warn("password prompt failed", logx.String("account", a.Username), logx.Err(err))
		return false
	}
	if err := g.Login(ctx, a, strings.TrimRight(pwd, "\r\n")); err != nil {
		if errors.Is(err, ErrCancelled) {
			g.log.Warn("login cancelled", logx.String("account", a.Username))
		} else {
			g.log.Warn("login failed", logx.String("account", a.Username), logx.String("kind", transport.KindOf(err).String()), logx.Err(err))
		}
		return false
	}
	return true
}

// Recover re-authenticates every pending account and returns the ones that
// now pass the session check.
func (g *Gate) Recover(ctx context.Context, pending []Pending) []accounts.Account {
	var out []accounts.Account
	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		if g.Reauthenticate(ctx, p.Account) && g.IsSessionUsable(ctx, p.Account) {
			out = append(out, p.Account)
		}
	}
	return out
}
