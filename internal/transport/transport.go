// Package transport defines how an account reaches the messaging platform.
//
// Implementations classify their failures with Kind so callers can decide
// between retrying (KindUnavailable), asking for a new login
// (KindSessionInvalid) and giving up (KindRejected).
package transport

import (
	"context"
	"errors"
	"fmt"

	"dmrotor/internal/proxy"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindUnavailable is a proxy/network fault; another attempt may succeed.
	KindUnavailable
	// KindSessionInvalid means the stored session no longer works.
	KindSessionInvalid
	// KindRejected is a platform refusal (policy, rate limit, bad recipient).
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindSessionInvalid:
		return "session_invalid"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

var (
	ErrUnavailable    = errors.New("transport unavailable")
	ErrSessionInvalid = errors.New("session invalid")
	ErrRejected       = errors.New("rejected by platform")
)

// Error is a classified transport failure. errors.Is matches it against the
// sentinel of its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrSessionInvalid:
		return e.Kind == KindSessionInvalid
	case ErrRejected:
		return e.Kind == KindRejected
	}
	return false
}

// Wrap classifies err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// Identity is what a client needs to act as an account.
type Identity struct {
	Username string
	Proxy    proxy.Config
}

// Client is an authenticated connection for one account.
type Client interface {
	Send(ctx context.Context, recipient, text string) error
	// Ping makes a cheap authenticated call to check the session.
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens clients from stored sessions.
type Dialer interface {
	Open(ctx context.Context, id Identity) (Client, error)
}

// Authenticator performs a password login and returns the session blob to
// persist.
type Authenticator interface {
	Login(ctx context.Context, id Identity, password string) ([]byte, error)
}
