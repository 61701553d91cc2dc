package campaign

import (
	"context"
	"time"

	"dmrotor/internal/board"
	"dmrotor/internal/halt"
	"dmrotor/internal/storage"
)

// Campaign is one bounded run against a recipient list. Delays are in whole
// units of Options.DelayUnit (seconds in production).
type Campaign struct {
	Group         string
	Recipients    []string
	Templates     []string
	PerAccountCap int
	Concurrency   int
	DelayMin      int
	DelayMax      int

	// Stop is the campaign's cancellation signal. Run creates one when nil.
	Stop *halt.Signal
}

// Job is one admitted send.
type Job struct {
	Account   string
	Recipient string
	Message   string
}

type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "pending"
	}
}

// ErrorKind classifies a failed job.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindInfrastructure is a proxy/network fault, retried locally.
	KindInfrastructure
	// KindSession is an expired or invalid login.
	KindSession
	// KindPolicy is a platform refusal with a known signature.
	KindPolicy
	KindUnclassified
)

func (k ErrorKind) String() string {
	switch k {
	case KindInfrastructure:
		return "infrastructure"
	case KindSession:
		return "session"
	case KindPolicy:
		return "policy"
	case KindUnclassified:
		return "unclassified"
	default:
		return "none"
	}
}

// Result is the single event a job emits.
type Result struct {
	Account   string
	Recipient string
	Outcome   Outcome
	Detail    string
	// Attention is a non-empty operator hint when the failure needs a human.
	Attention string
	Kind      ErrorKind
	Attempts  int
	At        time.Time
}

func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Tally is one account's campaign-scoped counters.
type Tally struct {
	Sent   int
	Errors int
}

// Totals are the running success/failure counters. Base* come from the
// ledger at start; Run* count this campaign.
type Totals struct {
	BaseOK   int
	BaseFail int
	RunOK    int
	RunFail  int
}

func (t Totals) OK() int   { return t.BaseOK + t.RunOK }
func (t Totals) Fail() int { return t.BaseFail + t.RunFail }

// Summary is produced exactly once per Run, whatever the exit path.
type Summary struct {
	ID        string
	Group     string
	Successes int
	Failures  int
	Jobs      int

	// PerAccount covers every account handed to Run, including idle ones.
	PerAccount map[string]Tally
	Accounts   []string

	StopReason string
	// Cancelled is set when the operator or the process stopped the run.
	Cancelled bool

	// Remaining is how many recipients were never admitted.
	Remaining    int
	NoRecipients bool

	Totals   Totals
	Started  time.Time
	Finished time.Time
}

// Started is published when admission begins.
type Started struct {
	ID            string
	Group         string
	Accounts      []string
	Recipients    int
	PerAccountCap int
	Concurrency   int
}

// Incident is an escalation presented to the operator.
type Incident struct {
	Account   string
	Recipient string
	Detail    string
	Message   string
	Kind      ErrorKind
}

type Decision int

const (
	// DecisionRetire zeroes the account's budget and continues.
	DecisionRetire Decision = iota
	// DecisionStop cancels the whole campaign.
	DecisionStop
)

// AccountProgress is one row of the progress view.
type AccountProgress struct {
	Account   string
	Sent      int
	Errors    int
	Remaining int
}

// Progress is what a Renderer draws on every refresh.
type Progress struct {
	Group    string
	Pending  int
	Accounts []AccountProgress
	Totals   Totals
	Board    *board.Board
	Stopping bool
}

// Ledger is the subset of the send log the scheduler needs.
type Ledger interface {
	Append(ctx context.Context, r storage.Record) error
	ContainsRecipient(ctx context.Context, to string) (bool, error)
	LifetimeTotals(ctx context.Context) (storage.Totals, error)
}

// Operator resolves escalations. Escalate blocks admission until it returns.
type Operator interface {
	Escalate(ctx context.Context, in Incident) (Decision, error)
}

type Renderer interface {
	RenderProgress(p Progress)
}

// ConnectionMarker records session health in the account registry.
type ConnectionMarker interface {
	MarkConnected(username string, connected bool) error
}
