// Package campaign runs outbound message campaigns across sender accounts.
//
// One coordinating loop admits jobs under three constraints at once: global
// concurrency, one in-flight send per account and a per-account budget. Jobs
// run on their own goroutines and report back through a single result
// channel that only the loop consumes, so counters and ledger writes are
// serialized without extra locking.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dmrotor/internal/accounts"
	"dmrotor/internal/board"
	"dmrotor/internal/eventbus"
	"dmrotor/internal/halt"
	"dmrotor/internal/pace"
	"dmrotor/internal/runtime/supervisor"
	"dmrotor/internal/storage"
	"dmrotor/internal/transport"
	logx "dmrotor/pkg/logx"
)

// Stop reasons recorded in the summary.
const (
	ReasonQueueEmpty  = "no quedan leads por procesar"
	ReasonBudgetsDone = "se alcanzó el límite de envíos por cuenta"
	ReasonInterrupted = "interrupción con Ctrl+C"
	ReasonNoNewLeads  = "sin destinatarios nuevos"
)

var ErrInvalidCampaign = errors.New("invalid campaign")

// Retry bounds the local retries of infrastructure faults.
type Retry struct {
	Attempts int
	Step     time.Duration
	Cap      time.Duration
}

type Options struct {
	Dialer transport.Dialer
	Ledger Ledger

	// Optional collaborators.
	Operator Operator
	Renderer Renderer
	Accounts ConnectionMarker
	Bus      eventbus.Bus
	Log      logx.Logger

	// Rand picks templates and jitter. It must be safe for concurrent use.
	Rand pace.Source
	Now  func() time.Time

	Tick           time.Duration
	AcquireTimeout time.Duration
	RenderEvery    time.Duration
	// DelayUnit scales Campaign.DelayMin/DelayMax. Defaults to one second.
	DelayUnit time.Duration
	Retry     Retry
}

type Scheduler struct {
	opts Options
	log  logx.Logger
}

func New(opts Options) (*Scheduler, error) {
	if opts.Dialer == nil {
		return nil, errors.New("campaign: dialer is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("campaign: ledger is required")
	}
	if opts.Rand == nil {
		opts.Rand = pace.NewLocked(time.Now().UnixNano())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tick <= 0 {
		opts.Tick = 50 * time.Millisecond
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 100 * time.Millisecond
	}
	if opts.RenderEvery <= 0 {
		opts.RenderEvery = 500 * time.Millisecond
	}
	if opts.DelayUnit <= 0 {
		opts.DelayUnit = time.Second
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 3
	}
	if opts.Retry.Step <= 0 {
		opts.Retry.Step = 5 * time.Second
	}
	if opts.Retry.Cap <= 0 {
		opts.Retry.Cap = 30 * time.Second
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{opts: opts, log: log.With(logx.String("comp", "campaign"))}, nil
}

func validate(c Campaign, accts []accounts.Account) error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be >= 1", ErrInvalidCampaign)
	case c.PerAccountCap < 1:
		return fmt.Errorf("%w: per-account cap must be >= 1", ErrInvalidCampaign)
	case c.DelayMin < 0:
		return fmt.Errorf("%w: negative delay", ErrInvalidCampaign)
	case len(c.Templates) == 0:
		return fmt.Errorf("%w: no templates", ErrInvalidCampaign)
	case len(accts) == 0:
		return fmt.Errorf("%w: no accounts", ErrInvalidCampaign)
	}
	return nil
}

// Run executes c with accts in the given order and blocks until every
// admitted job has finished. Cancelling ctx requests a stop; jobs already
// sending complete normally. The returned Summary is valid whenever err is
// nil.
func (s *Scheduler) Run(ctx context.Context, c Campaign, accts []accounts.Account) (Summary, error) {
	if err := validate(c, accts); err != nil {
		return Summary{}, err
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin
	}
	stop := c.Stop
	if stop == nil {
		stop = halt.New()
	}
	// Ledger I/O and in-flight sends outlive an interrupt.
	ioctx := context.WithoutCancel(ctx)

	r := &run{
		s:         s,
		id:        uuid.NewString(),
		c:         c,
		ctx:       ctx,
		ioctx:     ioctx,
		stop:      stop,
		drain:     make(chan struct{}),
		started:   s.opts.Now(),
		remaining: map[string]int{},
		locks:     map[string]chan struct{}{},
		idents:    map[string]transport.Identity{},
		tally:     map[string]*Tally{},
		slots:     make(chan struct{}, c.Concurrency),
		results:   make(chan Result, 2*c.Concurrency),
		board:     board.New(c.Concurrency),
	}
	r.log = s.log.With(logx.String("campaign", r.id), logx.String("group", c.Group))
	seen := map[string]struct{}{}
	for _, a := range accts {
		key := strings.ToLower(a.Username)
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		r.order = append(r.order, a.Username)
		r.idents[a.Username] = transport.Identity{Username: a.Username, Proxy: a.Proxy}
		r.remaining[a.Username] = c.PerAccountCap
		r.locks[a.Username] = make(chan struct{}, 1)
		r.tally[a.Username] = &Tally{}
	}

	base, err := s.opts.Ledger.LifetimeTotals(ioctx)
	if err != nil {
		r.log.Warn("ledger totals unavailable", logx.Err(err))
	}
	r.totals = Totals{BaseOK: base.OK, BaseFail: base.Fail}

	queue, err := r.filter(c.Recipients)
	if err != nil {
		return Summary{}, fmt.Errorf("dedup recipients: %w", err)
	}
	r.queue = queue
	if len(queue) == 0 {
		r.log.Info("no recipients left after dedup", logx.Int("input", len(c.Recipients)))
		sum := r.summary(ReasonNoNewLeads)
		sum.NoRecipients = true
		r.publish(eventbus.TypeCampaignFinished, sum)
		return sum, nil
	}

	release := context.AfterFunc(ctx, func() { stop.Request(ReasonInterrupted) })
	defer release()

	r.sup = supervisor.New(ioctx, supervisor.WithLogger(r.log))
	r.log.Info("campaign started",
		logx.Int("accounts", len(r.order)),
		logx.Int("recipients", len(queue)),
		logx.Int("per_account", c.PerAccountCap),
		logx.Int("concurrency", c.Concurrency),
		logx.Int("delay_min", c.DelayMin),
		logx.Int("delay_max", c.DelayMax),
	)
	r.publish(eventbus.TypeCampaignStarted, Started{
		ID:            r.id,
		Group:         c.Group,
		Accounts:      append([]string(nil), r.order...),
		Recipients:    len(queue),
		PerAccountCap: c.PerAccountCap,
		Concurrency:   c.Concurrency,
	})

	reason := r.loop()
	return r.finish(reason), nil
}

// filter drops blanks, in-list duplicates and recipients already in the
// ledger, keeping order.
func (r *run) filter(in []string) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		to := strings.TrimPrefix(strings.TrimSpace(raw), "@")
		key := storage.NormalizeRecipient(to)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		done, err := r.s.opts.Ledger.ContainsRecipient(r.ioctx, to)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		out = append(out, to)
	}
	return out, nil
}

// run is the state of one campaign. Everything except board, slots, locks
// and results is owned by the loop goroutine.
type run struct {
	s     *Scheduler
	id    string
	c     Campaign
	log   logx.Logger
	ctx   context.Context
	ioctx context.Context
	stop  *halt.Signal
	drain chan struct{}
	sup   *supervisor.Supervisor

	order     []string
	idents    map[string]transport.Identity
	remaining map[string]int
	locks     map[string]chan struct{}
	slots     chan struct{}
	results   chan Result

	queue      []string
	tally      map[string]*Tally
	totals     Totals
	jobs       int
	admitting  bool
	board      *board.Board
	started    time.Time
	lastRender time.Time
}

// loop runs admission ticks until the queue is empty, every budget is spent
// or a stop is requested. It returns the natural exit reason, or "" when
// stopped.
func (r *run) loop() string {
	r.admitting = true
	defer func() { r.admitting = false }()

	tick := time.NewTimer(r.s.opts.Tick)
	defer tick.Stop()
	for {
		fresh := r.collect()
		switch {
		case r.stop.Requested():
			return ""
		case len(r.queue) == 0:
			return ReasonQueueEmpty
		case !r.anyBudget():
			return ReasonBudgetsDone
		}
		r.admit()
		r.render(fresh > 0)

		select {
		case <-tick.C:
		case <-r.stop.Done():
		}
		tick.Reset(r.s.opts.Tick)
	}
}

func (r *run) anyBudget() bool {
	for _, n := range r.remaining {
		if n > 0 {
			return true
		}
	}
	return false
}

// admit visits accounts in fixed order and launches at most one job each.
func (r *run) admit() {
	for _, acct := range r.order {
		if r.stop.Requested() || len(r.queue) == 0 {
			return
		}
		if r.remaining[acct] <= 0 {
			continue
		}
		lock := r.locks[acct]
		select {
		case lock <- struct{}{}:
		default:
			continue
		}
		if !r.acquireSlot() {
			<-lock
			continue
		}

		to := r.queue[0]
		r.queue = r.queue[1:]
		r.remaining[acct]--
		r.jobs++
		job := Job{
			Account:   acct,
			Recipient: to,
			Message:   r.c.Templates[r.s.opts.Rand.Intn(len(r.c.Templates))],
		}
		r.board.Begin(acct, to)
		r.log.Debug("job admitted", logx.String("account", acct), logx.String("to", to), logx.Int("left", r.remaining[acct]))
		r.sup.Go("job:"+acct, func(ctx context.Context) error {
			r.execute(ctx, job)
			return nil
		})
	}
}

// acquireSlot takes a global concurrency slot, waiting at most
// AcquireTimeout.
func (r *run) acquireSlot() bool {
	select {
	case r.slots <- struct{}{}:
		return true
	default:
	}
	t := time.NewTimer(r.s.opts.AcquireTimeout)
	defer t.Stop()
	select {
	case r.slots <- struct{}{}:
		return true
	case <-t.C:
		return false
	case <-r.stop.Done():
		return false
	}
}

func (r *run) release(account string) {
	<-r.slots
	<-r.locks[account]
}

// collect processes every result that is ready without blocking.
func (r *run) collect() int {
	n := 0
	for {
		select {
		case res := <-r.results:
			r.handle(res)
			n++
		default:
			return n
		}
	}
}

func (r *run) handle(res Result) {
	t := r.tally[res.Account]
	if res.OK() {
		t.Sent++
		r.totals.RunOK++
	} else {
		if res.Detail == "" {
			res.Detail = fallbackDetail
		}
		t.Errors++
		r.totals.RunFail++
	}

	rec := storage.Record{At: res.At, Account: res.Account, To: res.Recipient, OK: res.OK(), Detail: res.Detail}
	if err := r.s.opts.Ledger.Append(r.ioctx, rec); err != nil {
		r.log.Error("ledger append failed", logx.String("account", res.Account), logx.String("to", res.Recipient), logx.Err(err))
	}
	r.board.Complete(res.Account, res.OK(), res.Detail)

	if res.OK() {
		r.log.Info("message sent", logx.String("account", res.Account), logx.String("to", res.Recipient), logx.Int("attempts", res.Attempts))
	} else {
		r.log.Warn("message failed",
			logx.String("account", res.Account),
			logx.String("to", res.Recipient),
			logx.String("kind", res.Kind.String()),
			logx.String("detail", res.Detail),
			logx.Int("attempts", res.Attempts),
		)
	}
	r.publish(eventbus.TypeJobFinished, res)

	if res.Attention != "" {
		r.escalate(res)
	}
}

// escalate pauses admission until the operator decides. Once admission has
// ended there is nothing left to decide, so the incident is only reported.
func (r *run) escalate(res Result) {
	in := Incident{
		Account:   res.Account,
		Recipient: res.Recipient,
		Detail:    res.Detail,
		Message:   res.Attention,
		Kind:      res.Kind,
	}
	r.log.Warn("attention required", logx.String("account", in.Account), logx.String("message", in.Message))
	r.publish(eventbus.TypeAttention, in)
	if !r.admitting || r.stop.Requested() {
		return
	}

	decision := DecisionRetire
	if op := r.s.opts.Operator; op != nil {
		d, err := op.Escalate(r.ctx, in)
		if err != nil {
			r.log.Warn("escalation prompt failed; retiring account", logx.String("account", in.Account), logx.Err(err))
		} else {
			decision = d
		}
	}

	switch decision {
	case DecisionStop:
		r.stop.Request(fmt.Sprintf("usuario decidió pausar tras incidente con @%s", in.Account))
	default:
		r.remaining[in.Account] = 0
		r.log.Warn(fmt.Sprintf("Se omitirá @%s en esta campaña.", in.Account), logx.String("account", in.Account))
	}
}

func (r *run) render(force bool) {
	rd := r.s.opts.Renderer
	if rd == nil {
		return
	}
	now := r.s.opts.Now()
	if !force && now.Sub(r.lastRender) < r.s.opts.RenderEvery {
		return
	}
	r.lastRender = now
	r.board.Prune()
	rd.RenderProgress(r.progress())
}

func (r *run) progress() Progress {
	p := Progress{
		Group:    r.c.Group,
		Pending:  len(r.queue),
		Totals:   r.totals,
		Board:    r.board,
		Stopping: !r.admitting,
	}
	for _, acct := range r.order {
		t := r.tally[acct]
		p.Accounts = append(p.Accounts, AccountProgress{
			Account:   acct,
			Sent:      t.Sent,
			Errors:    t.Errors,
			Remaining: r.remaining[acct],
		})
	}
	return p
}

func (r *run) publish(typ string, data any) {
	if r.s.opts.Bus == nil {
		return
	}
	r.s.opts.Bus.Publish(eventbus.Event{Type: typ, Time: r.s.opts.Now(), Data: data})
}

// finish drains in-flight jobs and builds the summary. Every exit path goes
// through here exactly once.
func (r *run) finish(natural string) Summary {
	close(r.drain)
	if natural != "" {
		r.log.Info("admission finished", logx.String("reason", natural), logx.Int("in_flight", len(r.slots)))
	} else {
		r.log.Info("stop requested", logx.String("reason", r.stop.Reason()), logx.Int("in_flight", len(r.slots)))
	}

	done := make(chan error, 1)
	go func() { done <- r.sup.Wait(context.Background()) }()

	refresh := time.NewTicker(r.s.opts.RenderEvery)
	defer refresh.Stop()
wait:
	for {
		select {
		case res := <-r.results:
			r.handle(res)
			r.render(true)
		case err := <-done:
			if err != nil {
				r.log.Error("job supervisor reported a failure", logx.Err(err))
			}
			break wait
		case <-refresh.C:
			r.render(false)
		}
	}
	r.collect()
	r.render(true)

	reason := natural
	if reason == "" {
		reason = r.stop.Reason()
	}
	sum := r.summary(reason)
	sum.Cancelled = natural == ""
	r.log.Info("campaign finished",
		logx.Int("ok", sum.Successes),
		logx.Int("failed", sum.Failures),
		logx.Int("jobs", sum.Jobs),
		logx.Int("remaining", sum.Remaining),
		logx.String("reason", reason),
		logx.Duration("took", sum.Finished.Sub(sum.Started)),
	)
	r.publish(eventbus.TypeCampaignFinished, sum)
	return sum
}

func (r *run) summary(reason string) Summary {
	sum := Summary{
		ID:         r.id,
		Group:      r.c.Group,
		PerAccount: map[string]Tally{},
		Accounts:   append([]string(nil), r.order...),
		StopReason: reason,
		Jobs:       r.jobs,
		Remaining:  len(r.queue),
		Totals:     r.totals,
		Started:    r.started,
		Finished:   r.s.opts.Now(),
	}
	for _, acct := range r.order {
		t := *r.tally[acct]
		sum.PerAccount[acct] = t
		sum.Successes += t.Sent
		sum.Failures += t.Errors
	}
	return sum
}
