package campaign

import (
	"context"
	"time"

	"dmrotor/internal/pace"
	"dmrotor/internal/proxy"
	"dmrotor/internal/transport"
	logx "dmrotor/pkg/logx"
)

// execute runs one job. It always emits exactly one Result, then waits the
// jitter interval before giving back the account lock and the global slot.
func (r *run) execute(ctx context.Context, j Job) {
	emitted := false
	defer r.release(j.Account)
	defer func() {
		if !emitted {
			// Only reached on panic; the supervisor logs it.
			r.emit(Result{
				Account:   j.Account,
				Recipient: j.Recipient,
				Outcome:   OutcomeFailure,
				Detail:    "error interno del envío",
				Kind:      KindUnclassified,
				At:        r.s.opts.Now(),
			})
		}
	}()

	if r.stop.Requested() {
		emitted = true
		r.emit(Result{
			Account:   j.Account,
			Recipient: j.Recipient,
			Outcome:   OutcomeFailure,
			Detail:    AbortedDetail,
			At:        r.s.opts.Now(),
		})
		return
	}

	res := r.deliver(ctx, j)
	res.At = r.s.opts.Now()
	emitted = true
	r.emit(res)
	r.pause()
}

func (r *run) emit(res Result) {
	r.results <- res
}

// deliver sends j, retrying infrastructure faults with a growing wait.
func (r *run) deliver(ctx context.Context, j Job) Result {
	res := Result{Account: j.Account, Recipient: j.Recipient, Outcome: OutcomeFailure}
	retry := r.s.opts.Retry
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		err := r.sendOnce(ctx, j)
		if err == nil {
			res.Outcome = OutcomeSuccess
			return res
		}
		if !infrastructure(err) {
			return classify(res, err)
		}

		res.Kind = KindInfrastructure
		r.log.Warn("proxy fault",
			logx.String("account", j.Account),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", retry.Attempts),
			logx.Err(err),
		)
		if attempt >= retry.Attempts {
			res.Detail = ProxyExhaustedDetail
			res.Attention = proxyAttention(j.Account)
			return res
		}
		if !r.stop.Sleep(pace.Backoff(retry.Step, retry.Cap, attempt)) {
			res.Detail = AbortedDetail
			return res
		}
	}
}

func (r *run) sendOnce(ctx context.Context, j Job) error {
	client, err := r.s.opts.Dialer.Open(ctx, r.idents[j.Account])
	if err != nil {
		r.noteSession(j.Account, err)
		return err
	}
	defer client.Close()
	err = client.Send(ctx, j.Recipient, j.Message)
	r.noteSession(j.Account, err)
	return err
}

// noteSession marks the account disconnected after a session fault.
func (r *run) noteSession(account string, err error) {
	if transport.KindOf(err) != transport.KindSessionInvalid || r.s.opts.Accounts == nil {
		return
	}
	if merr := r.s.opts.Accounts.MarkConnected(account, false); merr != nil {
		r.log.Warn("could not mark account disconnected", logx.String("account", account), logx.Err(merr))
	}
}

func infrastructure(err error) bool {
	switch transport.KindOf(err) {
	case transport.KindUnavailable:
		return true
	case transport.KindUnknown:
		return proxy.ShouldRetry(err)
	default:
		return false
	}
}

func classify(res Result, err error) Result {
	res.Detail = err.Error()
	if res.Detail == "" {
		res.Detail = fallbackDetail
	}
	res.Attention = Diagnose(res.Detail)
	switch {
	case transport.KindOf(err) == transport.KindSessionInvalid:
		res.Kind = KindSession
	case res.Attention != "":
		res.Kind = KindPolicy
	default:
		res.Kind = KindUnclassified
	}
	return res
}

// pause waits the jitter interval. A stop request or the end of admission
// cuts it short.
func (r *run) pause() {
	units := pace.Jitter(r.s.opts.Rand, r.c.DelayMin, r.c.DelayMax)
	d := time.Duration(units) * r.s.opts.DelayUnit
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.stop.Done():
	case <-r.drain:
	}
}
