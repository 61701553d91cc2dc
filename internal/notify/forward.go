package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dmrotor/internal/campaign"
	"dmrotor/internal/eventbus"
	logx "dmrotor/pkg/logx"
)

// Forward relays campaign and report events from bus until ctx ends.
func (s *Service) Forward(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			n, ok := Format(ev)
			if !ok {
				continue
			}
			if err := s.Notify(ctx, n); err != nil && !errors.Is(err, ErrDisabled) {
				s.log.Debug("event not forwarded", logx.String("type", ev.Type), logx.Err(err))
			}
		}
	}
}

// Format renders an event for the operator chat. Events that are not worth a
// message report false.
func Format(ev eventbus.Event) (Notification, bool) {
	switch ev.Type {
	case eventbus.TypeCampaignStarted:
		st, ok := ev.Data.(campaign.Started)
		if !ok {
			return Notification{}, false
		}
		return Notification{Priority: 3, Text: fmt.Sprintf(
			"Campaña iniciada en %s: %d leads, %d cuentas, %d por cuenta, %d en simultáneo.",
			st.Group, st.Recipients, len(st.Accounts), st.PerAccountCap, st.Concurrency,
		)}, true
	case eventbus.TypeAttention:
		in, ok := ev.Data.(campaign.Incident)
		if !ok {
			return Notification{}, false
		}
		text := fmt.Sprintf("Atención en @%s: %s", in.Account, in.Message)
		if in.Detail != "" && in.Detail != in.Message {
			text += "\nDetalle: " + in.Detail
		}
		return Notification{Priority: 8, Text: text}, true
	case eventbus.TypeCampaignFinished:
		sum, ok := ev.Data.(campaign.Summary)
		if !ok {
			return Notification{}, false
		}
		return Notification{Priority: 5, Text: SummaryText(sum)}, true
	case eventbus.TypeDigest:
		switch d := ev.Data.(type) {
		case string:
			return Notification{Priority: 5, Text: d}, d != ""
		case fmt.Stringer:
			return Notification{Priority: 5, Text: d.String()}, true
		}
	}
	return Notification{}, false
}

func SummaryText(s campaign.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Campaña %s finalizada: %d OK, %d errores", s.Group, s.Successes, s.Failures)
	if s.Remaining > 0 {
		fmt.Fprintf(&b, ", %d leads sin procesar", s.Remaining)
	}
	b.WriteString(".")
	for _, acct := range s.Accounts {
		t := s.PerAccount[acct]
		fmt.Fprintf(&b, "\n - @%s: %d enviados, %d errores", acct, t.Sent, t.Errors)
	}
	if s.StopReason != "" {
		fmt.Fprintf(&b, "\nMotivo: %s", s.StopReason)
	}
	return b.String()
}
