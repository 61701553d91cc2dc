package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"dmrotor/internal/accounts"
	"dmrotor/internal/campaign"
	"dmrotor/internal/halt"
	"dmrotor/internal/operator"
	logx "dmrotor/pkg/logx"
)

var (
	ErrNoLeads    = errors.New("lead list is empty")
	ErrNoAccounts = errors.New("no usable accounts")
)

// RunCampaign runs one interactive campaign: it normalizes req, checks the
// group's sessions (offering re-login), runs the scheduler and prints the
// summary.
func (a *App) RunCampaign(ctx context.Context, con *operator.Console, req campaign.Request) (campaign.Summary, error) {
	req, warns := campaign.Normalize(req, campaignLimits(a.camp))
	for _, w := range warns {
		con.Warn(w)
	}

	recipients, err := a.leads.Load(req.List)
	if err != nil {
		return campaign.Summary{}, err
	}
	if len(recipients) == 0 {
		con.Err(fmt.Sprintf("La lista %q no tiene leads.", req.List))
		return campaign.Summary{}, ErrNoLeads
	}

	var accts []accounts.Account
	for _, acc := range a.accounts.List(req.Group) {
		if acc.Active {
			accts = append(accts, acc)
		}
	}
	if len(accts) == 0 {
		con.Err(fmt.Sprintf("No hay cuentas activas en el alias %q.", req.Group))
		return campaign.Summary{}, ErrNoAccounts
	}

	g, err := a.Gate(con)
	if err != nil {
		return campaign.Summary{}, err
	}
	con.Info("Verificando sesiones...")
	ready, pending := g.Partition(ctx, accts)
	if len(pending) > 0 {
		for _, p := range pending {
			con.Warn(fmt.Sprintf("@%s: %s", p.Account.Username, p.Reason))
		}
		ok, err := con.Confirm(ctx, "¿Iniciar sesión ahora? (s/N): ")
		if err != nil && !errors.Is(err, io.EOF) {
			return campaign.Summary{}, err
		}
		if ok {
			ready = append(ready, g.Recover(ctx, pending)...)
		}
	}
	if len(ready) == 0 {
		con.Err("No hay cuentas con sesión válida.")
		return campaign.Summary{}, ErrNoAccounts
	}

	sched, err := a.Scheduler(con, con)
	if err != nil {
		return campaign.Summary{}, err
	}
	c := req.Campaign(recipients)
	c.Stop = halt.New()
	disarm := con.ListenQuit(c.Stop)
	defer disarm()

	a.log.Info("campaign requested",
		logx.String("group", req.Group),
		logx.String("list", req.List),
		logx.Int("accounts", len(ready)),
		logx.Int("leads", len(recipients)),
	)
	sum, err := sched.Run(ctx, c, ready)
	if err != nil {
		return sum, err
	}
	con.RenderSummary(sum)
	return sum, nil
}
