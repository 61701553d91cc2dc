package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"dmrotor/internal/accounts"
	"dmrotor/internal/app"
	"dmrotor/internal/campaign"
)

type templateFlag []string

func (t *templateFlag) String() string { return strings.Join(*t, " | ") }

func (t *templateFlag) Set(v string) error {
	*t = append(*t, v)
	return nil
}

func (c *cli) runCampaign(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("campaign", flag.ContinueOnError)
	fs.SetOutput(c.out)
	group := fs.String("group", "", "account alias")
	list := fs.String("list", "", "lead list name")
	perAccount := fs.Int("per-account", 0, "messages per account (0 = ask)")
	concurrency := fs.Int("concurrency", 0, "simultaneous sends (0 = ask)")
	delayMin := fs.Int("delay-min", -1, "minimum seconds between sends of one account (-1 = ask)")
	delayMax := fs.Int("delay-max", -1, "maximum seconds between sends of one account (-1 = ask)")
	var templates templateFlag
	fs.Var(&templates, "template", "message template (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	req := campaign.Request{
		Group:       *group,
		List:        *list,
		PerAccount:  *perAccount,
		Concurrency: *concurrency,
		DelayMin:    *delayMin,
		DelayMax:    *delayMax,
		Templates:   templates,
	}
	if err := c.completeRequest(ctx, a, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("input closed before the campaign was configured; pass the values as flags")
		}
		return err
	}

	c.con.Title("Campaña")
	_, err = a.RunCampaign(ctx, c.con, req)
	if errors.Is(err, app.ErrNoLeads) || errors.Is(err, app.ErrNoAccounts) {
		return nil
	}
	return err
}

// completeRequest asks for every value the flags and the environment left
// unset.
func (c *cli) completeRequest(ctx context.Context, a *app.App, req *campaign.Request) error {
	env := a.EnvDefaults()
	camp := a.Campaign()
	var err error

	if strings.TrimSpace(req.Group) == "" {
		c.con.Info("Alias disponibles: " + strings.Join(a.Accounts().Aliases(), ", "))
		if req.Group, err = c.con.AskDefault(ctx, "Alias de cuentas [default]: ", accounts.DefaultAlias); err != nil {
			return err
		}
	}
	if strings.TrimSpace(req.List) == "" {
		names, err := a.Leads().List()
		if err != nil {
			return err
		}
		if len(names) > 0 {
			c.con.Info("Listas disponibles: " + strings.Join(names, ", "))
		}
		if req.List, err = c.con.Ask(ctx, "Lista de leads: "); err != nil {
			return err
		}
		if strings.TrimSpace(req.List) == "" {
			return errors.New("lead list is required")
		}
	}
	if req.PerAccount <= 0 {
		prompt := fmt.Sprintf("Mensajes por cuenta (máx %d): ", camp.MaxPerAccount)
		if req.PerAccount, err = c.con.AskInt(ctx, prompt, 1, campaign.MinPerAccount); err != nil {
			return err
		}
	}
	if req.Concurrency <= 0 {
		prompt := fmt.Sprintf("Envíos en simultáneo (máx %d): ", camp.MaxConcurrency)
		if req.Concurrency, err = c.con.AskInt(ctx, prompt, 1, 1); err != nil {
			return err
		}
	}
	if req.DelayMin < 0 {
		if env.DelayMin > 0 {
			req.DelayMin = env.DelayMin
		} else if req.DelayMin, err = c.con.AskInt(ctx, "Delay mínimo entre envíos en segundos: ", 0, camp.DelayFloor); err != nil {
			return err
		}
	}
	if req.DelayMax < 0 {
		if env.DelayMax > 0 {
			req.DelayMax = env.DelayMax
		} else if req.DelayMax, err = c.con.AskInt(ctx, "Delay máximo entre envíos en segundos: ", req.DelayMin, req.DelayMin*2); err != nil {
			return err
		}
	}
	if len(req.Templates) == 0 {
		lines, err := c.con.AskLines(ctx, "Mensajes (uno por línea, línea vacía para terminar):")
		if err != nil {
			return err
		}
		req.Templates = lines
	}
	return nil
}
