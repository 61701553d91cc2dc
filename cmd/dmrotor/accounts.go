package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"dmrotor/internal/accounts"
	"dmrotor/internal/app"
	"dmrotor/internal/proxy"
)

func (c *cli) runAccounts(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, args := args[0], args[1:]

	switch sub {
	case "list", "add", "remove", "enable", "disable", "login", "proxy-test":
	default:
		return fmt.Errorf("unknown accounts command %q (list|add|remove|enable|disable|login|proxy-test)", sub)
	}

	fs := flag.NewFlagSet("accounts "+sub, flag.ContinueOnError)
	fs.SetOutput(c.out)
	group := fs.String("group", "", "only accounts with this alias (list)")
	user := fs.String("user", "", "username (add)")
	alias := fs.String("alias", accounts.DefaultAlias, "account alias (add)")
	proxyURL := fs.String("proxy-url", "", "proxy URL, may contain {session} (add)")
	proxyUser := fs.String("proxy-user", "", "proxy user (add)")
	proxyPass := fs.String("proxy-pass", "", "proxy password (add)")
	sticky := fs.Int("sticky", 0, "minutes a proxy session stays pinned (add)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if sub == "list" {
		c.listAccounts(a, *group)
		return nil
	}
	if sub == "add" {
		username := *user
		if username == "" && fs.NArg() > 0 {
			username = fs.Arg(0)
		}
		return c.addAccount(a, accounts.Account{
			Username: username,
			Alias:    *alias,
			Active:   true,
			Proxy: proxy.Config{
				URL:           *proxyURL,
				User:          *proxyUser,
				Password:      *proxyPass,
				StickyMinutes: *sticky,
			},
		})
	}

	if fs.NArg() == 0 {
		return fmt.Errorf("accounts %s needs a username", sub)
	}
	username := accounts.NormalizeUsername(fs.Arg(0))
	reg := a.Accounts()

	switch sub {
	case "remove":
		ok, err := reg.Remove(username)
		if err != nil {
			return err
		}
		if !ok {
			c.con.Warn(fmt.Sprintf("@%s no existe.", username))
			return nil
		}
		if err := a.Sessions().Remove(username); err != nil {
			c.con.Warn(fmt.Sprintf("No se pudo borrar la sesión de @%s: %v", username, err))
		}
		c.con.OK(fmt.Sprintf("@%s eliminada.", username))
	case "enable", "disable":
		active := sub == "enable"
		if err := reg.SetActive(username, active); err != nil {
			if errors.Is(err, accounts.ErrNotFound) {
				c.con.Warn(fmt.Sprintf("@%s no existe.", username))
				return nil
			}
			return err
		}
		if active {
			c.con.OK(fmt.Sprintf("@%s activada.", username))
		} else {
			c.con.OK(fmt.Sprintf("@%s desactivada.", username))
		}
	case "login":
		acct, ok := reg.Get(username)
		if !ok {
			c.con.Warn(fmt.Sprintf("@%s no existe.", username))
			return nil
		}
		g, err := a.Gate(c.con)
		if err != nil {
			return err
		}
		if !g.Reauthenticate(ctx, acct) {
			return fmt.Errorf("login failed for @%s", username)
		}
		c.con.OK(fmt.Sprintf("Sesión guardada para @%s.", username))
	case "proxy-test":
		acct, ok := reg.Get(username)
		if !ok {
			c.con.Warn(fmt.Sprintf("@%s no existe.", username))
			return nil
		}
		return c.testProxy(ctx, a, acct)
	}
	return nil
}

func (c *cli) listAccounts(a *app.App, group string) {
	var list []accounts.Account
	if group == "" {
		list = a.Accounts().All()
	} else {
		list = a.Accounts().List(group)
	}
	rows := make([][]string, 0, len(list))
	for _, acc := range list {
		px := "-"
		if acc.Proxy.Enabled() {
			px = acc.Proxy.URL
		}
		rows = append(rows, []string{"@" + acc.Username, acc.Alias, yesNo(acc.Active), yesNo(acc.Connected), px})
	}
	c.con.Table([]string{"Cuenta", "Alias", "Activa", "Conectada", "Proxy"}, rows, "No hay cuentas registradas.")
}

func (c *cli) addAccount(a *app.App, acct accounts.Account) error {
	if strings.TrimSpace(acct.Username) == "" {
		return errors.New("accounts add needs -user")
	}
	if err := a.Accounts().Add(acct); err != nil {
		if errors.Is(err, accounts.ErrExists) {
			c.con.Warn(fmt.Sprintf("@%s ya existe.", accounts.NormalizeUsername(acct.Username)))
			return nil
		}
		return err
	}
	c.con.OK(fmt.Sprintf("@%s agregada al alias %q.", accounts.NormalizeUsername(acct.Username), acct.Alias))
	return nil
}

func (c *cli) testProxy(ctx context.Context, a *app.App, acct accounts.Account) error {
	cfg := a.Proxies().Resolve(acct.Proxy)
	if !cfg.Enabled() {
		c.con.Warn(fmt.Sprintf("@%s no tiene proxy configurado.", acct.Username))
		return nil
	}
	c.con.Info(fmt.Sprintf("Probando proxy de @%s...", acct.Username))
	b, err := a.Proxies().Test(ctx, cfg)
	if err != nil {
		c.con.Err(fmt.Sprintf("Proxy sin respuesta: %v", err))
		return nil
	}
	c.con.OK(fmt.Sprintf("IP pública %s (%d ms)", b.MaskedIP, b.Latency.Milliseconds()))
	return nil
}

func yesNo(v bool) string {
	if v {
		return "sí"
	}
	return "no"
}
