package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dmrotor/internal/app"
	"dmrotor/internal/operator"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCLI(os.Stdin, os.Stdout).run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cli struct {
	in   io.Reader
	out  io.Writer
	con  *operator.Console
	opts app.Options
}

func newCLI(in io.Reader, out io.Writer) *cli {
	con := operator.New(in, out)
	con.Clear = isTerminal(out)
	return &cli{in: in, out: out, con: con}
}

func (c *cli) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dmrotor", flag.ContinueOnError)
	fs.SetOutput(c.out)
	fs.StringVar(&c.opts.ConfigPath, "config", "./dmrotor.yaml", "config file (yaml or json)")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = c.usage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verbose {
		c.opts.LogLevel = "debug"
	}

	rest := fs.Args()
	if len(rest) == 0 {
		c.usage()
		return nil
	}
	cmd, args := rest[0], rest[1:]
	switch cmd {
	case "campaign", "run":
		return c.runCampaign(ctx, args)
	case "accounts":
		return c.runAccounts(ctx, args)
	case "leads":
		return c.runLeads(ctx, args)
	case "logs":
		return c.runLogs(ctx, args)
	case "serve":
		return c.runServe(ctx, args)
	case "help", "-h", "--help":
		c.usage()
		return nil
	default:
		c.usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// open builds the application for one command. Callers must Close it.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.opts)
}

func closeApp(a *app.App) {
	_ = a.Close(context.Background())
}

func (c *cli) usage() {
	fmt.Fprint(c.out, `dmrotor: direct-message campaigns across rotating sender accounts

Usage:
  dmrotor [-config ./dmrotor.yaml] [-v] <command> [flags]

Commands:
  campaign   run a campaign (missing values are asked interactively)
  accounts   list|add|remove|enable|disable|login|proxy-test
  leads      list|show|add|import|delete
  logs       recent|account|range|stats|export
  serve      daily digest, Telegram commands and config hot reload

While a campaign runs, type Q and Enter to stop after the sends in flight.
`)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
