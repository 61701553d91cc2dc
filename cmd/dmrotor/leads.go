package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"dmrotor/internal/leads"
)

func (c *cli) runLeads(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, args := args[0], args[1:]

	fs := flag.NewFlagSet("leads "+sub, flag.ContinueOnError)
	fs.SetOutput(c.out)
	limit := fs.Int("limit", 50, "handles to print (show)")
	yes := fs.Bool("y", false, "skip confirmation (delete)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if sub != "list" && fs.NArg() == 0 {
		return fmt.Errorf("leads %s needs a list name", sub)
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)
	store := a.Leads()

	switch sub {
	case "list":
		names, err := store.List()
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			handles, err := store.Load(name)
			if err != nil {
				return err
			}
			rows = append(rows, []string{name, strconv.Itoa(len(handles))})
		}
		c.con.Table([]string{"Lista", "Leads"}, rows, "No hay listas de leads.")
	case "show":
		name := fs.Arg(0)
		handles, err := store.Load(name)
		if err != nil {
			return err
		}
		if len(handles) == 0 {
			c.con.Warn(fmt.Sprintf("La lista %q está vacía o no existe.", name))
			return nil
		}
		shown := handles
		if *limit > 0 && len(shown) > *limit {
			shown = shown[:*limit]
		}
		for _, h := range shown {
			c.con.Info("@" + h)
		}
		if len(shown) < len(handles) {
			c.con.Info(fmt.Sprintf("... y %d más (%d en total)", len(handles)-len(shown), len(handles)))
		}
	case "add":
		n, err := store.Append(fs.Arg(0), fs.Args()[1:])
		if err != nil {
			return err
		}
		c.con.OK(fmt.Sprintf("%d leads agregados a %q.", n, fs.Arg(0)))
	case "import":
		if fs.NArg() < 2 {
			return errors.New("leads import needs a list name and a csv file")
		}
		n, err := importFile(store, fs.Arg(0), fs.Arg(1))
		if err != nil {
			return err
		}
		c.con.OK(fmt.Sprintf("%d leads importados a %q.", n, fs.Arg(0)))
	case "delete":
		name := fs.Arg(0)
		if !*yes {
			ok, err := c.con.Confirm(ctx, fmt.Sprintf("¿Borrar la lista %q? (s/N): ", name))
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if !ok {
				c.con.Info("Cancelado.")
				return nil
			}
		}
		if err := store.Delete(name); err != nil {
			if errors.Is(err, leads.ErrNotFound) {
				c.con.Warn(fmt.Sprintf("La lista %q no existe.", name))
				return nil
			}
			return err
		}
		c.con.OK(fmt.Sprintf("Lista %q borrada.", name))
	default:
		return fmt.Errorf("unknown leads command %q (list|show|add|import|delete)", sub)
	}
	return nil
}

func importFile(store *leads.Store, name, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return store.ImportCSV(f, name)
}
