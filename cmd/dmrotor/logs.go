package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"dmrotor/internal/app"
	"dmrotor/internal/report"
	"dmrotor/internal/storage"
)

const dayLayout = "2006-01-02"

func (c *cli) runLogs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"recent"}
	}
	sub, args := args[0], args[1:]

	fs := flag.NewFlagSet("logs "+sub, flag.ContinueOnError)
	fs.SetOutput(c.out)
	limit := fs.Int("limit", 20, "records to print")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD (inclusive)")
	account := fs.String("account", "", "only this sender (export)")
	window := fs.String("window", "", "stats window: dia, semana, mes or a number of days")
	out := fs.String("out", "", "csv file to write (export); default stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)
	loc := a.Location()

	switch sub {
	case "recent":
		return c.printRecords(ctx, a, storage.Query{Limit: *limit})
	case "account":
		if fs.NArg() == 0 {
			return fmt.Errorf("logs account needs a username")
		}
		return c.printRecords(ctx, a, storage.Query{Account: fs.Arg(0), Limit: *limit})
	case "range":
		q, err := rangeQuery(*from, *to, loc)
		if err != nil {
			return err
		}
		return c.printRecords(ctx, a, q)
	case "stats":
		arg := *window
		if arg == "" && fs.NArg() > 0 {
			arg = fs.Arg(0)
		}
		days, err := report.ParseWindow(arg)
		if err != nil {
			return err
		}
		d, err := report.Build(ctx, a.Store(), time.Now(), days, loc)
		if err != nil {
			return err
		}
		c.con.Title(d.Title)
		c.con.Info(d.String())
		return nil
	case "export":
		q, err := rangeQuery(*from, *to, loc)
		if err != nil {
			return err
		}
		q.Account = *account
		recs, err := a.Store().Records(ctx, q)
		if err != nil {
			return err
		}
		if *out == "" {
			return storage.WriteCSV(c.out, recs, loc)
		}
		if err := writeCSVFile(*out, recs, loc); err != nil {
			return err
		}
		c.con.OK(fmt.Sprintf("%d registros exportados a %s.", len(recs), *out))
		return nil
	default:
		return fmt.Errorf("unknown logs command %q (recent|account|range|stats|export)", sub)
	}
}

func (c *cli) printRecords(ctx context.Context, a *app.App, q storage.Query) error {
	recs, err := a.Store().Records(ctx, q)
	if err != nil {
		return err
	}
	loc := a.Location()
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.At.In(loc).Format("2006-01-02 15:04:05"),
			"@" + r.Account,
			"@" + r.To,
			storage.Status(r.OK),
			r.Detail,
		})
	}
	c.con.Table([]string{"Fecha", "Cuenta", "Destino", "Estado", "Detalle"}, rows, "No hay registros.")
	if len(recs) > 0 {
		c.con.Info(strconv.Itoa(len(recs)) + " registros")
	}
	return nil
}

// rangeQuery turns two calendar days in loc into a half-open query. Either
// bound may be empty.
func rangeQuery(from, to string, loc *time.Location) (storage.Query, error) {
	var q storage.Query
	if from != "" {
		t, err := time.ParseInLocation(dayLayout, from, loc)
		if err != nil {
			return q, fmt.Errorf("-from: %w", err)
		}
		q.Since = t
	}
	if to != "" {
		t, err := time.ParseInLocation(dayLayout, to, loc)
		if err != nil {
			return q, fmt.Errorf("-to: %w", err)
		}
		q.Until = t.AddDate(0, 0, 1)
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		return q, fmt.Errorf("-from %s is after -to %s", from, to)
	}
	return q, nil
}

func writeCSVFile(path string, recs []storage.Record, loc *time.Location) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return storage.WriteCSV(f, recs, loc)
}
