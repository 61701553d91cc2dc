package storage

import (
	"encoding/csv"
	"io"
	"strings"
	"time"
)

var csvHeader = []string{"timestamp", "account", "to", "status", "detail"}

// Status renders a record outcome the way logs and exports show it.
func Status(ok bool) string {
	if ok {
		return "OK"
	}
	return "ERROR"
}

// WriteCSV exports records with local timestamps. Newlines in details are
// flattened so each record stays on one line.
func WriteCSV(w io.Writer, records []Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		detail := strings.NewReplacer("\r", " ", "\n", " ").Replace(r.Detail)
		row := []string{
			r.At.In(loc).Format("2006-01-02 15:04:05"),
			r.Account,
			r.To,
			Status(r.OK),
			detail,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
