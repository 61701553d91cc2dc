package operator

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerCell = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	bodyCell   = lipgloss.NewStyle().Padding(0, 1)
)

// Table prints rows under headers with a rounded border. With no rows it
// prints the empty message instead.
func (c *Console) Table(headers []string, rows [][]string, empty string) {
	if len(rows) == 0 {
		if empty != "" {
			c.printf("%s\n", warnStyle.Render(empty))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ruleStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return bodyCell
		}).
		Headers(headers...).
		Rows(rows...)
	c.printf("%s\n", t.String())
}
