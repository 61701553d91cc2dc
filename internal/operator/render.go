package operator

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"dmrotor/internal/campaign"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	ruleStyle  = lipgloss.NewStyle().Faint(true)
)

const ruleWidth = 60

func rule(ch string) string { return strings.Repeat(ch, ruleWidth) }

func (c *Console) Info(msg string) { c.printf("%s\n", msg) }
func (c *Console) OK(msg string)   { c.printf("%s\n", okStyle.Render(msg)) }
func (c *Console) Warn(msg string) { c.printf("%s\n", warnStyle.Render(msg)) }
func (c *Console) Err(msg string)  { c.printf("%s\n", errStyle.Render(msg)) }
func (c *Console) Title(msg string) {
	c.printf("%s\n", titleStyle.Render(msg))
}

var _ campaign.Operator = (*Console)(nil)
var _ campaign.Renderer = (*Console)(nil)

// Escalate shows the incident and asks whether to continue without the
// account or pause everything. Empty input picks option 1.
func (c *Console) Escalate(ctx context.Context, in campaign.Incident) (campaign.Decision, error) {
	var b strings.Builder
	b.WriteString(errStyle.Render(rule("=")) + "\n")
	b.WriteString(errStyle.Render("Atención en @"+in.Account) + "\n")
	b.WriteString(in.Message + "\n")
	if in.Detail != "" && in.Detail != in.Message {
		b.WriteString(ruleStyle.Render("Detalle: "+in.Detail) + "\n")
	}
	b.WriteString(errStyle.Render(rule("=")) + "\n")
	b.WriteString("[1] Continuar sin esta cuenta\n")
	b.WriteString("[2] Pausar todo\n")
	c.printf("%s", b.String())

	for {
		choice, err := c.AskDefault(ctx, "Opción: ", "1")
		if err != nil {
			return campaign.DecisionStop, err
		}
		switch choice {
		case "1":
			return campaign.DecisionRetire, nil
		case "2":
			return campaign.DecisionStop, nil
		}
		c.Warn("Opción inválida. Elegí 1 o 2.")
	}
}

// RenderProgress draws the live campaign view.
func (c *Console) RenderProgress(p campaign.Progress) {
	var b strings.Builder
	if c.Clear {
		b.WriteString("\033[H\033[2J")
	}
	b.WriteString(ruleStyle.Render(rule("─")) + "\n")
	b.WriteString(titleStyle.Render("Alias: "+p.Group) + "\n")
	b.WriteString(boldStyle.Render(fmt.Sprintf("Leads pendientes: %d", p.Pending)) + "\n")
	if p.Stopping {
		b.WriteString(warnStyle.Render("Finalizando envíos en curso...") + "\n")
	}
	b.WriteString(ruleStyle.Render(rule("─")) + "\n")
	b.WriteString(titleStyle.Render("Totales por cuenta (esta campaña)") + "\n")
	for _, a := range p.Accounts {
		fmt.Fprintf(&b, " @%s: %d OK / %d errores (quedan %d)\n", a.Account, a.Sent, a.Errors, a.Remaining)
	}
	b.WriteString(ruleStyle.Render(rule("─")) + "\n")
	b.WriteString(titleStyle.Render("Envíos en vuelo") + "\n")
	if p.Board != nil {
		b.WriteString(p.Board.Render() + "\n")
	}
	b.WriteString(ruleStyle.Render(rule("─")) + "\n")
	b.WriteString(okStyle.Render(fmt.Sprintf("Mensajes enviados: %d", p.Totals.OK())) + "\n")
	b.WriteString(errStyle.Render(fmt.Sprintf("Mensajes con error: %d", p.Totals.Fail())) + "\n")
	b.WriteString(ruleStyle.Render(rule("─")) + "\n")
	c.printf("%s", b.String())
}

// RenderSummary prints the end-of-campaign report.
func (c *Console) RenderSummary(s campaign.Summary) {
	var b strings.Builder
	b.WriteString("\n" + titleStyle.Render("== Resumen ==") + "\n")
	if s.NoRecipients {
		b.WriteString(warnStyle.Render("No hay leads nuevos para contactar en esta lista.") + "\n")
	}
	fmt.Fprintf(&b, "OK: %d\n", s.Successes)
	for _, acct := range s.Accounts {
		t := s.PerAccount[acct]
		fmt.Fprintf(&b, " - %s: %d enviados, %d errores\n", acct, t.Sent, t.Errors)
	}
	if s.Remaining > 0 {
		fmt.Fprintf(&b, "Leads sin procesar: %d\n", s.Remaining)
	}
	if s.StopReason != "" {
		label := "Fin"
		if s.Cancelled {
			label = "Proceso detenido"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, s.StopReason)
	}
	c.printf("%s", b.String())
}
