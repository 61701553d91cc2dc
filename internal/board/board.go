// Package board tracks the sends currently in flight for the progress view.
package board

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const DefaultExpiry = 6 * time.Second

type State int

const (
	StateRunning State = iota
	StateOK
	StateFailed
)

// Entry is one account's current or last send.
type Entry struct {
	Account    string
	Lead       string
	StartedAt  time.Time
	FinishedAt time.Time
	State      State
	Detail     string
}

// Board is safe for concurrent use. One entry per account; Begin replaces it.
type Board struct {
	maxEntries int
	expiry     time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
}

func New(maxEntries int) *Board {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Board{maxEntries: maxEntries, expiry: DefaultExpiry, now: time.Now, entries: map[string]*Entry{}}
}

// WithClock replaces the time source. Tests only.
func (b *Board) WithClock(now func() time.Time) *Board {
	b.now = now
	return b
}

func (b *Board) Begin(account, lead string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[account] = &Entry{Account: account, Lead: lead, StartedAt: b.now()}
}

func (b *Board) Complete(account string, ok bool, detail string) {
	state := StateFailed
	if ok {
		state = StateOK
	}
	b.finish(account, state, detail)
}

// Abandon marks a send that never ran.
func (b *Board) Abandon(account, detail string) {
	b.finish(account, StateFailed, detail)
}

func (b *Board) finish(account string, state State, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[account]
	if !ok {
		return
	}
	e.State = state
	e.Detail = detail
	e.FinishedAt = b.now()
}

// Prune drops entries finished more than the expiry ago.
func (b *Board) Prune() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
}

func (b *Board) pruneLocked() {
	now := b.now()
	for k, e := range b.entries {
		if !e.FinishedAt.IsZero() && now.Sub(e.FinishedAt) > b.expiry {
			delete(b.entries, k)
		}
	}
}

// Rows prunes, then returns up to maxEntries entries ordered by start time.
func (b *Board) Rows() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	if len(out) > b.maxEntries {
		out = out[:b.maxEntries]
	}
	return out
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	runStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

func (s State) icon() string {
	switch s {
	case StateOK:
		return okStyle.Render("✔")
	case StateFailed:
		return errStyle.Render("✘")
	default:
		return runStyle.Render("…")
	}
}

// Render draws the board as an aligned table.
func (b *Board) Render() string {
	rows := b.Rows()
	if len(rows) == 0 {
		return mutedStyle.Render("  Sin envíos en vuelo")
	}
	table := [][]string{{
		headerStyle.Render("Cuenta"),
		headerStyle.Render("Lead"),
		headerStyle.Render("Hora"),
		headerStyle.Render("Res"),
		headerStyle.Render("Detalle"),
	}}
	for _, e := range rows {
		table = append(table, []string{
			"@" + e.Account,
			"@" + e.Lead,
			e.StartedAt.Format("15:04:05"),
			e.State.icon(),
			truncate(e.Detail, 48),
		})
	}
	return formatTable(table)
}

func formatTable(rows [][]string) string {
	widths := make([]int, len(rows[0]))
	for _, r := range rows {
		for i, c := range r {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	var sb strings.Builder
	for ri, r := range rows {
		sb.WriteString("  ")
		for i, c := range r {
			sb.WriteString(c)
			if i < len(r)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(c)+2))
			}
		}
		if ri < len(rows)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
