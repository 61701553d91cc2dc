package campaign

import (
	"fmt"
	"strings"

	"dmrotor/internal/accounts"
)

const (
	MinPerAccount   = 2
	DefaultTemplate = "hola!"
)

// Request is the operator's raw campaign input.
type Request struct {
	Group       string
	List        string
	PerAccount  int
	Concurrency int
	DelayMin    int
	DelayMax    int
	Templates   []string
}

// Limits bound what an operator may ask for.
type Limits struct {
	MaxPerAccount  int
	MaxConcurrency int
	DelayFloor     int
}

// Normalize clamps r into l and returns one warning per adjustment.
func Normalize(r Request, l Limits) (Request, []string) {
	var warns []string

	r.Group = strings.TrimSpace(r.Group)
	if r.Group == "" {
		r.Group = accounts.DefaultAlias
	}
	r.List = strings.TrimSpace(r.List)

	if r.PerAccount < MinPerAccount {
		warns = append(warns, fmt.Sprintf("El mínimo recomendado es %d por cuenta. Se ajusta automáticamente.", MinPerAccount))
	}
	if l.MaxPerAccount > 0 && r.PerAccount > l.MaxPerAccount {
		warns = append(warns, fmt.Sprintf("Se ajusta a MAX_PER_ACCOUNT (%d).", l.MaxPerAccount))
		r.PerAccount = l.MaxPerAccount
	}
	r.PerAccount = max(MinPerAccount, r.PerAccount)

	if r.Concurrency < 1 {
		warns = append(warns, "La concurrencia mínima es 1. Se ajusta a 1.")
		r.Concurrency = 1
	}
	if l.MaxConcurrency > 0 && r.Concurrency > l.MaxConcurrency {
		warns = append(warns, fmt.Sprintf("Se ajusta a MAX_CONCURRENCY (%d).", l.MaxConcurrency))
		r.Concurrency = l.MaxConcurrency
	}

	if r.DelayMin < l.DelayFloor {
		warns = append(warns, fmt.Sprintf("El delay mínimo recomendado es %ds. Se ajusta automáticamente.", l.DelayFloor))
		r.DelayMin = l.DelayFloor
	}
	if r.DelayMin < 0 {
		r.DelayMin = 0
	}
	if r.DelayMax < r.DelayMin {
		warns = append(warns, "Delay máximo ajustado al mínimo indicado.")
		r.DelayMax = r.DelayMin
	}

	tpl := make([]string, 0, len(r.Templates))
	for _, t := range r.Templates {
		if strings.TrimSpace(t) != "" {
			tpl = append(tpl, t)
		}
	}
	if len(tpl) == 0 {
		tpl = []string{DefaultTemplate}
	}
	r.Templates = tpl

	return r, warns
}

// Campaign builds the run for recipients. r should already be normalized.
func (r Request) Campaign(recipients []string) Campaign {
	return Campaign{
		Group:         r.Group,
		Recipients:    recipients,
		Templates:     append([]string(nil), r.Templates...),
		PerAccountCap: r.PerAccount,
		Concurrency:   r.Concurrency,
		DelayMin:      r.DelayMin,
		DelayMax:      r.DelayMax,
	}
}
