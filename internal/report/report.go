// Package report builds send-log digests and publishes them on a cron
// schedule.
package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dmrotor/internal/eventbus"
	"dmrotor/internal/storage"
	logx "dmrotor/pkg/logx"
)

const DefaultSpec = "0 21 * * *"

func newParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Digest is a Stats window ready to print.
type Digest struct {
	Title string
	At    time.Time
	Stats storage.Stats
}

func (d Digest) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", d.Title, d.At.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Mensajes enviados: %d\nMensajes con error: %d", d.Stats.Sent, d.Stats.Errors)
	if d.Stats.Days > 1 {
		for _, day := range d.Stats.PerDay {
			fmt.Fprintf(&b, "\n  %s: %d OK / %d errores", day.Day, day.Sent, day.Errors)
		}
	}
	if len(d.Stats.TopAccounts) > 0 {
		b.WriteString("\nCuentas con más envíos:")
		for _, a := range d.Stats.TopAccounts {
			fmt.Fprintf(&b, "\n  @%s: %d", a.Account, a.Sent)
		}
	}
	return b.String()
}

// Title names a window length.
func Title(days int) string {
	switch {
	case days <= 1:
		return "Resumen diario"
	case days == 7:
		return "Resumen semanal"
	case days == 30:
		return "Resumen mensual"
	default:
		return fmt.Sprintf("Resumen de %d días", days)
	}
}

// Build aggregates the last days calendar days of store in loc.
func Build(ctx context.Context, store storage.Store, now time.Time, days int, loc *time.Location) (Digest, error) {
	if loc == nil {
		loc = time.UTC
	}
	if days < 1 {
		days = 1
	}
	since := storage.StartOfDay(now, loc).AddDate(0, 0, -(days - 1))
	recs, err := store.Records(ctx, storage.Query{Since: since})
	if err != nil {
		return Digest{}, err
	}
	return Digest{
		Title: Title(days),
		At:    now.In(loc),
		Stats: storage.Aggregate(recs, now, days, loc),
	}, nil
}

type Config struct {
	Enabled bool
	Spec    string
	Days    int
}

// Service publishes a Digest on the event bus at every cron tick.
type Service struct {
	mu sync.Mutex

	cfg    Config
	store  storage.Store
	bus    eventbus.Bus
	loc    *time.Location
	log    logx.Logger
	now    func() time.Time
	parser cron.Parser
	c      *cron.Cron
}

func New(cfg Config, store storage.Store, bus eventbus.Bus, loc *time.Location, log logx.Logger) (*Service, error) {
	if store == nil || bus == nil {
		return nil, errors.New("report needs a store and a bus")
	}
	if strings.TrimSpace(cfg.Spec) == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Days < 1 {
		cfg.Days = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg,
		store:  store,
		bus:    bus,
		loc:    loc,
		log:    log.With(logx.String("comp", "report")),
		now:    time.Now,
		parser: newParser(),
	}
	if err := ValidateSpec(cfg.Spec); err != nil {
		return nil, fmt.Errorf("report.spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start registers the digest job. It is a no-op when disabled or running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	_, err := c.AddFunc(s.cfg.Spec, func() {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := s.RunNow(rctx); err != nil {
			s.log.Warn("digest failed", logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	s.c = c
	c.Start()
	s.log.Info("digest scheduled", logx.String("spec", s.cfg.Spec), logx.String("tz", s.loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the schedule, restarting the cron runner when it is active.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.Spec) == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Days < 1 {
		cfg.Days = 1
	}
	if err := ValidateSpec(cfg.Spec); err != nil {
		return fmt.Errorf("report.spec %q: %w", cfg.Spec, err)
	}
	s.Stop(ctx)
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s.Start(ctx)
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// ValidateSpec checks a cron expression with the parser the service uses.
func ValidateSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	_, err := newParser().Parse(spec)
	return err
}

// Next is the next scheduled run, or zero when not running.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow builds and publishes a digest immediately.
func (s *Service) RunNow(ctx context.Context) (Digest, error) {
	s.mu.Lock()
	days := s.cfg.Days
	s.mu.Unlock()
	d, err := Build(ctx, s.store, s.now(), days, s.loc)
	if err != nil {
		return Digest{}, err
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDigest, Time: d.At, Data: d})
	s.log.Info("digest published", logx.Int("sent", d.Stats.Sent), logx.Int("errors", d.Stats.Errors))
	return d, nil
}

// ParseWindow maps a window argument to a day count: "" or "dia" is 1,
// "semana" is 7, "mes" is 30, and plain numbers are taken as days.
func ParseWindow(arg string) (int, error) {
	switch a := strings.ToLower(strings.TrimSpace(arg)); a {
	case "", "dia", "día", "hoy", "daily":
		return 1, nil
	case "semana", "week", "weekly":
		return 7, nil
	case "mes", "month", "monthly":
		return 30, nil
	default:
		n, err := strconv.Atoi(a)
		if err != nil || n < 1 || n > 366 {
			return 0, fmt.Errorf("ventana inválida %q", arg)
		}
		return n, nil
	}
}
