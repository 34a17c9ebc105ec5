// Package watch polls a buyer's negotiations on a cron schedule and reports
// newly created and newly concluded ones.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/notify"
	"github.com/zulandar/procurebot/internal/wizard"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultSchedule polls every five minutes.
const DefaultSchedule = "*/5 * * * *"

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Lister fetches a buyer's negotiation summaries.
type Lister interface {
	ListByBuyer(ctx context.Context, creds api.Credentials) ([]models.Negotiation, error)
}

// Opts holds parameters for creating a Watcher.
type Opts struct {
	Lister   Lister
	Creds    api.Credentials
	Schedule string // defaults to DefaultSchedule
	// DB persists the last seen statuses so a restart neither repeats nor
	// misses transitions. Optional; without it the first poll is a silent
	// baseline.
	DB       *gorm.DB
	Notifier notify.Notifier // optional
	// OnEvent is called for every detected event before notification.
	OnEvent func(notify.Event)
	// Origin builds share links in events. Optional.
	Origin string
	Logger zerolog.Logger
}

// Watcher detects lifecycle changes of one buyer's negotiations.
type Watcher struct {
	lister   Lister
	creds    api.Credentials
	schedule cron.Schedule
	expr     string
	db       *gorm.DB
	notifier notify.Notifier
	onEvent  func(notify.Event)
	origin   string
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	snapshot map[string]string // negotiation id -> last seen status
	seeded   bool
}

// New creates a Watcher.
func New(opts Opts) (*Watcher, error) {
	if opts.Lister == nil {
		return nil, errors.New("watch: lister is required")
	}
	if opts.Creds.Email == "" || opts.Creds.Code == "" {
		return nil, errors.New("watch: buyer email and dashboard code are required")
	}
	expr := opts.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("watch: schedule %q: %w", expr, err)
	}
	return &Watcher{
		lister:   opts.Lister,
		creds:    opts.Creds,
		schedule: sched,
		expr:     expr,
		db:       opts.DB,
		notifier: opts.Notifier,
		onEvent:  opts.OnEvent,
		origin:   opts.Origin,
		log:      opts.Logger,
		now:      time.Now,
		snapshot: make(map[string]string),
	}, nil
}

// Next returns the next poll time after t.
func (w *Watcher) Next(t time.Time) time.Time { return w.schedule.Next(t) }

// Poll runs one detection cycle. The first cycle seeds the snapshot,
// from persisted state when available, and reports nothing else.
func (w *Watcher) Poll(ctx context.Context) ([]notify.Event, error) {
	list, err := w.lister.ListByBuyer(ctx, w.creds)
	if err != nil {
		return nil, fmt.Errorf("watch: list: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.seeded {
		if err := w.loadState(); err != nil {
			return nil, err
		}
	}

	now := w.now()
	var events []notify.Event
	current := make(map[string]bool, len(list))
	for _, n := range list {
		current[n.ID] = true
		old, known := w.snapshot[n.ID]
		w.snapshot[n.ID] = n.Status
		if !w.seeded {
			continue
		}
		if !known {
			events = append(events, w.event(notify.KindCreated, n, now))
		}
		if n.IsConcluded() && old != models.StatusConcluded {
			events = append(events, w.event(notify.KindConcluded, n, now))
		}
	}
	var gone []string
	for id := range w.snapshot {
		if !current[id] {
			gone = append(gone, id)
			delete(w.snapshot, id)
		}
	}
	w.seeded = true

	if err := w.saveState(list, gone, now); err != nil {
		return events, err
	}
	return events, nil
}

func (w *Watcher) event(kind notify.Kind, n models.Negotiation, at time.Time) notify.Event {
	ev := notify.Event{
		Kind:          kind,
		NegotiationID: n.ID,
		Name:          n.Name,
		Suppliers:     n.TargetDetails.SupplierNames(),
		BuyerEmail:    w.creds.Email,
		At:            at,
	}
	if w.origin != "" {
		ev.URL = wizard.ShareLink(w.origin, n.ID, n.SupplierEmail)
	}
	return ev
}

// loadState seeds the snapshot from persisted statuses. Called with mu held.
func (w *Watcher) loadState() error {
	if w.db == nil {
		return nil
	}
	var states []models.WatchState
	if err := w.db.Where("buyer_email = ?", w.creds.Email).Find(&states).Error; err != nil {
		return fmt.Errorf("watch: load state: %w", err)
	}
	if len(states) == 0 {
		return nil
	}
	for _, s := range states {
		w.snapshot[s.NegotiationID] = s.Status
	}
	w.seeded = true
	return nil
}

// saveState persists the current statuses. Called with mu held.
func (w *Watcher) saveState(list []models.Negotiation, gone []string, now time.Time) error {
	if w.db == nil {
		return nil
	}
	return w.db.Transaction(func(tx *gorm.DB) error {
		if len(gone) > 0 {
			if err := tx.Where("negotiation_id IN ?", gone).Delete(&models.WatchState{}).Error; err != nil {
				return fmt.Errorf("watch: prune state: %w", err)
			}
		}
		if len(list) == 0 {
			return nil
		}
		states := make([]models.WatchState, len(list))
		for i, n := range list {
			states[i] = models.WatchState{
				NegotiationID: n.ID,
				BuyerEmail:    w.creds.Email,
				Status:        n.Status,
				SeenAt:        now,
			}
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "negotiation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"buyer_email", "status", "seen_at"}),
		}).Create(&states).Error
		if err != nil {
			return fmt.Errorf("watch: save state: %w", err)
		}
		return nil
	})
}

// Tick polls once and dispatches the resulting events. Failures are
// logged; they never stop the watcher.
func (w *Watcher) Tick(ctx context.Context) {
	events, err := w.Poll(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("poll failed")
	}
	for _, ev := range events {
		w.log.Info().Str("negotiation", ev.NegotiationID).Str("kind", string(ev.Kind)).Msg("negotiation changed")
		if w.onEvent != nil {
			w.onEvent(ev)
		}
		if w.notifier == nil {
			continue
		}
		if err := w.notifier.Notify(ctx, ev); err != nil {
			w.log.Warn().Err(err).Str("negotiation", ev.NegotiationID).Msg("notification failed")
		}
	}
}

// Run polls immediately, then on the schedule until ctx is cancelled.
// Overlapping ticks are skipped.
func (w *Watcher) Run(ctx context.Context) error {
	w.Tick(ctx)

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(w.expr, func() { w.Tick(ctx) }); err != nil {
		return fmt.Errorf("watch: schedule: %w", err)
	}
	c.Start()
	w.log.Info().Str("schedule", w.expr).Time("next", w.Next(w.now())).Msg("watching negotiations")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
