// Package schedule triggers periodic detached root tasks: each entry fires
// on a cron expression or fixed interval and spawns an independent task
// through the hierarchy manager. Entries live in memory only.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/config"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/events"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/isolation"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/sched"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/task"
)

// GenerateEntryID creates a unique schedule entry identifier.
func GenerateEntryID() string {
	u := uuid.New().String()
	return "sched_" + strings.ReplaceAll(u[:8], "-", "")
}

// Entry is one periodic trigger.
type Entry struct {
	ID       string
	Name     string
	Cron     *CronExpr
	Interval time.Duration
	Domain   isolation.Context
	Sleep    time.Duration // simulated work per trigger
	Cooldown time.Duration
	MaxRuns  int // 0 = unlimited

	runCount int
	lastRun  time.Time
}

// EntryInfo is the serializable snapshot of an entry.
type EntryInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Cron     string     `json:"cron,omitempty"`
	Interval string     `json:"interval,omitempty"`
	Domain   string     `json:"domain"`
	RunCount int        `json:"run_count"`
	LastRun  *time.Time `json:"last_run,omitempty"`
}

// Config holds the scheduler's collaborators.
type Config struct {
	Tasks *task.Manager
	Bus   *events.Bus
	Clock sched.Clock
}

// Scheduler fires schedule entries and spawns their tasks.
type Scheduler struct {
	tasks *task.Manager
	bus   *events.Bus
	clock sched.Clock

	mu      sync.Mutex
	entries map[string]*Entry

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = sched.NewClock()
	}
	return &Scheduler{
		tasks:   cfg.Tasks,
		bus:     cfg.Bus,
		clock:   clock,
		entries: make(map[string]*Entry),
		done:    make(chan struct{}),
	}
}

// AddFromConfig registers every configured schedule entry, resolving domain
// names through lookup.
func (s *Scheduler) AddFromConfig(cfgs []config.ScheduleConfig, lookup func(name string) (*isolation.Domain, bool)) error {
	for _, sc := range cfgs {
		e := &Entry{
			Name:     sc.Name,
			Interval: time.Duration(sc.IntervalSec) * time.Second,
			Sleep:    sc.Sleep.Duration(),
			Cooldown: time.Duration(sc.CooldownSec) * time.Second,
			MaxRuns:  sc.MaxRuns,
		}
		if sc.Cron != "" {
			cronExpr, err := ParseCron(sc.Cron)
			if err != nil {
				return fmt.Errorf("schedule %s: %w", sc.Name, err)
			}
			e.Cron = cronExpr
		}
		if sc.Cron == "" && sc.IntervalSec <= 0 {
			return fmt.Errorf("schedule %s: needs a cron expression or interval", sc.Name)
		}
		if sc.Domain != "" {
			d, ok := lookup(sc.Domain)
			if !ok {
				return fmt.Errorf("schedule %s: unknown domain %q", sc.Name, sc.Domain)
			}
			e.Domain = isolation.Bound(d)
		}
		s.Add(e)
	}
	return nil
}

// Add registers an entry, assigning its id.
func (s *Scheduler) Add(e *Entry) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = GenerateEntryID()
	}
	s.entries[e.ID] = e
	return e.ID
}

// Start begins the tick loop.
func (s *Scheduler) Start() {
	go s.tickLoop()
	slog.Info("schedule started", "entries", len(s.entries))
}

// Stop halts the tick loop. Already spawned tasks are unaffected.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	slog.Info("schedule stopped")
}

func (s *Scheduler) tickLoop() {
	for {
		select {
		case <-s.done:
			return
		case now := <-s.clock.After(time.Second):
			s.tick(now)
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	var due []*Entry
	for _, e := range s.entries {
		if e.due(now) {
			e.runCount++
			e.lastRun = now
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.trigger(e)
	}
}

func (e *Entry) due(now time.Time) bool {
	if e.MaxRuns > 0 && e.runCount >= e.MaxRuns {
		return false
	}
	if e.Interval > 0 {
		return e.lastRun.IsZero() || now.Sub(e.lastRun) >= e.Interval
	}
	if e.Cron != nil {
		if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.Cooldown {
			return false
		}
		return e.Cron.Matches(now)
	}
	return false
}

func (s *Scheduler) trigger(e *Entry) {
	if s.bus != nil {
		s.bus.Publish(events.NewEvent(events.EventScheduleTrigger, events.SourceSchedule, map[string]any{
			"entry_id": e.ID,
			"name":     e.Name,
			"run":      e.runCount,
		}))
	}
	slog.Debug("schedule trigger", "entry", e.Name, "run", e.runCount)

	sleep := e.Sleep
	clock := s.clock
	_, err := s.tasks.SpawnDetached(context.Background(), e.Domain, func(ctx context.Context) (any, error) {
		if sleep > 0 {
			if err := clock.Sleep(ctx, sleep); err != nil {
				return nil, err
			}
		}
		return nil, task.CheckCancelled(ctx)
	}, task.WithName(e.Name))
	if err != nil {
		slog.Warn("schedule spawn failed", "entry", e.Name, "error", err)
	}
}

// Entries returns a snapshot of all entries.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := EntryInfo{
			ID:       e.ID,
			Name:     e.Name,
			Domain:   e.Domain.String(),
			RunCount: e.runCount,
		}
		if e.Cron != nil {
			info.Cron = e.Cron.String()
		}
		if e.Interval > 0 {
			info.Interval = e.Interval.String()
		}
		if !e.lastRun.IsZero() {
			last := e.lastRun
			info.LastRun = &last
		}
		out = append(out, info)
	}
	return out
}
