// Package autosave periodically stores the active terminal transcript as
// lab progress.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/martinsuchenak/labconsole/internal/journal"
	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/log"
	"github.com/martinsuchenak/labconsole/internal/metrics"
	"github.com/robfig/cron/v3"
)

// DefaultInterval is the autosave period when none is configured.
const DefaultInterval = 30 * time.Second

// Source supplies the transcript of the active tab.
type Source interface {
	ActiveTranscript() (device, text string, ok bool)
}

// Saver stores lab progress.
type Saver interface {
	SaveProgress(ctx context.Context, labID, config, status string) error
}

// Recorder journals save outcomes.
type Recorder interface {
	Record(ctx context.Context, s *journal.Snapshot) error
}

// Status of the last run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Scheduler runs the autosave task on a cron schedule.
type Scheduler struct {
	mu       sync.RWMutex
	labID    string
	source   Source
	saver    Saver
	recorder Recorder
	metrics  *metrics.Metrics
	interval time.Duration

	cron    *cron.Cron
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	status  Status
	lastRun *time.Time
	lastErr error
	runs    int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the period; non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithJournal records every run's outcome.
func WithJournal(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithMetrics counts runs on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a stopped scheduler for lab labID.
func New(labID string, source Source, saver Saver, opts ...Option) *Scheduler {
	s := &Scheduler{
		labID:    labID,
		source:   source,
		saver:    saver,
		interval: DefaultInterval,
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval is the configured period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start begins periodic saves. Calling it twice is harmless.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})), cron.WithLogger(cronLogger{}))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tick); err != nil {
		s.cancel()
		return fmt.Errorf("scheduling autosave: %w", err)
	}
	c.Start()
	s.cron = c
	s.running = true
	log.Info("Starting autosave", "lab", s.labID, "interval", s.interval)
	return nil
}

// Stop halts the schedule and waits for a running save to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	log.Info("Stopping autosave", "lab", s.labID)
	cancel()
	<-c.Stop().Done()
}

// Running reports whether the schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) tick() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	s.RunOnce(ctx)
}

// RunOnce saves the active transcript now. Errors are logged and counted;
// the return value is for callers that want to report them.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	device, text, ok := s.source.ActiveTranscript()
	now := time.Now()

	s.mu.Lock()
	s.lastRun = &now
	s.runs++
	if !ok {
		s.status = StatusSkipped
		s.mu.Unlock()
		s.metrics.IncAutosave("skipped")
		return nil
	}
	s.status = StatusRunning
	s.mu.Unlock()

	err := s.saver.SaveProgress(ctx, s.labID, text, labclient.ProgressInProgress)

	s.mu.Lock()
	s.lastErr = err
	if err != nil {
		s.status = StatusFailed
	} else {
		s.status = StatusCompleted
	}
	s.mu.Unlock()

	snap := &journal.Snapshot{LabID: s.labID, Device: device, Kind: journal.KindAutosave, Content: text}
	if err != nil {
		log.Warn("Autosave failed", "lab", s.labID, "device", device, "error", err)
		s.metrics.IncAutosave("failed")
		snap.Status = journal.StatusFailed
		snap.Error = err.Error()
	} else {
		log.Debug("Autosave completed", "lab", s.labID, "device", device, "bytes", len(text))
		s.metrics.IncAutosave("ok")
	}
	if s.recorder != nil {
		if jerr := s.recorder.Record(ctx, snap); jerr != nil {
			log.Warn("Failed to journal autosave", "lab", s.labID, "error", jerr)
		}
	}
	return err
}

// State describes the last run.
type State struct {
	Status  Status
	LastRun *time.Time
	LastErr error
	Runs    int
}

// State returns the outcome of the most recent run.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Status: s.status, LastRun: s.lastRun, LastErr: s.lastErr, Runs: s.runs}
}

// cronLogger routes cron's own messages to the console log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Trace("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
