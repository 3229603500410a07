package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule runs the idle sweep once a minute
const DefaultSweepSchedule = "@every 1m"

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Sweeper periodically expires idle sessions on a cron schedule
type Sweeper struct {
	manager  *Manager
	schedule string
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper for manager. schedule accepts standard cron
// expressions and descriptors such as "@every 1m".
func NewSweeper(manager *Manager, schedule string, logger zerolog.Logger) (*Sweeper, error) {
	if manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	if _, err := scheduleParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	return &Sweeper{
		manager:  manager,
		schedule: schedule,
		logger:   logger.With().Str("component", "session_sweeper").Logger(),
		cron:     cron.New(cron.WithParser(scheduleParser)),
	}, nil
}

// Start schedules the sweep
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, s.SweepNow); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.schedule).
		Dur("idle_timeout", s.manager.IdleTimeout()).
		Msg("Session sweeper started")

	return nil
}

// Stop unschedules the sweep and waits for a running sweep to finish
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("sweeper is not running")
	}

	<-s.cron.Stop().Done()
	s.running = false
	s.cron = cron.New(cron.WithParser(scheduleParser))

	s.logger.Info().Msg("Session sweeper stopped")
	return nil
}

// IsRunning returns whether the sweep is scheduled
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SweepNow expires idle sessions immediately
func (s *Sweeper) SweepNow() {
	removed := s.manager.Sweep(time.Now())
	s.logger.Debug().
		Int("removed", removed).
		Int("active", s.manager.Count()).
		Msg("Session sweep finished")
}
