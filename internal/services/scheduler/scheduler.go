package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
)

// Service fires the job starter on a cron schedule, the same way a POST to
// /trigger does. Scheduled jobs get no more isolation than triggered ones.
type Service struct {
	starter  interfaces.JobStarter
	cron     *cron.Cron
	logger   arbor.ILogger
	mu       sync.Mutex // guards running, schedule and entryID; never held while a tick runs
	running  bool
	schedule string
	entryID  cron.EntryID
	lastRun  atomic.Int64 // unix nanos
}

// NewService creates a scheduler for starter
func NewService(starter interfaces.JobStarter, logger arbor.ILogger) *Service {
	return &Service{
		starter: starter,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start registers schedule and starts the cron loop. An empty schedule is a no-op.
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == "" {
		s.logger.Debug().Msg("No schedule configured, scheduler disabled")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	id, err := s.cron.AddFunc(schedule, func() { s.fire(schedule) })
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = id
	s.schedule = schedule
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Str("next_run", s.cron.Entry(id).Next.Format(time.RFC3339)).
		Msg("Imagine scheduler started")
	return nil
}

// Stop stops the cron loop and waits for an in-flight tick to return.
// Jobs the tick already spawned keep running.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cron.Remove(s.entryID)
	stopped := s.cron.Stop()
	s.mu.Unlock()

	<-stopped.Done()
	s.logger.Info().Msg("Imagine scheduler stopped")
}

// IsRunning reports whether a schedule is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns when the schedule last fired, zero if never
func (s *Service) LastRun() time.Time {
	nanos := s.lastRun.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (s *Service) fire(schedule string) {
	s.lastRun.Store(time.Now().UnixNano())

	s.logger.Info().Str("schedule", schedule).Msg("Scheduled imagine job triggered")
	s.starter.Start()
}
