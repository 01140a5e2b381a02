package imagine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/common"
)

type jobRunner interface {
	Run(ctx context.Context) Result
}

// Service starts fire-and-forget jobs. There is no queue, lock or
// deduplication: jobs triggered close together run concurrently.
type Service struct {
	ctx     context.Context
	runner  jobRunner
	logger  arbor.ILogger
	started atomic.Int64
	running atomic.Int64
	jobs    sync.WaitGroup
}

// NewService creates a service whose jobs live as long as ctx
func NewService(ctx context.Context, runner *Runner, logger arbor.ILogger) *Service {
	return &Service{ctx: ctx, runner: runner, logger: logger}
}

// Start spawns one job and returns immediately. The outcome is only visible in the log.
// Once the service context is cancelled no new jobs are spawned.
func (s *Service) Start() {
	if err := s.ctx.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Service is shutting down, imagine job not started")
		return
	}

	n := s.started.Add(1)
	s.logger.Info().Int64("job_number", n).Msg("Spawning imagine job")

	s.jobs.Add(1)
	s.running.Add(1)
	common.SafeGo(s.logger, "imagine-job", func() {
		defer s.jobs.Done()
		defer s.running.Add(-1)

		result := s.runner.Run(s.ctx)
		if !result.State.IsTerminal() {
			s.logger.Warn().
				Str("job_id", result.JobID).
				Str("state", string(result.State)).
				Msg("Imagine job returned without reaching a terminal state")
			return
		}
		s.logger.Debug().
			Str("job_id", result.JobID).
			Str("state", string(result.State)).
			Msg("Imagine job finished")
	})
}

// StartedCount returns the number of jobs spawned since startup
func (s *Service) StartedCount() int64 {
	return s.started.Load()
}

// RunningCount returns the number of jobs that have not returned yet
func (s *Service) RunningCount() int64 {
	return s.running.Load()
}

// Wait blocks until every spawned job has returned or timeout elapses, and
// reports whether all jobs returned. Jobs release their browser on return.
func (s *Service) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
