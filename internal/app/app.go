package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/common"
	"github.com/ternarybob/mjrelay/internal/handlers"
	"github.com/ternarybob/mjrelay/internal/services/discord"
	"github.com/ternarybob/mjrelay/internal/services/imagine"
	"github.com/ternarybob/mjrelay/internal/services/scheduler"
)

// jobDrainTimeout bounds how long Close waits for cancelled jobs to release
// their browsers
const jobDrainTimeout = 15 * time.Second

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Job execution
	SessionProvider *discord.Provider
	Dispatcher      *imagine.Dispatcher
	Runner          *imagine.Runner
	ImagineService  *imagine.Service
	Scheduler       *scheduler.Service

	// HTTP handlers
	TriggerHandler *handlers.TriggerHandler
}

// New wires the application. Jobs derive their context from the app, so
// Close is the only way running jobs (and their browsers) are stopped.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts, err := imagine.OptionsFromConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve imagine options: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:    config,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	a.SessionProvider = discord.NewProvider(discord.ProviderConfigFromCommon(config), logger)
	a.Dispatcher = imagine.NewDispatcher(config.Sink.URL, common.ParseDurationOr(config.Sink.Timeout, 30*time.Second), logger)
	a.Runner = imagine.NewRunner(opts, a.SessionProvider, a.Dispatcher, logger)
	a.ImagineService = imagine.NewService(ctx, a.Runner, logger)

	a.Scheduler = scheduler.NewService(a.ImagineService, logger)
	if err := a.Scheduler.Start(config.Scheduler.Schedule); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	a.TriggerHandler = handlers.NewTriggerHandler(
		a.ImagineService,
		common.ParseDurationOr(config.Trigger.RateLimit, 0),
		config.Trigger.Burst,
		logger,
	)

	logger.Info().
		Str("conversation", opts.ConversationURL).
		Str("author_marker", opts.AuthorMarker).
		Str("action_label", opts.ActionLabel).
		Dur("reply_timeout", opts.ReplyTimeout).
		Dur("render_wait", opts.RenderWait).
		Msg("Application initialized")

	return a, nil
}

// Close stops the scheduler, cancels running jobs and waits up to
// jobDrainTimeout for them to close their sessions
func (a *App) Close() error {
	return a.close(jobDrainTimeout)
}

func (a *App) close(drainTimeout time.Duration) error {
	a.Scheduler.Stop()
	a.cancelCtx()

	if !a.ImagineService.Wait(drainTimeout) {
		a.Logger.Warn().
			Int64("jobs_running", a.ImagineService.RunningCount()).
			Dur("timeout", drainTimeout).
			Msg("Imagine jobs still running after shutdown timeout")
	}

	event := a.Logger.Info().
		Int64("jobs_started", a.ImagineService.StartedCount()).
		Int64("jobs_running", a.ImagineService.RunningCount()).
		Int64("goroutines_active", common.GetActiveGoroutineCount()).
		Bool("scheduler_running", a.Scheduler.IsRunning())
	if last := a.Scheduler.LastRun(); !last.IsZero() {
		event = event.Str("scheduler_last_run", last.Format(time.RFC3339))
	}
	event.Msg("Application closed")
	return nil
}
