// -----------------------------------------------------------------------
// Imagine Runner - submit, detect, upscale, detect, extract, dispatch
// -----------------------------------------------------------------------

package imagine

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
	"github.com/ternarybob/mjrelay/internal/models"
)

// Result is the outcome of one run. DispatchErr may be set on a DONE job:
// delivery happens after the primary work and does not undo it.
type Result struct {
	JobID       string
	State       models.JobState
	FailedIn    models.JobState // State the job was in when it failed
	Prompt      string
	ImageURL    string
	Err         error
	DispatchErr error
	Duration    time.Duration
}

// Runner executes jobs as a single linear attempt. Each run owns its session
// exclusively and always releases it.
type Runner struct {
	opts     Options
	provider interfaces.SessionProvider
	sink     interfaces.ResultSink
	cleaner  PromptCleaner
	clock    clock
	logger   arbor.ILogger
}

// NewRunner creates a runner
func NewRunner(opts Options, provider interfaces.SessionProvider, sink interfaces.ResultSink, logger arbor.ILogger) *Runner {
	return &Runner{
		opts:     opts,
		provider: provider,
		sink:     sink,
		cleaner:  NewPromptCleaner(opts.CommandMarker),
		clock:    realClock(),
		logger:   logger,
	}
}

// Run executes one job to DONE or FAILED
func (r *Runner) Run(ctx context.Context) Result {
	job := models.NewImagineJob(r.clock.now())
	logger := r.logger.WithCorrelationId(job.ID)
	result := Result{JobID: job.ID}

	logger.Info().Str("url", r.opts.ConversationURL).Msg("Imagine job started")

	session, err := r.provider.NewSession(ctx)
	if err != nil {
		return r.fail(job, &result, logger, newJobError(KindSessionInit, "start browser session", err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release session")
			return
		}
		logger.Debug().Msg("Session released")
	}()
	r.transition(job, logger, models.JobStateSessionReady)

	r.transition(job, logger, models.JobStateAwaitUI)
	if err := session.Open(ctx, r.opts.ConversationURL); err != nil {
		return r.fail(job, &result, logger, newJobError(KindNavigation, "open "+r.opts.ConversationURL, err))
	}

	// Prompt is derived exactly once; every later match uses CleanedPrompt verbatim
	prompt, err := r.readPrompt(ctx, session, logger)
	if err != nil {
		return r.fail(job, &result, logger, err)
	}
	job.Prompt = prompt
	job.CleanedPrompt = r.cleaner.Clean(prompt)
	result.Prompt = job.CleanedPrompt
	if job.CleanedPrompt == "" {
		return r.fail(job, &result, logger, newJobError(KindPromptExtraction, "prompt is empty after cleaning: "+prompt, nil))
	}
	logger.Info().Str("prompt", job.CleanedPrompt).Msg("Processing prompt")

	if err := newSubmitter(r.opts, r.clock, logger).Submit(ctx, session, job.CleanedPrompt); err != nil {
		return r.fail(job, &result, logger, err)
	}
	job.Deadline = r.clock.now().Add(r.opts.ReplyTimeout)
	r.transition(job, logger, models.JobStateSubmitted)

	criteria := job.Criteria(r.opts.AuthorMarker)
	detector := newDetector(r.opts, r.clock, logger)

	r.transition(job, logger, models.JobStateDetectingReply)
	msg, err := detector.Detect(ctx, session, criteria, job.Deadline)
	if err != nil {
		return r.fail(job, &result, logger, err)
	}
	job.MatchedMessage = msg

	r.transition(job, logger, models.JobStateRenderWait)
	logger.Info().Dur("render_wait", r.opts.RenderWait).Msg("Waiting for render to complete")
	if err := r.clock.sleep(ctx, r.opts.RenderWait); err != nil {
		return r.fail(job, &result, logger, newJobError(KindTargetReacquisition, "render wait interrupted", err))
	}

	// The element captured before the wait may be stale, so scan again
	r.transition(job, logger, models.JobStateReacquiring)
	msg, err = detector.Reacquire(ctx, session, criteria)
	if err != nil {
		return r.fail(job, &result, logger, err)
	}
	if !strings.Contains(strings.ToLower(msg.Text), strings.ToLower(job.CleanedPrompt)) {
		return r.fail(job, &result, logger, newJobError(KindTargetReacquisition, "reacquired message "+msg.ID+" no longer contains the prompt", nil))
	}
	job.MatchedMessage = msg

	r.transition(job, logger, models.JobStateActionTriggered)
	if err := newActionTrigger(r.opts, r.clock, logger).Trigger(ctx, session, *msg); err != nil {
		return r.fail(job, &result, logger, err)
	}

	r.transition(job, logger, models.JobStateExtracting)
	imageURL, err := newExtractor(r.opts, logger).Extract(ctx, session)
	if err != nil {
		return r.fail(job, &result, logger, err)
	}
	job.ImageURL = imageURL
	result.ImageURL = imageURL

	r.transition(job, logger, models.JobStateDispatching)
	if err := r.sink.Dispatch(ctx, models.ImageResult{ImageURL: job.ImageURL, Prompt: job.CleanedPrompt}); err != nil {
		result.DispatchErr = err
		logger.Error().
			Err(err).
			Str("kind", string(KindOf(err))).
			Str("image_url", job.ImageURL).
			Msg("Failed to deliver result")
	}

	r.transition(job, logger, models.JobStateDone)
	result.State = job.State
	result.Duration = r.clock.now().Sub(job.StartedAt)

	logger.Info().
		Str("image_url", job.ImageURL).
		Bool("delivered", result.DispatchErr == nil).
		Dur("duration", result.Duration).
		Msg("Imagine job completed")

	return result
}

// readPrompt reads the body text of the most recent message, waiting up to
// MessageWait for the first message to render
func (r *Runner) readPrompt(ctx context.Context, view interfaces.ConversationView, logger arbor.ILogger) (string, error) {
	deadline := r.clock.now().Add(r.opts.MessageWait)
	for {
		messages, err := view.ListMessages(ctx)
		if err != nil {
			return "", newJobError(KindPromptExtraction, "list messages", err)
		}
		if len(messages) > 0 {
			latest := messages[len(messages)-1]
			if strings.TrimSpace(latest.Content) == "" {
				return "", newJobError(KindPromptExtraction, "latest message "+latest.ID+" has no body text", nil)
			}
			return latest.Content, nil
		}

		if !r.clock.now().Before(deadline) {
			return "", newJobError(KindPromptExtraction, "no messages rendered", nil)
		}
		logger.Debug().Msg("No messages rendered yet, waiting")
		if err := r.clock.sleep(ctx, r.opts.PollInterval); err != nil {
			return "", newJobError(KindPromptExtraction, "waiting for messages interrupted", err)
		}
	}
}

func (r *Runner) transition(job *models.ImagineJob, logger arbor.ILogger, next models.JobState) {
	logger.Debug().
		Str("from", string(job.State)).
		Str("to", string(next)).
		Msg("Job state transition")
	job.State = next
}

func (r *Runner) fail(job *models.ImagineJob, result *Result, logger arbor.ILogger, err error) Result {
	result.FailedIn = job.State
	result.Err = err
	job.State = models.JobStateFailed
	result.State = job.State
	result.Duration = r.clock.now().Sub(job.StartedAt)

	logger.Error().
		Err(err).
		Str("kind", string(KindOf(err))).
		Str("state", string(result.FailedIn)).
		Str("prompt", job.CleanedPrompt).
		Msg("Imagine job failed")

	return *result
}
