package imagine

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
	"github.com/ternarybob/mjrelay/internal/models"
)

// FindLatestMatch scans messages from most recent to oldest and returns the
// first one matching criteria. Later candidates are never considered.
func FindLatestMatch(messages []models.Message, criteria models.DetectionCriteria) *models.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if criteria.Matches(messages[i].Text) {
			msg := messages[i]
			return &msg
		}
	}
	return nil
}

// Detector polls the conversation until the worker's reply shows up.
//
// There is no correlation id from the worker, so matching is content based:
// an unrelated message sharing the prompt text and author marker will match.
type Detector struct {
	pollInterval time.Duration
	clock        clock
	logger       arbor.ILogger
}

func newDetector(opts Options, clk clock, logger arbor.ILogger) *Detector {
	return &Detector{pollInterval: opts.PollInterval, clock: clk, logger: logger}
}

// Detect polls until a message matches criteria (MATCHED) or deadline passes
// (TIMED_OUT). No scan is started once the deadline has been reached.
func (d *Detector) Detect(ctx context.Context, view interfaces.ConversationView, criteria models.DetectionCriteria, deadline time.Time) (*models.Message, error) {
	polls := 0
	for {
		if !d.clock.now().Before(deadline) {
			return nil, newJobError(KindReplyTimeout,
				fmt.Sprintf("no message containing %q and %q after %d polls", criteria.PromptFragment, criteria.AuthorMarker, polls), nil)
		}
		polls++

		messages, err := view.ListMessages(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Int("poll", polls).Msg("Failed to list messages, retrying on next poll")
		} else if msg := FindLatestMatch(messages, criteria); msg != nil {
			d.logger.Info().
				Str("message_id", msg.ID).
				Int("poll", polls).
				Msg("Reply found")
			return msg, nil
		}

		d.logger.Debug().
			Int("poll", polls).
			Dur("remaining", deadline.Sub(d.clock.now())).
			Msg("Waiting for reply")

		if err := d.clock.sleep(ctx, d.pollInterval); err != nil {
			return nil, newJobError(KindReplyTimeout, "reply polling interrupted", err)
		}
	}
}

// Reacquire performs a single most-recent-first scan. It is used after the
// render wait because the previously matched element may have been replaced.
func (d *Detector) Reacquire(ctx context.Context, view interfaces.ConversationView, criteria models.DetectionCriteria) (*models.Message, error) {
	messages, err := view.ListMessages(ctx)
	if err != nil {
		return nil, newJobError(KindTargetReacquisition, "list messages", err)
	}

	msg := FindLatestMatch(messages, criteria)
	if msg == nil {
		return nil, newJobError(KindTargetReacquisition,
			fmt.Sprintf("no message containing %q and %q among %d messages", criteria.PromptFragment, criteria.AuthorMarker, len(messages)), nil)
	}
	return msg, nil
}
