package imagine

import (
	"context"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
)

var bracketRemover = strings.NewReplacer("[", "", "]", "")

// PromptCleaner turns a raw conversation message into the prompt to submit.
// The marker pattern is compiled once and shared by every job.
type PromptCleaner struct {
	marker *regexp.Regexp // nil when no marker is configured
}

// NewPromptCleaner compiles a case-insensitive matcher for marker and any
// whitespace that follows it
func NewPromptCleaner(marker string) PromptCleaner {
	if marker == "" {
		return PromptCleaner{}
	}
	return PromptCleaner{marker: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker) + `\s*`)}
}

// Clean strips the first occurrence of the marker, removes square brackets
// and trims the result. The marker is removed in a single pass, so a nested
// marker survives.
func (c PromptCleaner) Clean(raw string) string {
	cleaned := raw
	if c.marker != nil {
		if loc := c.marker.FindStringIndex(cleaned); loc != nil {
			cleaned = cleaned[:loc[0]] + cleaned[loc[1]:]
		}
	}
	return strings.TrimSpace(bracketRemover.Replace(cleaned))
}

// Submitter types the generation command into the conversation input
type Submitter struct {
	command string
	opts    Options
	clock   clock
	logger  arbor.ILogger
}

func newSubmitter(opts Options, clk clock, logger arbor.ILogger) *Submitter {
	return &Submitter{opts: opts, command: opts.Command, clock: clk, logger: logger}
}

// Submit focuses the input, invokes the command, confirms the top suggestion
// and sends the cleaned prompt. Any failing step aborts with SubmissionFailure.
func (s *Submitter) Submit(ctx context.Context, view interfaces.ConversationView, cleanedPrompt string) error {
	if err := view.FocusInput(ctx); err != nil {
		return newJobError(KindSubmission, "focus conversation input", err)
	}
	if err := view.SubmitText(ctx, s.command); err != nil {
		return newJobError(KindSubmission, "type command "+s.command, err)
	}

	// Give the command suggestion popup time to appear
	if err := s.clock.sleep(ctx, s.opts.SuggestionSettle); err != nil {
		return newJobError(KindSubmission, "wait for command suggestions", err)
	}

	if err := view.PressEnter(ctx); err != nil {
		return newJobError(KindSubmission, "confirm command suggestion", err)
	}
	if err := view.SubmitText(ctx, " "+cleanedPrompt); err != nil {
		return newJobError(KindSubmission, "type prompt", err)
	}
	if err := view.PressEnter(ctx); err != nil {
		return newJobError(KindSubmission, "send prompt", err)
	}

	s.logger.Info().
		Str("command", s.command).
		Str("prompt", cleanedPrompt).
		Msg("Prompt sent")

	return nil
}
