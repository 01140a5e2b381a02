package imagine

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
	"github.com/ternarybob/mjrelay/internal/models"
)

// ActionTrigger activates a labelled control on a matched message.
// Success is not verified; the settle wait is the only postcondition.
type ActionTrigger struct {
	label  string
	opts   Options
	clock  clock
	logger arbor.ILogger
}

func newActionTrigger(opts Options, clk clock, logger arbor.ILogger) *ActionTrigger {
	return &ActionTrigger{label: opts.ActionLabel, opts: opts, clock: clk, logger: logger}
}

// Trigger finds the control on msg, activates it and waits ActionSettle
func (t *ActionTrigger) Trigger(ctx context.Context, view interfaces.ConversationView, msg models.Message) error {
	control, err := view.FindControl(ctx, msg, t.label)
	if err != nil {
		return newJobError(KindControlNotFound, fmt.Sprintf("look up control %q on message %s", t.label, msg.ID), err)
	}
	if control == nil {
		// Usually the render is not finished yet or the UI changed
		return newJobError(KindControlNotFound, fmt.Sprintf("control %q not present on message %s", t.label, msg.ID), nil)
	}

	if err := view.Activate(ctx, *control); err != nil {
		return newJobError(KindControlNotFound, fmt.Sprintf("activate control %q (%s)", t.label, control.Selector), err)
	}

	t.logger.Info().
		Str("control", t.label).
		Str("message_id", msg.ID).
		Dur("settle", t.opts.ActionSettle).
		Msg("Control activated, waiting for action to settle")

	if err := t.clock.sleep(ctx, t.opts.ActionSettle); err != nil {
		return newJobError(KindControlNotFound, "wait for action to settle", err)
	}
	return nil
}
