// -----------------------------------------------------------------------
// Imagine Job - in-memory state of a single generate/upscale/extract run
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState is a step in the imagine job state machine
type JobState string

const (
	JobStateInit            JobState = "INIT"
	JobStateSessionReady    JobState = "SESSION_READY"
	JobStateAwaitUI         JobState = "AWAIT_UI"
	JobStateSubmitted       JobState = "SUBMITTED"
	JobStateDetectingReply  JobState = "DETECTING_REPLY"
	JobStateRenderWait      JobState = "RENDER_WAIT"
	JobStateReacquiring     JobState = "REACQUIRING"
	JobStateActionTriggered JobState = "ACTION_TRIGGERED"
	JobStateExtracting      JobState = "EXTRACTING"
	JobStateDispatching     JobState = "DISPATCHING"
	JobStateDone            JobState = "DONE"
	JobStateFailed          JobState = "FAILED"
)

// IsTerminal returns true for DONE and FAILED
func (s JobState) IsTerminal() bool {
	return s == JobStateDone || s == JobStateFailed
}

// ImagineJob is owned by exactly one runner and discarded when the run ends.
// The ID is only used to correlate log lines; it is never returned to callers.
type ImagineJob struct {
	ID             string
	Prompt         string
	CleanedPrompt  string
	Deadline       time.Time
	State          JobState
	MatchedMessage *Message
	ImageURL       string
	StartedAt      time.Time
}

// NewImagineJob creates a job in the INIT state
func NewImagineJob(now time.Time) *ImagineJob {
	return &ImagineJob{
		ID:        "imagine_" + uuid.New().String(),
		State:     JobStateInit,
		StartedAt: now,
	}
}

// Criteria returns the detection criteria for this job.
// CleanedPrompt is used verbatim; it is never re-derived mid-job.
func (j *ImagineJob) Criteria(authorMarker string) DetectionCriteria {
	return DetectionCriteria{
		PromptFragment: j.CleanedPrompt,
		AuthorMarker:   authorMarker,
	}
}

// ImageResult is the payload posted to the downstream collector
type ImageResult struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}
