package imagine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a job stopped
type ErrorKind string

const (
	KindSessionInit         ErrorKind = "SessionInitFailure"
	KindNavigation          ErrorKind = "NavigationFailure"
	KindPromptExtraction    ErrorKind = "PromptExtractionFailure"
	KindSubmission          ErrorKind = "SubmissionFailure"
	KindReplyTimeout        ErrorKind = "ReplyTimeout"
	KindTargetReacquisition ErrorKind = "TargetReacquisitionFailure"
	KindControlNotFound     ErrorKind = "ControlNotFound"
	KindResourceNotFound    ErrorKind = "ResourceNotFound"
	KindDispatch            ErrorKind = "DispatchFailure"
)

// JobError is a terminal job error. Detail carries the criteria or selector
// that was being attempted so the log line is enough to diagnose the failure.
type JobError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func newJobError(kind ErrorKind, detail string, err error) *JobError {
	return &JobError{Kind: kind, Detail: detail, Err: err}
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first JobError in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	return ""
}

// IsKind reports whether err carries a JobError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
