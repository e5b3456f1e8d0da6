package wizard

import "time"

// FailureKind classifies the last error of a session.
type FailureKind string

const (
	IntakeFailure        FailureKind = "intake_failure"
	GenerationFailure    FailureKind = "generation_failure"
	SubmissionFailure    FailureKind = "submission_failure"
	PollTransportFailure FailureKind = "poll_transport_failure"
	JobFailure           FailureKind = "job_failure"
)

// Failure is the user-visible error of a wizard operation. It is stored on
// the session, never retried.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
	Err     error       `json:"-"`
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

func newFailure(kind FailureKind, message string, err error, at time.Time) *Failure {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Failure{Kind: kind, Message: message, At: at, Err: err}
}
