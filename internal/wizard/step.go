package wizard

import (
	"errors"
	"fmt"
)

// Step is a wizard stage.
type Step int

const (
	StepIntake Step = iota + 1
	StepReview
	StepGenerating
	StepResult
)

var (
	ErrInvalidStep       = errors.New("invalid step")
	ErrInvalidTransition = errors.New("invalid step transition")
)

func (s Step) Valid() bool {
	return s >= StepIntake && s <= StepResult
}

func (s Step) String() string {
	switch s {
	case StepIntake:
		return "intake"
	case StepReview:
		return "review"
	case StepGenerating:
		return "generating"
	case StepResult:
		return "result"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// transitions lists the allowed moves besides staying put and going back to
// intake, which are always allowed.
var transitions = map[Step][]Step{
	StepIntake:     {StepReview},
	StepReview:     {StepGenerating},
	StepGenerating: {StepResult, StepReview},
	StepResult:     {StepGenerating, StepReview},
}

// CanTransition reports whether the wizard may move from one step to another.
func CanTransition(from, to Step) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to || to == StepIntake {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError carries the rejected move.
type TransitionError struct {
	From, To Step
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
