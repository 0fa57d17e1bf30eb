package model

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession         = errors.New("no active survey session")
	ErrAwaitingAnswer    = errors.New("current question has not been answered")
	ErrNotAwaitingAnswer = errors.New("answer already captured, waiting for navigation")
	ErrFirstQuestion     = errors.New("already at the first question")
	ErrSurveyCompleted   = errors.New("survey already completed")
	ErrNotReviewer       = errors.New("sender is not a reviewer")
	ErrUnknownButton     = errors.New("unknown button")
)

// IsInvalidTransition reports whether err is a navigation attempt the survey
// state machine refused.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrAwaitingAnswer) ||
		errors.Is(err, ErrNotAwaitingAnswer) ||
		errors.Is(err, ErrFirstQuestion) ||
		errors.Is(err, ErrSurveyCompleted)
}

// PersistenceError marks a conversation log write that failed. The in-memory
// flow has already moved on when this is returned.
type PersistenceError struct {
	UserID int64
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist message for user %d: %v", e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError marks a send to a recipient that failed.
type DeliveryError struct {
	Recipient int64
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver message to %d: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
