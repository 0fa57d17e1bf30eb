package model

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"
)

// Session states
const (
	StateAwaitingAnswer     = "awaiting_answer"
	StateAwaitingNavigation = "awaiting_navigation"
	StateCompleted          = "completed"
)

// Session events
const (
	EventAnswer  = "answer"
	EventAdvance = "advance"
	EventRetreat = "retreat"
	EventFinish  = "finish"
)

type Answer struct {
	Question string
	Text     string
}

// Session is the volatile survey progress of one user.
type Session struct {
	UserID        int64
	QuestionIndex int
	Answers       []Answer
	StartedAt     time.Time

	machine *fsm.FSM
}

func NewSession(userID int64) *Session {
	return &Session{
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		machine: fsm.NewFSM(
			StateAwaitingAnswer,
			fsm.Events{
				{Name: EventAnswer, Src: []string{StateAwaitingAnswer}, Dst: StateAwaitingNavigation},
				{Name: EventAdvance, Src: []string{StateAwaitingNavigation}, Dst: StateAwaitingAnswer},
				{Name: EventRetreat, Src: []string{StateAwaitingAnswer, StateAwaitingNavigation}, Dst: StateAwaitingAnswer},
				{Name: EventFinish, Src: []string{StateAwaitingAnswer, StateAwaitingNavigation}, Dst: StateCompleted},
			},
			fsm.Callbacks{},
		),
	}
}

func (s *Session) State() string {
	return s.machine.Current()
}

func (s *Session) AwaitingAnswer() bool {
	return s.machine.Is(StateAwaitingAnswer)
}

func (s *Session) Can(event string) bool {
	return s.machine.Can(event)
}

// Fire moves the machine. Re-entering the same state (retreat while already
// awaiting an answer) is not an error.
func (s *Session) Fire(ctx context.Context, event string) error {
	err := s.machine.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

// SetAnswer stores text in slot index, growing the slice with empty slots if
// earlier questions were skipped.
func (s *Session) SetAnswer(index int, question, text string) {
	for len(s.Answers) <= index {
		s.Answers = append(s.Answers, Answer{})
	}
	s.Answers[index] = Answer{Question: question, Text: text}
}

// SessionView is a read-only copy of a Session.
type SessionView struct {
	UserID         int64
	QuestionIndex  int
	Answers        []Answer
	AwaitingAnswer bool
	State          string
}

func (s *Session) View() SessionView {
	answers := make([]Answer, len(s.Answers))
	copy(answers, s.Answers)
	return SessionView{
		UserID:         s.UserID,
		QuestionIndex:  s.QuestionIndex,
		Answers:        answers,
		AwaitingAnswer: s.AwaitingAnswer(),
		State:          s.State(),
	}
}
