// Package survey walks a user through the fixed question sequence.
//
// A session moves between two sub-states per question: awaiting an answer,
// and awaiting a navigation decision once the answer was captured. Advance
// needs a captured answer, Retreat does not, and Finish is accepted from any
// state without checking that every question was answered.
package survey

import (
	"SurveyBot/metrics"
	"SurveyBot/model"
	"SurveyBot/repo"
	"SurveyBot/store"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// AnswerNotifier receives every captured answer.
type AnswerNotifier interface {
	FanOutAnswer(ctx context.Context, sender model.Sender, question, answer string) error
}

type Deps struct {
	Questionnaire model.Questionnaire
	Sessions      *store.SessionTable
	Access        *store.AccessPolicy
	Log           repo.ConversationLog
	Messenger     model.Messenger
	Notifier      AnswerNotifier
	// ContactURL backs the "contact the reviewer" button shown after Finish.
	ContactURL string
	Metrics    *metrics.Recorder
}

type Engine struct {
	questions  []string
	texts      model.Messages
	sessions   *store.SessionTable
	access     *store.AccessPolicy
	log        repo.ConversationLog
	messenger  model.Messenger
	notifier   AnswerNotifier
	contactURL string
	metrics    *metrics.Recorder
}

func NewEngine(deps Deps) (*Engine, error) {
	if err := deps.Questionnaire.Validate(); err != nil {
		return nil, err
	}
	if deps.Sessions == nil || deps.Access == nil || deps.Log == nil || deps.Messenger == nil || deps.Notifier == nil {
		return nil, errors.New("survey engine: missing dependency")
	}
	if deps.ContactURL == "" {
		return nil, errors.New("survey engine: missing reviewer contact URL")
	}
	questions := make([]string, deps.Questionnaire.Len())
	copy(questions, deps.Questionnaire.Questions)

	return &Engine{
		questions:  questions,
		texts:      deps.Questionnaire.Messages,
		sessions:   deps.Sessions,
		access:     deps.Access,
		log:        deps.Log,
		messenger:  deps.Messenger,
		notifier:   deps.Notifier,
		contactURL: deps.ContactURL,
		metrics:    deps.Metrics,
	}, nil
}

// Greet answers /start: the greeting with a start button, or a notice when
// the user already completed the survey.
func (e *Engine) Greet(ctx context.Context, sender model.Sender) error {
	if !e.access.CanStart(sender.ID) {
		if err := e.messenger.SendText(ctx, sender.ID, e.texts.AlreadyCompleted); err != nil {
			return errors.Join(model.ErrSurveyCompleted, &model.DeliveryError{Recipient: sender.ID, Err: err})
		}
		return model.ErrSurveyCompleted
	}

	var errs []error
	start := model.Row(model.Button{Text: e.texts.StartButton, Data: model.ButtonStartSurvey})
	if err := e.messenger.SendText(ctx, sender.ID, e.texts.Greeting, model.WithButtons(start)); err != nil {
		errs = append(errs, &model.DeliveryError{Recipient: sender.ID, Err: err})
	}
	errs = append(errs, e.persist(ctx, sender.ID, model.CommandStart))
	return errors.Join(errs...)
}

// StartSurvey creates (or restarts) the user's session at the first question.
func (e *Engine) StartSurvey(ctx context.Context, userID int64) error {
	if !e.access.CanStart(userID) {
		if err := e.messenger.SendText(ctx, userID, e.texts.RetakeRequired); err != nil {
			return errors.Join(model.ErrSurveyCompleted, &model.DeliveryError{Recipient: userID, Err: err})
		}
		return model.ErrSurveyCompleted
	}

	e.sessions.Put(model.NewSession(userID))
	e.metrics.SurveyStarted()
	e.metrics.SetActiveSessions(e.sessions.Len())

	if err := e.messenger.SendText(ctx, userID, e.questions[0]); err != nil {
		return &model.DeliveryError{Recipient: userID, Err: err}
	}
	return nil
}

// SubmitAnswer captures text as the answer to the current question. It is
// ignored unless the session is awaiting an answer.
func (e *Engine) SubmitAnswer(ctx context.Context, sender model.Sender, text string) error {
	var (
		index    int
		question string
	)
	err := e.sessions.With(sender.ID, func(s *model.Session) error {
		if !s.AwaitingAnswer() {
			return model.ErrNotAwaitingAnswer
		}
		index = s.QuestionIndex
		question = e.questions[index]
		if err := s.Fire(ctx, model.EventAnswer); err != nil {
			return fmt.Errorf("capture answer: %w", err)
		}
		s.SetAnswer(index, question, text)
		return nil
	})
	if errors.Is(err, model.ErrNoSession) {
		return e.unknownUser(ctx, sender.ID)
	}
	if err != nil {
		return err
	}
	e.metrics.AnswerCaptured()

	errs := []error{e.persist(ctx, sender.ID, text)}
	if err := e.notifier.FanOutAnswer(ctx, sender, question, text); err != nil {
		errs = append(errs, err)
	}
	if err := e.messenger.SendText(ctx, sender.ID, question, model.WithButtons(e.navigation(index))); err != nil {
		errs = append(errs, &model.DeliveryError{Recipient: sender.ID, Err: err})
	}
	return errors.Join(errs...)
}

// Advance moves to the next question once the current one is answered. On
// the last question it does nothing; Finish is the only way forward.
func (e *Engine) Advance(ctx context.Context, userID int64) error {
	var next string
	err := e.sessions.With(userID, func(s *model.Session) error {
		if s.AwaitingAnswer() {
			return model.ErrAwaitingAnswer
		}
		if s.QuestionIndex+1 >= len(e.questions) {
			return nil
		}
		if err := s.Fire(ctx, model.EventAdvance); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		s.QuestionIndex++
		next = e.questions[s.QuestionIndex]
		return nil
	})
	switch {
	case errors.Is(err, model.ErrNoSession):
		return e.unknownUser(ctx, userID)
	case errors.Is(err, model.ErrAwaitingAnswer):
		if notifyErr := e.messenger.Notify(ctx, userID, e.texts.AnswerFirst); notifyErr != nil {
			return errors.Join(err, &model.DeliveryError{Recipient: userID, Err: notifyErr})
		}
		return err
	case err != nil:
		return err
	case next == "":
		return nil
	}
	return e.show(ctx, userID, next)
}

// Retreat moves back one question, whether or not the current one was
// answered. At the first question it does nothing.
func (e *Engine) Retreat(ctx context.Context, userID int64) error {
	var previous string
	err := e.sessions.With(userID, func(s *model.Session) error {
		if s.QuestionIndex == 0 {
			return model.ErrFirstQuestion
		}
		if err := s.Fire(ctx, model.EventRetreat); err != nil {
			return fmt.Errorf("retreat: %w", err)
		}
		s.QuestionIndex--
		previous = e.questions[s.QuestionIndex]
		return nil
	})
	if errors.Is(err, model.ErrNoSession) {
		return e.unknownUser(ctx, userID)
	}
	if err != nil {
		return err
	}
	return e.show(ctx, userID, previous)
}

// Finish closes the session and records the user as completed.
func (e *Engine) Finish(ctx context.Context, userID int64) error {
	s, ok := e.sessions.Remove(userID)
	if !ok {
		return e.unknownUser(ctx, userID)
	}
	if err := s.Fire(ctx, model.EventFinish); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("state", s.State()).Msg("finish from unexpected state")
	}
	e.access.MarkCompleted(userID)
	e.metrics.SurveyCompleted()
	e.metrics.SetActiveSessions(e.sessions.Len())

	var errs []error
	if err := e.messenger.EditDisplayedText(ctx, userID, e.texts.ThankYou, nil); err != nil {
		errs = append(errs, &model.DeliveryError{Recipient: userID, Err: err})
	}
	contact := model.Row(model.Button{Text: e.texts.ContactButton, URL: e.contactURL})
	if err := e.messenger.SendText(ctx, userID, e.texts.ContactPrompt, model.WithButtons(contact)); err != nil {
		errs = append(errs, &model.DeliveryError{Recipient: userID, Err: err})
	}
	return errors.Join(errs...)
}

// Snapshot returns a copy of the user's session.
func (e *Engine) Snapshot(userID int64) (model.SessionView, bool) {
	return e.sessions.Get(userID)
}

func (e *Engine) ActiveSessions() int {
	return e.sessions.Len()
}

func (e *Engine) QuestionCount() int {
	return len(e.questions)
}

// navigation builds the buttons shown after an answer to question index.
func (e *Engine) navigation(index int) model.Keyboard {
	var row []model.Button
	if index > 0 {
		row = append(row, model.Button{Text: e.texts.BackButton, Data: model.ButtonBackQuestion})
	}
	if index+1 < len(e.questions) {
		row = append(row, model.Button{Text: e.texts.NextButton, Data: model.ButtonNextQuestion})
	} else {
		row = append(row, model.Button{Text: e.texts.FinishButton, Data: model.ButtonFinishSurvey})
	}
	return model.Row(row...)
}

func (e *Engine) show(ctx context.Context, userID int64, question string) error {
	if err := e.messenger.EditDisplayedText(ctx, userID, question, nil); err != nil {
		return &model.DeliveryError{Recipient: userID, Err: err}
	}
	return nil
}

func (e *Engine) unknownUser(ctx context.Context, userID int64) error {
	if err := e.messenger.Notify(ctx, userID, e.texts.RestartPrompt); err != nil {
		return errors.Join(model.ErrNoSession, &model.DeliveryError{Recipient: userID, Err: err})
	}
	return model.ErrNoSession
}

// persist appends to the conversation log. A failure is returned as a
// *model.PersistenceError for the operator; the caller keeps going.
func (e *Engine) persist(ctx context.Context, userID int64, text string) error {
	if _, err := e.log.Append(ctx, userID, text, false); err != nil {
		e.metrics.PersistenceFailure()
		return &model.PersistenceError{UserID: userID, Err: err}
	}
	return nil
}
