// Package handler turns inbound transport events into survey and relay
// operations. It is the single place where errors are classified and logged.
package handler

import (
	"SurveyBot/metrics"
	"SurveyBot/model"
	"SurveyBot/relay"
	"SurveyBot/store"
	"SurveyBot/survey"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	kindText   = "text"
	kindButton = "button"
)

const (
	outcomeOK                = "ok"
	outcomeUnknownUser       = "unknown_user"
	outcomeInvalidTransition = "invalid_transition"
	outcomeRejected          = "rejected"
	outcomePersistence       = "persistence_failure"
	outcomeDelivery          = "delivery_failure"
	outcomeTimeout           = "timeout"
	outcomeError             = "error"
	outcomePanic             = "panic"
)

const defaultEventTimeout = 15 * time.Second

type Deps struct {
	Engine       *survey.Engine
	Router       *relay.Router
	Access       *store.AccessPolicy
	Metrics      *metrics.Recorder
	Logger       zerolog.Logger
	EventTimeout time.Duration
}

// Dispatcher routes events. Events from one sender are handled one at a time
// in arrival order; different senders are handled concurrently.
type Dispatcher struct {
	engine  *survey.Engine
	router  *relay.Router
	access  *store.AccessPolicy
	metrics *metrics.Recorder
	logger  zerolog.Logger
	timeout time.Duration
	queue   *userQueue
}

func NewDispatcher(deps Deps) (*Dispatcher, error) {
	if deps.Engine == nil || deps.Router == nil || deps.Access == nil {
		return nil, errors.New("dispatcher: missing dependency")
	}
	timeout := deps.EventTimeout
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	return &Dispatcher{
		engine:  deps.Engine,
		router:  deps.Router,
		access:  deps.Access,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		timeout: timeout,
		queue:   newUserQueue(),
	}, nil
}

// OnTextMessage handles a plain text message or a command. The returned
// error has already been logged.
func (d *Dispatcher) OnTextMessage(ctx context.Context, sender model.Sender, text string) error {
	return d.dispatch(ctx, sender, kindText, func(ctx context.Context) error {
		return d.handleText(ctx, sender, text)
	})
}

// OnButtonPress handles a press of an inline button carrying buttonID.
func (d *Dispatcher) OnButtonPress(ctx context.Context, sender model.Sender, buttonID string) error {
	return d.dispatch(ctx, sender, kindButton, func(ctx context.Context) error {
		return d.handleButton(ctx, sender, buttonID)
	})
}

// Wait blocks until every queued event has been handled.
func (d *Dispatcher) Wait() {
	d.queue.Wait()
}

func (d *Dispatcher) handleText(ctx context.Context, sender model.Sender, text string) error {
	isReviewer := d.access.IsReviewer(sender.ID)

	switch command(text) {
	case model.CommandStart:
		if isReviewer {
			return d.router.GreetReviewer(ctx, sender.ID)
		}
		return d.engine.Greet(ctx, sender)
	case model.CommandUsers:
		if !isReviewer {
			return model.ErrNotReviewer
		}
		return d.router.ListUsers(ctx, sender.ID)
	}

	if isReviewer {
		if handled, err := d.router.DeliverReply(ctx, sender.ID, text); handled {
			return err
		}
	}
	return d.engine.SubmitAnswer(ctx, sender, text)
}

func (d *Dispatcher) handleButton(ctx context.Context, sender model.Sender, buttonID string) error {
	switch buttonID {
	case model.ButtonStartSurvey:
		return d.engine.StartSurvey(ctx, sender.ID)
	case model.ButtonNextQuestion:
		return d.engine.Advance(ctx, sender.ID)
	case model.ButtonBackQuestion:
		return d.engine.Retreat(ctx, sender.ID)
	case model.ButtonFinishSurvey:
		return d.engine.Finish(ctx, sender.ID)
	}

	prefix, target, err := model.ParseTargetButton(buttonID)
	if err != nil {
		return err
	}
	if !d.access.IsReviewer(sender.ID) {
		return model.ErrNotReviewer
	}
	switch prefix {
	case model.ButtonViewPrefix:
		return d.router.ShowHistory(ctx, sender.ID, target)
	case model.ButtonReplyPrefix:
		return d.router.RequestReply(ctx, sender.ID, target)
	case model.ButtonAllowPrefix:
		return d.router.GrantRetake(ctx, sender.ID, target)
	}
	return fmt.Errorf("%w: %q", model.ErrUnknownButton, buttonID)
}

// command returns the leading /command of text without any @botname suffix,
// or "" for plain text.
func command(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}

// PostText queues a text message and returns at once. done, if not nil, is
// called with the result once the event was handled.
func (d *Dispatcher) PostText(ctx context.Context, sender model.Sender, text string, done func(error)) {
	d.post(ctx, sender, kindText, func(ctx context.Context) error {
		return d.handleText(ctx, sender, text)
	}, done)
}

// PostButton is the queued counterpart of OnButtonPress.
func (d *Dispatcher) PostButton(ctx context.Context, sender model.Sender, buttonID string, done func(error)) {
	d.post(ctx, sender, kindButton, func(ctx context.Context) error {
		return d.handleButton(ctx, sender, buttonID)
	}, done)
}

func (d *Dispatcher) post(ctx context.Context, sender model.Sender, kind string, handle func(context.Context) error, done func(error)) {
	logger := d.eventLogger(sender, kind)
	d.queue.submit(sender.ID, func() {
		err := d.handle(ctx, logger, kind, handle)
		if done != nil {
			done(err)
		}
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, sender model.Sender, kind string, handle func(context.Context) error) error {
	logger := d.eventLogger(sender, kind)

	var result error
	err := d.queue.Do(ctx, sender.ID, func() {
		result = d.handle(ctx, logger, kind, handle)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("caller gave up waiting for event")
		return err
	}
	return result
}

func (d *Dispatcher) eventLogger(sender model.Sender, kind string) zerolog.Logger {
	return d.logger.With().
		Str("event_id", uuid.NewString()).
		Int64("user_id", sender.ID).
		Str("kind", kind).
		Logger()
}

// handle runs one event under its own deadline. The deadline starts when the
// event leaves the queue, and the caller's cancellation does not abort it.
func (d *Dispatcher) handle(ctx context.Context, logger zerolog.Logger, kind string, handle func(context.Context) error) error {
	start := time.Now()
	eventCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	logger = logger.With().Int("busy_users", d.queue.Len()).Logger()
	eventCtx = logger.WithContext(eventCtx)

	err := d.run(eventCtx, handle)
	outcome := d.report(logger, err)
	d.metrics.ObserveEvent(kind, outcome, time.Since(start))
	d.metrics.SetActiveSessions(d.engine.ActiveSessions())
	return err
}

func (d *Dispatcher) run(ctx context.Context, handle func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return handle(ctx)
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// report logs err at the level its class calls for and returns the outcome
// label for metrics.
func (d *Dispatcher) report(logger zerolog.Logger, err error) string {
	if err == nil {
		logger.Debug().Msg("event handled")
		return outcomeOK
	}

	var (
		perr     *model.PersistenceError
		derr     *model.DeliveryError
		panicked *panicError
	)
	switch {
	case errors.As(err, &panicked):
		logger.Error().Str("panic", fmt.Sprint(panicked.value)).Bytes("stack", panicked.stack).Msg("event handler panicked")
		return outcomePanic
	case errors.As(err, &perr):
		logger.Error().Err(err).Int64("log_user_id", perr.UserID).Msg("conversation log write failed, entry is missing from history")
		if errors.As(err, &derr) {
			logger.Warn().Int64("recipient", derr.Recipient).Msg("message not delivered")
		}
		return outcomePersistence
	case errors.As(err, &derr):
		logger.Warn().Err(err).Int64("recipient", derr.Recipient).Msg("message not delivered")
		return outcomeDelivery
	case errors.Is(err, model.ErrNoSession):
		logger.Debug().Msg("no active session")
		return outcomeUnknownUser
	case model.IsInvalidTransition(err):
		logger.Debug().Err(err).Msg("transition refused")
		return outcomeInvalidTransition
	case errors.Is(err, model.ErrNotReviewer), errors.Is(err, model.ErrUnknownButton):
		logger.Warn().Err(err).Msg("event rejected")
		return outcomeRejected
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error().Err(err).Msg("event timed out")
		return outcomeTimeout
	default:
		logger.Error().Err(err).Msg("event failed")
		return outcomeError
	}
}
