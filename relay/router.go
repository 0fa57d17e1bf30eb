// Package relay connects users and reviewers: answer notices fan out to every
// reviewer, and a reviewer can answer a user through a one-shot reply slot.
package relay

import (
	"SurveyBot/metrics"
	"SurveyBot/model"
	"SurveyBot/repo"
	"SurveyBot/store"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog"
)

// pickerPageSize caps the user buttons per picker message.
const pickerPageSize = 50

type Deps struct {
	Access    *store.AccessPolicy
	Pending   *store.PendingReplies
	Log       repo.ConversationLog
	Messenger model.Messenger
	Texts     model.Messages
	Metrics   *metrics.Recorder
}

type Router struct {
	access    *store.AccessPolicy
	pending   *store.PendingReplies
	log       repo.ConversationLog
	messenger model.Messenger
	texts     model.Messages
	metrics   *metrics.Recorder
}

func NewRouter(deps Deps) (*Router, error) {
	if deps.Access == nil || deps.Pending == nil || deps.Log == nil || deps.Messenger == nil {
		return nil, errors.New("relay router: missing dependency")
	}
	return &Router{
		access:    deps.Access,
		pending:   deps.Pending,
		log:       deps.Log,
		messenger: deps.Messenger,
		texts:     deps.Texts,
		metrics:   deps.Metrics,
	}, nil
}

// GreetReviewer answers /start from a reviewer.
func (r *Router) GreetReviewer(ctx context.Context, reviewerID int64) error {
	return r.send(ctx, reviewerID, r.texts.ReviewerGreeting)
}

// FanOutAnswer sends the answer notice to every reviewer. A reviewer that
// cannot be reached does not stop delivery to the others.
func (r *Router) FanOutAnswer(ctx context.Context, sender model.Sender, question, answer string) error {
	text := r.answerNotice(sender, question, answer)
	buttons := model.Row(model.Button{Text: r.texts.ReplyButton, Data: model.ReplyButton(sender.ID)})

	var errs []error
	for _, reviewerID := range r.access.Reviewers() {
		err := r.messenger.SendText(ctx, reviewerID, text, model.WithMarkdown(), model.WithButtons(buttons))
		if err != nil {
			r.metrics.DeliveryFailure("reviewer")
			zerolog.Ctx(ctx).Warn().Err(err).Int64("reviewer_id", reviewerID).Msg("answer notice not delivered")
			errs = append(errs, &model.DeliveryError{Recipient: reviewerID, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (r *Router) answerNotice(sender model.Sender, question, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* %s\n", bot.EscapeMarkdown(r.texts.NoticeTitle), bot.EscapeMarkdown(sender.Header()))
	fmt.Fprintf(&b, "*%s* %s\n", bot.EscapeMarkdown(r.texts.NoticeQuestion), bot.EscapeMarkdown(question))
	fmt.Fprintf(&b, "*%s* %s", bot.EscapeMarkdown(r.texts.NoticeAnswer), bot.EscapeMarkdown(answer))
	return b.String()
}

// RequestReply arms the reviewer's reply slot for target. A slot that was
// already armed is overwritten.
func (r *Router) RequestReply(ctx context.Context, reviewerID, targetID int64) error {
	if !r.access.IsReviewer(reviewerID) {
		return model.ErrNotReviewer
	}
	if previous, replaced := r.pending.Set(reviewerID, targetID); replaced && previous != targetID {
		zerolog.Ctx(ctx).Debug().Int64("previous_target", previous).Int64("target", targetID).Msg("pending reply retargeted")
	}
	return r.send(ctx, reviewerID, r.texts.ReplyPrompt)
}

// DeliverReply consumes the reviewer's reply slot and forwards text to the
// target user. handled is false when no slot was armed; the caller then
// treats text as an ordinary message.
func (r *Router) DeliverReply(ctx context.Context, reviewerID int64, text string) (bool, error) {
	if !r.access.IsReviewer(reviewerID) {
		return false, nil
	}
	targetID, ok := r.pending.Take(reviewerID)
	if !ok {
		return false, nil
	}

	var errs []error
	if _, err := r.log.Append(ctx, targetID, text, true); err != nil {
		r.metrics.PersistenceFailure()
		errs = append(errs, &model.PersistenceError{UserID: targetID, Err: err})
	}

	if err := r.messenger.SendText(ctx, targetID, r.texts.ReplyPrefix+"\n\n"+text); err != nil {
		r.metrics.Reply(false)
		r.metrics.DeliveryFailure("user")
		errs = append(errs, &model.DeliveryError{Recipient: targetID, Err: err})
		if err := r.send(ctx, reviewerID, fmt.Sprintf(r.texts.ReplyFailed, targetID)); err != nil {
			errs = append(errs, err)
		}
		return true, errors.Join(errs...)
	}

	r.metrics.Reply(true)
	if err := r.send(ctx, reviewerID, r.texts.ReplySent); err != nil {
		errs = append(errs, err)
	}
	return true, errors.Join(errs...)
}

// ListUsers sends the reviewer a picker of every user with history.
func (r *Router) ListUsers(ctx context.Context, reviewerID int64) error {
	if !r.access.IsReviewer(reviewerID) {
		return model.ErrNotReviewer
	}
	ids, err := r.log.DistinctUsersWithHistory(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(ids) == 0 {
		return r.send(ctx, reviewerID, r.texts.NoUsers)
	}

	for start := 0; start < len(ids); start += pickerPageSize {
		end := min(start+pickerPageSize, len(ids))
		kb := make(model.Keyboard, 0, end-start)
		for _, id := range ids[start:end] {
			kb = append(kb, []model.Button{{Text: fmt.Sprintf(r.texts.UserButton, id), Data: model.ViewButton(id)}})
		}
		if err := r.send(ctx, reviewerID, r.texts.PickUser, model.WithButtons(kb)); err != nil {
			return err
		}
	}
	return nil
}

// ShowHistory sends the user's conversation to the reviewer, split to fit the
// transport, with reply and retake buttons under the last chunk.
func (r *Router) ShowHistory(ctx context.Context, reviewerID, userID int64) error {
	if !r.access.IsReviewer(reviewerID) {
		return model.ErrNotReviewer
	}
	entries, err := r.log.HistoryFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("history for %d: %w", userID, err)
	}

	chunks := SplitText(r.renderHistory(userID, entries), r.messenger.MaxMessageLength())
	actions := model.Keyboard{
		{{Text: r.texts.ReplyButton, Data: model.ReplyButton(userID)}},
		{{Text: r.texts.AllowButton, Data: model.AllowButton(userID)}},
	}
	for i, chunk := range chunks {
		var opts []model.SendOption
		if i == len(chunks)-1 {
			opts = append(opts, model.WithButtons(actions))
		}
		if err := r.send(ctx, reviewerID, chunk, opts...); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) renderHistory(userID int64, entries []model.LogEntry) string {
	header := fmt.Sprintf(r.texts.HistoryHeader, userID)
	if len(entries) == 0 {
		return header + "\n\n" + r.texts.HistoryEmpty
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		label := r.texts.UserLabel
		if entry.FromReviewer {
			label = r.texts.ReviewerLabel
		}
		lines = append(lines, label+": "+entry.Text)
	}
	return header + "\n\n" + strings.Join(lines, "\n\n")
}

// GrantRetake lets userID take the survey again and confirms to the reviewer.
func (r *Router) GrantRetake(ctx context.Context, reviewerID, userID int64) error {
	alreadyAllowed := r.access.RetakeAllowed(userID)
	if err := r.access.GrantRetake(reviewerID, userID); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Int64("target", userID).
		Bool("completed", r.access.HasCompleted(userID)).
		Bool("already_allowed", alreadyAllowed).
		Msg("retake granted")
	return r.send(ctx, reviewerID, fmt.Sprintf(r.texts.RetakeGranted, userID))
}

func (r *Router) send(ctx context.Context, recipient int64, text string, opts ...model.SendOption) error {
	if err := r.messenger.SendText(ctx, recipient, text, opts...); err != nil {
		return &model.DeliveryError{Recipient: recipient, Err: err}
	}
	return nil
}
