package relay

import (
	"SurveyBot/config"
	"SurveyBot/metrics"
	"SurveyBot/model"
	"SurveyBot/repo"
	"SurveyBot/store"
	"SurveyBot/transport/transporttest"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	reviewerA int64 = 1
	reviewerB int64 = 2
	userX     int64 = 100
	userY     int64 = 200
)

type fixture struct {
	router    *Router
	messenger *transporttest.Messenger
	access    *store.AccessPolicy
	pending   *store.PendingReplies
	log       *repo.GormLog
	texts     model.Messages
	metrics   *metrics.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	q, err := config.DefaultQuestionnaire()
	require.NoError(t, err)
	log, err := repo.NewGormLog("sqlite", filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	f := &fixture{
		messenger: transporttest.NewMessenger(),
		access:    store.NewAccessPolicy([]int64{reviewerB, reviewerA}, true),
		pending:   store.NewPendingReplies(),
		log:       log,
		texts:     q.Messages,
		metrics:   metrics.NewRecorder(),
	}
	f.router, err = NewRouter(Deps{
		Access:    f.access,
		Pending:   f.pending,
		Log:       log,
		Messenger: f.messenger,
		Texts:     q.Messages,
		Metrics:   f.metrics,
	})
	require.NoError(t, err)
	return f
}

func TestFanOutReachesEveryReviewer(t *testing.T) {
	f := newFixture(t)
	sender := model.Sender{ID: userX, DisplayName: "Ann Lee", Handle: "ann_lee"}

	require.NoError(t, f.router.FanOutAnswer(context.Background(), sender, "How old are you?", "17."))

	for _, reviewer := range []int64{reviewerA, reviewerB} {
		sent := f.messenger.To(reviewer)
		require.Len(t, sent, 1)
		notice := sent[0]
		assert.True(t, notice.Markdown)
		assert.Contains(t, notice.Text, `Ann Lee \(@ann\_lee\)`)
		assert.Contains(t, notice.Text, `How old are you?`)
		assert.Contains(t, notice.Text, `17\.`)
		assert.Equal(t, []string{model.ReplyButton(userX)}, notice.ButtonData())
	}
	assert.Empty(t, f.messenger.To(userX))
}

func TestFanOutContinuesPastUnreachableReviewer(t *testing.T) {
	f := newFixture(t)
	f.messenger.FailFor(reviewerA, errors.New("forbidden"))

	err := f.router.FanOutAnswer(context.Background(), model.Sender{ID: userX, DisplayName: "Ann"}, "Q", "A")

	var derr *model.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, reviewerA, derr.Recipient)
	assert.Len(t, f.messenger.To(reviewerB), 1)
}

func TestReplyRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.router.RequestReply(ctx, reviewerA, userX))
	assert.Equal(t, f.texts.ReplyPrompt, mustLast(t, f.messenger, reviewerA).Text)

	handled, err := f.router.DeliverReply(ctx, reviewerA, "hi")
	require.NoError(t, err)
	assert.True(t, handled)

	toUser := mustLast(t, f.messenger, userX)
	assert.Equal(t, f.texts.ReplyPrefix+"\n\nhi", toUser.Text)
	assert.Equal(t, f.texts.ReplySent, mustLast(t, f.messenger, reviewerA).Text)

	history, err := f.log.HistoryFor(ctx, userX)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Text)
	assert.True(t, history[0].FromReviewer)

	_, pending := f.pending.Take(reviewerA)
	assert.False(t, pending, "reply slot must be consumed")

	handled, err = f.router.DeliverReply(ctx, reviewerA, "second")
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestReplyLastRequestWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.router.RequestReply(ctx, reviewerA, userX))
	require.NoError(t, f.router.RequestReply(ctx, reviewerA, userY))

	handled, err := f.router.DeliverReply(ctx, reviewerA, "for Y")
	require.NoError(t, err)
	require.True(t, handled)

	assert.Empty(t, f.messenger.To(userX))
	assert.Len(t, f.messenger.To(userY), 1)
}

func TestReplySlotsArePerReviewer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.router.RequestReply(ctx, reviewerA, userX))

	handled, err := f.router.DeliverReply(ctx, reviewerB, "not armed")
	require.NoError(t, err)
	assert.False(t, handled)

	target, ok := f.pending.Take(reviewerA)
	require.True(t, ok)
	assert.Equal(t, userX, target)
}

func TestReplyFailureIsReportedToReviewer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.messenger.FailFor(userX, errors.New("bot was blocked by the user"))
	require.NoError(t, f.router.RequestReply(ctx, reviewerA, userX))

	handled, err := f.router.DeliverReply(ctx, reviewerA, "hello?")
	assert.True(t, handled)

	var derr *model.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, userX, derr.Recipient)
	assert.Equal(t, fmt.Sprintf(f.texts.ReplyFailed, userX), mustLast(t, f.messenger, reviewerA).Text)

	history, err := f.log.HistoryFor(ctx, userX)
	require.NoError(t, err)
	assert.Len(t, history, 1, "the reply is logged even when delivery fails")
}

func TestNonReviewerCannotUseReviewerActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.ErrorIs(t, f.router.RequestReply(ctx, userX, userY), model.ErrNotReviewer)
	require.ErrorIs(t, f.router.ListUsers(ctx, userX), model.ErrNotReviewer)
	require.ErrorIs(t, f.router.ShowHistory(ctx, userX, userY), model.ErrNotReviewer)
	require.ErrorIs(t, f.router.GrantRetake(ctx, userX, userY), model.ErrNotReviewer)

	handled, err := f.router.DeliverReply(ctx, userX, "text")
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, f.messenger.All())
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.router.ListUsers(ctx, reviewerA))
	assert.Equal(t, f.texts.NoUsers, mustLast(t, f.messenger, reviewerA).Text)

	for _, id := range []int64{userY, userX, userY} {
		_, err := f.log.Append(ctx, id, "msg", false)
		require.NoError(t, err)
	}
	require.NoError(t, f.router.ListUsers(ctx, reviewerA))

	picker := mustLast(t, f.messenger, reviewerA)
	assert.Equal(t, f.texts.PickUser, picker.Text)
	assert.Equal(t, []string{model.ViewButton(userX), model.ViewButton(userY)}, picker.ButtonData())
	assert.Equal(t, fmt.Sprintf(f.texts.UserButton, userX), picker.Buttons[0][0].Text)
}

func TestListUsersPaginatesLargePickers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for id := int64(1000); id < 1000+pickerPageSize+5; id++ {
		_, err := f.log.Append(ctx, id, "msg", false)
		require.NoError(t, err)
	}

	require.NoError(t, f.router.ListUsers(ctx, reviewerA))

	sent := f.messenger.To(reviewerA)
	require.Len(t, sent, 2)
	assert.Len(t, sent[0].Buttons, pickerPageSize)
	assert.Len(t, sent[1].Buttons, 5)
}

func TestShowHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.log.Append(ctx, userX, "/start", false)
	require.NoError(t, err)
	_, err = f.log.Append(ctx, userX, "answer", false)
	require.NoError(t, err)
	_, err = f.log.Append(ctx, userX, "reply", true)
	require.NoError(t, err)

	require.NoError(t, f.router.ShowHistory(ctx, reviewerA, userX))

	sent := f.messenger.To(reviewerA)
	require.Len(t, sent, 1)
	text := sent[0].Text
	assert.True(t, strings.HasPrefix(text, fmt.Sprintf(f.texts.HistoryHeader, userX)))
	assert.Contains(t, text, f.texts.UserLabel+": answer")
	assert.Contains(t, text, f.texts.ReviewerLabel+": reply")
	assert.Less(t, strings.Index(text, "answer"), strings.Index(text, "reply"))
	assert.Equal(t, []string{model.ReplyButton(userX), model.AllowButton(userX)}, sent[0].ButtonData())
}

func TestShowHistoryEmpty(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.router.ShowHistory(context.Background(), reviewerA, userX))
	assert.Contains(t, mustLast(t, f.messenger, reviewerA).Text, f.texts.HistoryEmpty)
}

func TestShowHistorySplitsLongConversations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.messenger.SetMaxLength(200)
	for i := 0; i < 20; i++ {
		_, err := f.log.Append(ctx, userX, strings.Repeat("x", 40), false)
		require.NoError(t, err)
	}

	require.NoError(t, f.router.ShowHistory(ctx, reviewerA, userX))

	sent := f.messenger.To(reviewerA)
	require.Greater(t, len(sent), 1)
	for i, d := range sent {
		assert.LessOrEqual(t, textLength(d.Text), 200)
		if i < len(sent)-1 {
			assert.Empty(t, d.Buttons)
		}
	}
	assert.Equal(t, []string{model.ReplyButton(userX), model.AllowButton(userX)}, sent[len(sent)-1].ButtonData())
}

func TestGrantRetake(t *testing.T) {
	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())
	f := newFixture(t)
	f.access.MarkCompleted(userX)
	require.False(t, f.access.CanStart(userX))

	require.NoError(t, f.router.GrantRetake(ctx, reviewerA, userX))

	assert.True(t, f.access.CanStart(userX))
	assert.Equal(t, fmt.Sprintf(f.texts.RetakeGranted, userX), mustLast(t, f.messenger, reviewerA).Text)
	assert.Contains(t, logs.String(), `"completed":true,"already_allowed":false`)

	logs.Reset()
	require.NoError(t, f.router.GrantRetake(ctx, reviewerA, userX))
	assert.Contains(t, logs.String(), `"already_allowed":true`)
}

func TestGreetReviewer(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.router.GreetReviewer(context.Background(), reviewerA))
	assert.Equal(t, f.texts.ReviewerGreeting, mustLast(t, f.messenger, reviewerA).Text)
}

func mustLast(t *testing.T, m *transporttest.Messenger, recipient int64) transporttest.Delivery {
	t.Helper()
	d, ok := m.Last(recipient)
	require.True(t, ok, "nothing sent to %d", recipient)
	return d
}
