package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMachineTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewSession(1)
	assert.True(t, s.AwaitingAnswer())
	assert.False(t, s.Can(EventAdvance))

	require.NoError(t, s.Fire(ctx, EventAnswer))
	assert.Equal(t, StateAwaitingNavigation, s.State())
	assert.False(t, s.Can(EventAnswer))

	require.NoError(t, s.Fire(ctx, EventAdvance))
	assert.True(t, s.AwaitingAnswer())

	// retreat while already awaiting an answer re-enters the same state
	require.NoError(t, s.Fire(ctx, EventRetreat))
	assert.True(t, s.AwaitingAnswer())

	require.NoError(t, s.Fire(ctx, EventFinish))
	assert.Equal(t, StateCompleted, s.State())
}

func TestSessionMachineRejectsAdvanceWhileAwaiting(t *testing.T) {
	s := NewSession(1)
	assert.Error(t, s.Fire(context.Background(), EventAdvance))
	assert.True(t, s.AwaitingAnswer())
}

func TestSessionSetAnswerOverwritesSlot(t *testing.T) {
	s := NewSession(1)
	s.SetAnswer(0, "q0", "first")
	s.SetAnswer(0, "q0", "second")
	require.Len(t, s.Answers, 1)
	assert.Equal(t, "second", s.Answers[0].Text)

	s.SetAnswer(2, "q2", "gap")
	require.Len(t, s.Answers, 3)
	assert.Equal(t, Answer{}, s.Answers[1])
	assert.Equal(t, "gap", s.Answers[2].Text)
}

func TestSenderHeader(t *testing.T) {
	assert.Equal(t, "Ivan Petrov (@ivan)", Sender{DisplayName: "Ivan Petrov", Handle: "ivan"}.Header())
	assert.Equal(t, "Ivan Petrov (@ivan)", Sender{DisplayName: "Ivan Petrov", Handle: "@ivan"}.Header())
	assert.Equal(t, "Ivan", Sender{DisplayName: "Ivan"}.Header())
}

func TestParseTargetButton(t *testing.T) {
	prefix, id, err := ParseTargetButton(ReplyButton(42))
	require.NoError(t, err)
	assert.Equal(t, ButtonReplyPrefix, prefix)
	assert.Equal(t, int64(42), id)

	prefix, id, err = ParseTargetButton("view_-100123")
	require.NoError(t, err)
	assert.Equal(t, ButtonViewPrefix, prefix)
	assert.Equal(t, int64(-100123), id)

	_, _, err = ParseTargetButton("allow_abc")
	assert.Error(t, err)

	_, _, err = ParseTargetButton("something")
	assert.ErrorIs(t, err, ErrUnknownButton)
}
