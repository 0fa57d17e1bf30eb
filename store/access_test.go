package store

import (
	"SurveyBot/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessPolicyReviewers(t *testing.T) {
	p := NewAccessPolicy([]int64{30, 10, 30}, true)

	assert.True(t, p.IsReviewer(10))
	assert.True(t, p.IsReviewer(30))
	assert.False(t, p.IsReviewer(20))
	assert.Equal(t, []int64{10, 30}, p.Reviewers())
}

func TestAccessPolicyCompletionBlocksStart(t *testing.T) {
	p := NewAccessPolicy([]int64{1}, true)

	assert.True(t, p.CanStart(5))
	p.MarkCompleted(5)
	assert.True(t, p.HasCompleted(5))
	assert.False(t, p.CanStart(5))
}

func TestAccessPolicyGrantRetakeRequiresReviewer(t *testing.T) {
	p := NewAccessPolicy([]int64{1}, true)
	p.MarkCompleted(5)

	err := p.GrantRetake(2, 5)
	assert.ErrorIs(t, err, model.ErrNotReviewer)
	assert.False(t, p.CanStart(5))

	require.NoError(t, p.GrantRetake(1, 5))
	assert.True(t, p.RetakeAllowed(5))
	assert.True(t, p.CanStart(5))
}

func TestAccessPolicySingleUseRetake(t *testing.T) {
	p := NewAccessPolicy([]int64{1}, true)
	p.MarkCompleted(5)
	require.NoError(t, p.GrantRetake(1, 5))

	p.MarkCompleted(5)
	assert.False(t, p.RetakeAllowed(5))
	assert.False(t, p.CanStart(5))
}

func TestAccessPolicyPermanentRetake(t *testing.T) {
	p := NewAccessPolicy([]int64{1}, false)
	p.MarkCompleted(5)
	require.NoError(t, p.GrantRetake(1, 5))

	p.MarkCompleted(5)
	assert.True(t, p.RetakeAllowed(5))
	assert.True(t, p.CanStart(5))
}
