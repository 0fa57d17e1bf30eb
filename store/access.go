package store

import (
	"SurveyBot/model"
	"sort"
	"sync"
)

// AccessPolicy tracks who finished the survey, who may take it again, and the
// static set of reviewers.
type AccessPolicy struct {
	reviewers       map[int64]struct{}
	reviewerList    []int64
	singleUseRetake bool

	mu        sync.RWMutex
	completed map[int64]struct{}
	retake    map[int64]struct{}
}

// NewAccessPolicy builds a policy for the given reviewers. With
// singleUseRetake a retake grant is revoked when the user finishes again;
// otherwise a grant is permanent.
func NewAccessPolicy(reviewers []int64, singleUseRetake bool) *AccessPolicy {
	p := &AccessPolicy{
		reviewers:       make(map[int64]struct{}, len(reviewers)),
		singleUseRetake: singleUseRetake,
		completed:       make(map[int64]struct{}),
		retake:          make(map[int64]struct{}),
	}
	for _, id := range reviewers {
		if _, dup := p.reviewers[id]; dup {
			continue
		}
		p.reviewers[id] = struct{}{}
		p.reviewerList = append(p.reviewerList, id)
	}
	sort.Slice(p.reviewerList, func(i, j int) bool { return p.reviewerList[i] < p.reviewerList[j] })
	return p
}

func (p *AccessPolicy) IsReviewer(userID int64) bool {
	_, ok := p.reviewers[userID]
	return ok
}

func (p *AccessPolicy) Reviewers() []int64 {
	out := make([]int64, len(p.reviewerList))
	copy(out, p.reviewerList)
	return out
}

// CanStart reports whether the user may begin a new survey session.
func (p *AccessPolicy) CanStart(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, done := p.completed[userID]; !done {
		return true
	}
	_, allowed := p.retake[userID]
	return allowed
}

func (p *AccessPolicy) HasCompleted(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.completed[userID]
	return ok
}

func (p *AccessPolicy) RetakeAllowed(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.retake[userID]
	return ok
}

func (p *AccessPolicy) MarkCompleted(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[userID] = struct{}{}
	if p.singleUseRetake {
		delete(p.retake, userID)
	}
}

// GrantRetake lets userID start the survey again. Only reviewers may grant.
func (p *AccessPolicy) GrantRetake(reviewerID, userID int64) error {
	if !p.IsReviewer(reviewerID) {
		return model.ErrNotReviewer
	}
	p.mu.Lock()
	p.retake[userID] = struct{}{}
	p.mu.Unlock()
	return nil
}
