package store

import "sync"

// PendingReplies holds at most one reply target per reviewer. A new request
// replaces the previous target.
type PendingReplies struct {
	mu      sync.Mutex
	targets map[int64]int64
}

func NewPendingReplies() *PendingReplies {
	return &PendingReplies{targets: make(map[int64]int64)}
}

// Set records target for reviewer and returns the target it replaced, if any.
func (p *PendingReplies) Set(reviewerID, targetID int64) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous, replaced := p.targets[reviewerID]
	p.targets[reviewerID] = targetID
	return previous, replaced
}

// Take consumes the reviewer's pending target.
func (p *PendingReplies) Take(reviewerID int64) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target, ok := p.targets[reviewerID]
	if ok {
		delete(p.targets, reviewerID)
	}
	return target, ok
}
