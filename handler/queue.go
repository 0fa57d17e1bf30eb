package handler

import (
	"context"
	"sync"
)

// userQueue runs jobs for one key strictly in submission order and jobs for
// different keys concurrently. A key's worker exits once its backlog drains.
type userQueue struct {
	mu      sync.Mutex
	workers map[int64]*worker
	wg      sync.WaitGroup
}

type worker struct {
	jobs []func()
}

func newUserQueue() *userQueue {
	return &userQueue{workers: make(map[int64]*worker)}
}

// Do runs fn on key's worker and waits for it. If ctx ends first Do returns
// ctx.Err(); fn still runs in its turn.
func (q *userQueue) Do(ctx context.Context, key int64, fn func()) error {
	done := make(chan struct{})
	q.submit(key, func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *userQueue) submit(key int64, job func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w, ok := q.workers[key]; ok {
		w.jobs = append(w.jobs, job)
		return
	}
	w := &worker{jobs: []func(){job}}
	q.workers[key] = w
	q.wg.Add(1)
	go q.run(key, w)
}

func (q *userQueue) run(key int64, w *worker) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(w.jobs) == 0 {
			delete(q.workers, key)
			q.mu.Unlock()
			return
		}
		job := w.jobs[0]
		w.jobs[0] = nil
		w.jobs = w.jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// Len is the number of keys with queued or running work.
func (q *userQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

// Wait blocks until every worker has drained.
func (q *userQueue) Wait() {
	q.wg.Wait()
}
