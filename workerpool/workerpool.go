// Package workerpool bounds fan-out goroutine counts with
// golang.org/x/sync/errgroup, the same family of dependency the teacher
// already carries for its staged-sync goroutine-per-stage idiom
// (eth/stagedsync/stage_log_index.go), generalized here so a caller with
// many independent, unbounded-arrival tasks — state/fork's per-key
// upstream fetches chief among them — never opens one goroutine per
// task regardless of how many keys arrive at once.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs at most size tasks concurrently, collecting the first error
// any of them returns.
type Pool struct {
	g   *errgroup.Group
	sem chan struct{}
}

// New returns a Pool bounded to size concurrent tasks, derived from ctx.
func New(ctx context.Context, size int) (*Pool, context.Context) {
	if size < 1 {
		size = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	return &Pool{g: g, sem: make(chan struct{}, size)}, ctx
}

// Go schedules fn, blocking the caller only until a pool slot frees up,
// never until fn itself completes.
func (p *Pool) Go(fn func() error) {
	p.sem <- struct{}{}
	p.g.Go(func() error {
		defer func() { <-p.sem }()
		return fn()
	})
}

// Wait blocks until every scheduled task has returned, reporting the
// first non-nil error, if any.
func (p *Pool) Wait() error {
	return p.g.Wait()
}
