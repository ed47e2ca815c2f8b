package engine

import "sync"

// taskGroup is a bounded task group: spawn up to n concurrent tasks, join,
// and observe completion as an explicit event. Workers share no mutable
// state beyond what the submitted closures capture; the apply report has
// its own lock.
//
// The pool is a small fixed size, not elastic - mutation calls are I/O
// bound and the tracker rate-limits aggressively.
type taskGroup struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newTaskGroup(workers int) *taskGroup {
	if workers < 1 {
		workers = 1
	}
	return &taskGroup{sem: make(chan struct{}, workers)}
}

// Go submits a task, blocking while all worker slots are busy.
func (g *taskGroup) Go(fn func()) {
	g.sem <- struct{}{}
	g.wg.Add(1)
	go func() {
		defer func() {
			<-g.sem
			g.wg.Done()
		}()
		fn()
	}()
}

// Join blocks until every submitted task has finished.
func (g *taskGroup) Join() {
	g.wg.Wait()
}
