package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type Status int32

const (
	Pending Status = iota
	Running
	Done
	Cancelled
	Failed
)

var statusNames = []string{"pending", "running", "done", "cancelled", "failed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) Finished() bool {
	return s >= Done
}

var ErrCancelled = errors.New("task cancelled")

// Func is the body of a task. It should call t.Update as it makes progress and return once
// t.Context() is done.
type Func func(t *Task) error

// A Task is a unit of background work run by a Manager.
type Task struct {
	id      uint64
	name    string
	fn      Func
	then    func(t *Task)
	ctx     context.Context
	cancel  context.CancelFunc
	created time.Time

	status    atomic.Int32
	processed atomic.Uint64
	total     atomic.Uint64

	lock     sync.Mutex
	err      error
	finished chan struct{}
	// settled is only accessed from the foreground goroutine.
	settled bool
}

func (t *Task) ID() uint64 {
	return t.id
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) Context() context.Context {
	return t.ctx
}

func (t *Task) Status() Status {
	return Status(t.status.Load())
}

// Cancel asks the task to stop. The task acknowledges it at its next check of its context.
func (t *Task) Cancel() {
	t.cancel()
}

// Update records progress. It has the signature of the search and diff progress callbacks.
func (t *Task) Update(processed, total uint64) {
	t.processed.Store(processed)
	t.total.Store(total)
}

func (t *Task) Progress() (processed, total uint64) {
	return t.processed.Load(), t.total.Load()
}

// Fraction returns the progress in [0, 1], or -1 if the total is unknown.
func (t *Task) Fraction() float64 {
	p, tot := t.Progress()
	if tot == 0 {
		return -1
	}
	return float64(min(p, tot)) / float64(tot)
}

// Err returns the error the task failed with. Cancelled tasks return an error matching
// ErrCancelled.
func (t *Task) Err() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.err
}

// Finished is closed when the task body has returned.
func (t *Task) Finished() <-chan struct{} {
	return t.finished
}

// Wait blocks until the task body returns and returns its error.
func (t *Task) Wait() error {
	<-t.finished
	return t.Err()
}

func (t *Task) String() string {
	return fmt.Sprintf("%d %s (%s)", t.id, t.name, t.Status())
}

func (t *Task) run() {
	defer close(t.finished)

	if t.ctx.Err() != nil {
		t.finish(t.ctx.Err())
		return
	}
	t.status.Store(int32(Running))
	dbg("task %d '%s' started", t.id, t.name)
	t.finish(t.protect())
}

// protect runs the body and reports a panic as an error.
func (t *Task) protect() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task '%s' panicked: %v", t.name, r)
		}
	}()
	return t.fn(t)
}

func (t *Task) finish(err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	switch {
	case err == nil:
		t.status.Store(int32(Done))
	case errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) || t.ctx.Err() != nil:
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		t.err = err
		t.status.Store(int32(Cancelled))
	default:
		t.err = err
		t.status.Store(int32(Failed))
	}
	t.cancel()
	dbg("task %d '%s' %s", t.id, t.name, t.Status())
}
