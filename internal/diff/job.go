package diff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

type State int32

const (
	Idle State = iota
	Running
	Completed
	Interrupted
)

var stateNames = []string{"idle", "running", "completed", "interrupted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrRunning     = errors.New("diff is already running")
	ErrInvalidated = errors.New("data changed while diffing")
)

// Watched is a source that reports changes to its data.
type Watched interface {
	provider.Source
	OnDataChanged(fn func(r region.Region)) (remove func())
}

// Job runs an algorithm over two sources and publishes the result. A change to either source
// discards the result and returns the job to Idle; a change during a run cancels it.
//
// State and Result may be called from any goroutine.
type Job struct {
	a, b Watched
	alg  Algorithm

	state  atomic.Int32
	result atomic.Pointer[Result]

	lock   sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	err    error
	unsub  []func()
}

func NewJob(a, b Watched, alg Algorithm) *Job {
	j := &Job{a: a, b: b, alg: alg}
	j.unsub = []func(){
		a.OnDataChanged(j.invalidate),
		b.OnDataChanged(j.invalidate),
	}
	return j
}

func (j *Job) State() State {
	return State(j.state.Load())
}

// Result returns the result of the last completed run, or nil.
func (j *Job) Result() *Result {
	return j.result.Load()
}

// Err returns the error that interrupted the last run.
func (j *Job) Err() error {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.err
}

func (j *Job) Algorithm() Algorithm {
	return j.alg
}

// SetAlgorithm changes the algorithm used by the next run and discards the current result.
func (j *Job) SetAlgorithm(alg Algorithm) {
	j.lock.Lock()
	j.alg = alg
	j.lock.Unlock()
	j.invalidate(region.Invalid)
}

// Run compares the sources and blocks until the comparison finishes, fails or is cancelled.
func (j *Job) Run(ctx context.Context, progress ProgressFunc) error {
	j.lock.Lock()
	if j.State() == Running {
		j.lock.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.cancel = cancel
	j.err = nil
	gen := j.gen
	alg := j.alg
	j.result.Store(nil)
	j.state.Store(int32(Running))
	j.lock.Unlock()

	dbg("running %s diff", alg.Name())
	res, err := alg.Analyze(ctx, j.a, j.b, progress)

	j.lock.Lock()
	defer j.lock.Unlock()
	j.cancel = nil

	if gen != j.gen {
		j.state.Store(int32(Idle))
		dbg("%s diff discarded: data changed", alg.Name())
		return ErrInvalidated
	}
	if err != nil {
		j.err = err
		j.state.Store(int32(Interrupted))
		dbg("%s diff interrupted: %v", alg.Name(), err)
		return err
	}
	j.result.Store(res)
	j.state.Store(int32(Completed))
	return nil
}

// Cancel interrupts a running comparison.
func (j *Job) Cancel() {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
}

// Reset discards the result and returns a finished job to Idle.
func (j *Job) Reset() {
	j.invalidate(region.Invalid)
}

func (j *Job) invalidate(region.Region) {
	j.lock.Lock()
	defer j.lock.Unlock()

	j.gen++
	j.result.Store(nil)
	j.err = nil
	switch j.State() {
	case Running:
		j.cancel()
	case Completed, Interrupted:
		j.state.Store(int32(Idle))
	}
}

// Close stops watching the sources.
func (j *Job) Close() {
	j.Cancel()
	for _, f := range j.unsub {
		f()
	}
	j.unsub = nil
}
