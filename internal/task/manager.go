package task

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffwilliams/hexcore/internal/circ"
)

// Work is serviced on the foreground goroutine, the one that owns application state.
type Work interface {
	Service() (done bool)
	// Which task it is for, or nil.
	Task() *Task
}

// Manager runs tasks on a fixed number of worker goroutines. Results come back to the foreground
// goroutine through an inbox of Work that the foreground services with Service, ServicePending or
// Await.
type Manager struct {
	work   chan Work
	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	nextID atomic.Uint64
	wg     sync.WaitGroup

	lock     sync.Mutex
	active   map[uint64]*Task
	finished circ.Circ[*Task]

	scheduler *Scheduler
}

// DefaultHistory is the number of finished tasks a Manager remembers.
const DefaultHistory = 32

// NewManager creates a manager with the given number of workers. A count below 1 uses one worker
// per CPU.
func NewManager(workers int) *Manager {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		work:     make(chan Work, 100),
		slots:    make(chan struct{}, workers),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[uint64]*Task),
		finished: circ.New[*Task](DefaultHistory),
	}
	m.scheduler = NewScheduler(m.work)
	return m
}

func (m *Manager) Workers() int {
	return cap(m.slots)
}

// Inbox is the channel the foreground goroutine reads Work from.
func (m *Manager) Inbox() <-chan Work {
	return m.work
}

func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// Submit starts fn on a worker as soon as one is free. If then is not nil it is called on the
// foreground goroutine once the task has finished, whatever its outcome.
func (m *Manager) Submit(name string, fn Func, then func(t *Task)) *Task {
	ctx, cancel := context.WithCancel(m.ctx)
	t := &Task{
		id:       m.nextID.Add(1),
		name:     name,
		fn:       fn,
		then:     then,
		ctx:      ctx,
		cancel:   cancel,
		created:  time.Now(),
		finished: make(chan struct{}),
	}

	m.lock.Lock()
	m.active[t.id] = t
	m.lock.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case m.slots <- struct{}{}:
			t.run()
			<-m.slots
		case <-ctx.Done():
			t.run()
		}
		m.work <- taskDone{t}
	}()

	dbg("submitted task %d '%s'", t.id, name)
	return t
}

// Post queues f to run on the foreground goroutine.
func (m *Manager) Post(f func()) {
	m.work <- basicWork{f}
}

// Service runs one piece of work. It must be called on the foreground goroutine.
func (m *Manager) Service(w Work) {
	done := w.Service()
	if done && w.Task() != nil {
		m.retire(w.Task())
	}
}

// ServicePending services the work already in the inbox without blocking and returns how much
// there was.
func (m *Manager) ServicePending() int {
	n := 0
	for {
		select {
		case w := <-m.work:
			m.Service(w)
			n++
		default:
			return n
		}
	}
}

// Await services the inbox until t has finished and its completion has been handled.
func (m *Manager) Await(t *Task) error {
	for !t.settled {
		m.Service(<-m.work)
	}
	return t.Err()
}

func (m *Manager) retire(t *Task) {
	if t.settled {
		return
	}
	t.settled = true

	m.lock.Lock()
	delete(m.active, t.id)
	m.finished.Add(t)
	m.lock.Unlock()

	if t.then != nil {
		t.then(t)
	}
}

// Active returns the unfinished tasks ordered by id.
func (m *Manager) Active() []*Task {
	m.lock.Lock()
	r := make([]*Task, 0, len(m.active))
	for _, t := range m.active {
		r = append(r, t)
	}
	m.lock.Unlock()

	sort.Slice(r, func(i, j int) bool { return r[i].id < r[j].id })
	return r
}

// Finished returns the most recently finished tasks, oldest first.
func (m *Manager) Finished() []*Task {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.finished.Slice()
}

// CancelAll cancels every active task.
func (m *Manager) CancelAll() {
	for _, t := range m.Active() {
		t.Cancel()
	}
}

// Shutdown cancels all tasks and waits for their bodies to return. Completions still in the
// inbox are serviced.
func (m *Manager) Shutdown() {
	m.cancel()
	m.scheduler.StopAll()

	stopped := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(stopped)
	}()
	for {
		select {
		case w := <-m.work:
			m.Service(w)
		case <-stopped:
			m.ServicePending()
			return
		}
	}
}

type taskDone struct {
	t *Task
}

func (w taskDone) Service() (done bool) {
	return true
}

func (w taskDone) Task() *Task {
	return w.t
}

type basicWork struct {
	f func()
}

func (w basicWork) Service() (done bool) {
	w.f()
	return true
}

func (w basicWork) Task() *Task {
	return nil
}
