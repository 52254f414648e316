package task

import (
	"sync"
	"time"
)

// A Scheduler runs functions on the foreground goroutine after a delay.
type Scheduler struct {
	work chan Work

	lock   sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler(work chan Work) *Scheduler {
	return &Scheduler{
		work:   work,
		timers: make(map[string]*time.Timer),
	}
}

// AfterFunc waits for the duration to elapse and then queues f for the foreground goroutine.
// If there is already a timer started for id it is stopped and a new one created, so a burst of
// calls runs f once, d after the last call.
func (s *Scheduler) AfterFunc(id string, d time.Duration, f func()) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopTimerIfAlreadyCreated(id)

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.lock.Lock()
		timer := t
		s.lock.Unlock()
		s.work <- scheduledWork{f, id, timer, s}
	})
	s.timers[id] = t
}

// Cancel stops the timer for id. It returns false if there was none or it already fired.
func (s *Scheduler) Cancel(id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	t, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	return t.Stop()
}

func (s *Scheduler) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.timers)
}

func (s *Scheduler) StopAll() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) stopTimerIfAlreadyCreated(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
}

// remove forgets the timer for id if it is still t.
func (s *Scheduler) remove(id string, t *time.Timer) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timers[id] != t {
		return false
	}
	delete(s.timers, id)
	return true
}

type scheduledWork struct {
	f  func()
	id string
	t  *time.Timer
	s  *Scheduler
}

func (w scheduledWork) Service() (done bool) {
	// A timer stopped after it fired has been replaced or cancelled.
	if w.s.remove(w.id, w.t) {
		w.f()
	}
	return true
}

func (w scheduledWork) Task() *Task {
	return nil
}
