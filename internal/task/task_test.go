package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCancel(t *Task) error {
	<-t.Context().Done()
	return t.Context().Err()
}

func TestSubmitAndAwait(t *testing.T) {
	m := NewManager(2)
	defer m.Shutdown()

	var thenCalled bool
	tk := m.Submit("count", func(t *Task) error {
		for i := uint64(1); i <= 4; i++ {
			t.Update(i, 4)
		}
		return nil
	}, func(t *Task) {
		thenCalled = true
	})

	require.NoError(t, m.Await(tk))
	assert.True(t, thenCalled)
	assert.Equal(t, Done, tk.Status())
	assert.Equal(t, 1.0, tk.Fraction())
	assert.Empty(t, m.Active())
	assert.Equal(t, []*Task{tk}, m.Finished())
}

func TestTaskStatuses(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name   string
		fn     Func
		cancel bool
		status Status
		errIs  []error
	}{
		{
			name:   "failed",
			fn:     func(t *Task) error { return boom },
			status: Failed,
			errIs:  []error{boom},
		},
		{
			name:   "cancelled",
			fn:     waitForCancel,
			cancel: true,
			status: Cancelled,
			errIs:  []error{ErrCancelled, context.Canceled},
		},
		{
			name:   "panicked",
			fn:     func(t *Task) error { panic("oops") },
			status: Failed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(1)
			defer m.Shutdown()

			tk := m.Submit(tc.name, tc.fn, nil)
			if tc.cancel {
				tk.Cancel()
			}
			err := m.Await(tk)
			require.Error(t, err)
			assert.Equal(t, tc.status, tk.Status())
			for _, target := range tc.errIs {
				assert.ErrorIs(t, err, target)
			}
		})
	}
}

func TestWorkersLimitConcurrency(t *testing.T) {
	m := NewManager(1)
	defer m.Shutdown()

	started := make(chan struct{})
	first := m.Submit("first", func(t *Task) error {
		close(started)
		return waitForCancel(t)
	}, nil)
	<-started

	second := m.Submit("second", func(t *Task) error { return nil }, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Running, first.Status())
	assert.Equal(t, Pending, second.Status())
	assert.Len(t, m.Active(), 2)

	first.Cancel()
	require.NoError(t, m.Await(second))
	assert.Equal(t, Cancelled, first.Status())
}

func TestCancelPendingTask(t *testing.T) {
	m := NewManager(1)
	defer m.Shutdown()

	started := make(chan struct{})
	first := m.Submit("first", func(t *Task) error {
		close(started)
		return waitForCancel(t)
	}, nil)
	<-started

	ran := false
	second := m.Submit("second", func(t *Task) error {
		ran = true
		return nil
	}, nil)
	second.Cancel()

	assert.ErrorIs(t, m.Await(second), ErrCancelled)
	assert.False(t, ran)
	first.Cancel()
	assert.Error(t, m.Await(first))
}

func TestFinishedIsBounded(t *testing.T) {
	m := NewManager(4)
	defer m.Shutdown()

	var last *Task
	for i := 0; i < DefaultHistory+5; i++ {
		last = m.Submit("t", func(t *Task) error { return nil }, nil)
		require.NoError(t, m.Await(last))
	}
	fin := m.Finished()
	assert.Len(t, fin, DefaultHistory)
	assert.Equal(t, last, fin[len(fin)-1])
}

func TestFraction(t *testing.T) {
	m := NewManager(1)
	defer m.Shutdown()

	tk := m.Submit("t", func(t *Task) error { return nil }, nil)
	assert.Equal(t, -1.0, tk.Fraction())
	tk.Update(1, 4)
	assert.Equal(t, 0.25, tk.Fraction())
	require.NoError(t, m.Await(tk))
}

func TestPost(t *testing.T) {
	m := NewManager(1)
	defer m.Shutdown()

	calls := 0
	m.Post(func() { calls++ })
	m.Post(func() { calls++ })
	assert.Equal(t, 2, m.ServicePending())
	assert.Equal(t, 2, calls)
}

func TestShutdownCancelsTasks(t *testing.T) {
	m := NewManager(2)
	tk := m.Submit("forever", waitForCancel, nil)
	m.Shutdown()
	assert.Equal(t, Cancelled, tk.Status())
	assert.Empty(t, m.Active())
}

func serviceFor(m *Manager, d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case w := <-m.Inbox():
			m.Service(w)
		case <-deadline:
			return
		}
	}
}

func TestSchedulerDebounces(t *testing.T) {
	m := NewManager(1)
	defer m.Shutdown()
	s := m.Scheduler()

	calls := 0
	for i := 0; i < 3; i++ {
		s.AfterFunc("save", 10*time.Millisecond, func() { calls++ })
	}
	assert.Equal(t, 1, s.Pending())

	serviceFor(m, 100*time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerCancel(t *testing.T) {
	m := NewManager(1)
	defer m.Shutdown()
	s := m.Scheduler()

	calls := 0
	s.AfterFunc("save", 10*time.Millisecond, func() { calls++ })
	assert.True(t, s.Cancel("save"))
	assert.False(t, s.Cancel("save"))

	serviceFor(m, 50*time.Millisecond)
	assert.Equal(t, 0, calls)
}
