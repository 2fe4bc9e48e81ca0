package sketch

import (
	"sync"
	"time"
)

// TaskStatus is the lifecycle state of a remote operation
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Task tracks one asynchronous load or save.
type Task struct {
	Kind      string
	StartedAt time.Time

	mu         sync.RWMutex
	status     TaskStatus
	err        error
	finishedAt time.Time
	done       chan struct{}
}

func newTask(kind string) *Task {
	return &Task{
		Kind:      kind,
		StartedAt: time.Now(),
		status:    TaskPending,
		done:      make(chan struct{}),
	}
}

// finish records the outcome and releases waiters. Only the first call counts.
func (t *Task) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != TaskPending {
		return
	}
	t.err = err
	t.status = TaskSucceeded
	if err != nil {
		t.status = TaskFailed
	}
	t.finishedAt = time.Now()
	close(t.done)
}

// Status returns the current state
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Err returns the failure cause, or nil while pending or after success
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.Err()
}

// TaskInfo is a JSON-friendly view of a task
type TaskInfo struct {
	Kind       string     `json:"kind"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Info returns a snapshot of the task state
func (t *Task) Info() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info := TaskInfo{
		Kind:      t.Kind,
		Status:    t.status,
		StartedAt: t.StartedAt,
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		info.FinishedAt = &finished
	}
	return info
}
