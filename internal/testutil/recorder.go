package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
)

// ExecutionRecord holds the start and end times of one task run.
type ExecutionRecord struct {
	Task  string
	Start time.Time
	End   time.Time
}

// RecordingModule registers tasks that sleep, record when they ran, and
// optionally fail. It is used to observe ordering and concurrency.
type RecordingModule struct {
	Names []string
	Sleep time.Duration
	// Fail maps task names to the error they return.
	Fail map[string]error

	mu      sync.Mutex
	records []ExecutionRecord
}

// Register registers one task per name.
func (m *RecordingModule) Register(r *registry.Registry) {
	for _, name := range m.Names {
		r.RegisterTask(name, &registry.RegisteredTask{
			Description: "Recording test task.",
			Fn:          m.run,
		})
	}
}

func (m *RecordingModule) run(ctx context.Context, env *task.Env) error {
	start := time.Now()
	select {
	case <-time.After(m.Sleep):
	case <-ctx.Done():
		return ctx.Err()
	}
	m.mu.Lock()
	m.records = append(m.records, ExecutionRecord{Task: env.Name, Start: start, End: time.Now()})
	m.mu.Unlock()
	return m.Fail[env.Name]
}

// Records returns a copy of the runs recorded so far, in completion order.
func (m *RecordingModule) Records() []ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutionRecord(nil), m.records...)
}

// Record returns the record of the named task.
func (m *RecordingModule) Record(name string) (ExecutionRecord, bool) {
	for _, r := range m.Records() {
		if r.Task == name {
			return r, true
		}
	}
	return ExecutionRecord{}, false
}
