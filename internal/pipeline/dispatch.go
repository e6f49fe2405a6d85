// Package pipeline drives podcast generation, voice conversion and voice
// training jobs from request to terminal state.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TaskType names a unit of background work.
type TaskType string

const (
	TaskGenerate TaskType = "generate_podcast"
	TaskConvert  TaskType = "convert_podcast"
	TaskTrain    TaskType = "train_voice"
)

// Task is a dispatched job. TargetID is the podcast for generate and convert
// tasks and the custom voice for train tasks.
type Task struct {
	ID        uuid.UUID `json:"id"`
	Type      TaskType  `json:"type"`
	TargetID  uuid.UUID `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTask(typ TaskType, target uuid.UUID) Task {
	return Task{ID: uuid.New(), Type: typ, TargetID: target}
}

// Dispatcher hands a task to whatever runs it. Dispatch returns once the task
// is accepted, never after it has run.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Runner executes a task to completion.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// InlineDispatcher runs each task in its own goroutine in this process. It is
// used when no Redis queue is configured.
type InlineDispatcher struct {
	mu      sync.RWMutex
	runner  Runner
	pending sync.WaitGroup
}

func NewInlineDispatcher() *InlineDispatcher {
	return &InlineDispatcher{}
}

// Bind sets the runner. It must be called before the first Dispatch.
func (d *InlineDispatcher) Bind(r Runner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runner = r
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, task Task) error {
	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()
	if runner == nil {
		return fmt.Errorf("dispatcher has no runner")
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	// the job outlives the request that started it
	runCtx := context.WithoutCancel(ctx)

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		if err := runner.Run(runCtx, task); err != nil {
			log.Errorf("[Pipeline] Task %s (%s %s) failed: %v", task.ID, task.Type, task.TargetID, err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched task has returned.
func (d *InlineDispatcher) Wait() {
	d.pending.Wait()
}
