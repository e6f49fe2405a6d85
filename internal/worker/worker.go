// Package worker consumes pipeline tasks from the Redis queues.
package worker

import (
	"context"
	"time"

	"github.com/bobarin/docucast/internal/pipeline"
	"github.com/bobarin/docucast/internal/queue"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const dequeueTimeout = 5 * time.Second

// Source yields queued tasks. queue.Queue implements it.
type Source interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*pipeline.Task, error)
}

type Worker struct {
	source  Source
	runner  pipeline.Runner
	queues  map[pipeline.TaskType]string
	backoff time.Duration // pause after a dequeue error
}

func New(source Source, runner pipeline.Runner) *Worker {
	return &Worker{
		source:  source,
		runner:  runner,
		queues:  queue.Names,
		backoff: time.Second,
	}
}

// Start runs concurrency consumers per queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	log.Printf("[Worker] Started with concurrency %d on %d queue(s)", concurrency, len(w.queues))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range w.queues {
		name := name
		for i := 0; i < concurrency; i++ {
			g.Go(func() error {
				w.processQueue(gctx, name)
				return nil
			})
		}
	}
	err := g.Wait()
	log.Println("[Worker] Shutting down")
	return err
}

func (w *Worker) processQueue(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.source.Dequeue(ctx, queueName, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("[Worker] Error dequeuing from %s: %v", queueName, err)
			w.sleep(ctx)
			continue
		}
		if task == nil {
			continue
		}

		log.Printf("[Worker] Processing task %s (type: %s, target: %s)", task.ID, task.Type, task.TargetID)
		start := time.Now()

		// jobs run to completion even when the worker is stopping
		if err := w.runner.Run(context.WithoutCancel(ctx), *task); err != nil {
			log.Errorf("[Worker] Task %s failed after %s: %v", task.ID, time.Since(start).Round(time.Millisecond), err)
			continue
		}
		log.Printf("[Worker] Task %s completed in %s", task.ID, time.Since(start).Round(time.Millisecond))
	}
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
