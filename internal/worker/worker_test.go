package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/docucast/internal/pipeline"
	"github.com/bobarin/docucast/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	queues map[string]chan pipeline.Task
	err    error
	errs   int
	mu     sync.Mutex
}

func newChanSource() *chanSource {
	s := &chanSource{queues: make(map[string]chan pipeline.Task)}
	for _, name := range queue.Names {
		s.queues[name] = make(chan pipeline.Task, 8)
	}
	return s
}

func (s *chanSource) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*pipeline.Task, error) {
	s.mu.Lock()
	if s.errs > 0 {
		s.errs--
		s.mu.Unlock()
		return nil, s.err
	}
	s.mu.Unlock()

	select {
	case task := <-s.queues[queueName]:
		return &task, nil
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingRunner struct {
	mu    sync.Mutex
	tasks []pipeline.Task
	done  chan struct{}
	want  int
	fail  bool
}

func (r *recordingRunner) Run(ctx context.Context, task pipeline.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	if len(r.tasks) == r.want {
		close(r.done)
	}
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func TestWorkerRunsTasksFromEveryQueue(t *testing.T) {
	src := newChanSource()
	runner := &recordingRunner{done: make(chan struct{}), want: 3}

	gen := pipeline.NewTask(pipeline.TaskGenerate, uuid.New())
	conv := pipeline.NewTask(pipeline.TaskConvert, uuid.New())
	train := pipeline.NewTask(pipeline.TaskTrain, uuid.New())
	src.queues[queue.QueueGeneratePodcast] <- gen
	src.queues[queue.QueueConvertPodcast] <- conv
	src.queues[queue.QueueTrainVoice] <- train

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- New(src, runner).Start(ctx, 2) }()

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks were not processed")
	}
	cancel()
	require.NoError(t, <-result)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.ElementsMatch(t, []pipeline.Task{gen, conv, train}, runner.tasks)
}

func TestWorkerSurvivesErrors(t *testing.T) {
	src := newChanSource()
	src.err = errors.New("connection refused")
	src.errs = 2
	runner := &recordingRunner{done: make(chan struct{}), want: 2, fail: true}

	src.queues[queue.QueueGeneratePodcast] <- pipeline.NewTask(pipeline.TaskGenerate, uuid.New())
	src.queues[queue.QueueGeneratePodcast] <- pipeline.NewTask(pipeline.TaskGenerate, uuid.New())

	w := New(src, runner)
	w.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- w.Start(ctx, 1) }()

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker stopped after an error")
	}
	cancel()
	require.NoError(t, <-result)
}
