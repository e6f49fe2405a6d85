// Package queue carries pipeline tasks between the API and the workers over
// Redis lists.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/docucast/internal/pipeline"
	"github.com/go-redis/redis/v8"
)

const (
	QueueGeneratePodcast = "queue:generate_podcast"
	QueueConvertPodcast  = "queue:convert_podcast"
	QueueTrainVoice      = "queue:train_voice"
)

// Names lists every queue with the task type it carries.
var Names = map[pipeline.TaskType]string{
	pipeline.TaskGenerate: QueueGeneratePodcast,
	pipeline.TaskConvert:  QueueConvertPodcast,
	pipeline.TaskTrain:    QueueTrainVoice,
}

type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Dispatch pushes the task onto the queue for its type.
func (q *Queue) Dispatch(ctx context.Context, task pipeline.Task) error {
	name, ok := Names[task.Type]
	if !ok {
		return fmt.Errorf("no queue for task type %q", task.Type)
	}
	return q.Enqueue(ctx, name, task)
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, task pipeline.Task) error {
	task.CreatedAt = time.Now()

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue waits up to timeout for a task. It returns nil, nil when none arrived.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*pipeline.Task, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var task pipeline.Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// Lengths reports the backlog of every queue.
func (q *Queue) Lengths(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(Names))
	for _, name := range Names {
		n, err := q.GetQueueLength(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}
