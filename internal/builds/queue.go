package builds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream build workers consume.
const DefaultStream = "docsplatform:builds"

// Job is the message handed to the build workers.
type Job struct {
	BuildID     int64     `json:"buildId"`
	ProjectID   int64     `json:"projectId"`
	ProjectSlug string    `json:"projectSlug"`
	VersionID   int64     `json:"versionId"`
	VersionSlug string    `json:"versionSlug"`
	Identifier  string    `json:"identifier,omitempty"`
	QueuedAt    time.Time `json:"queuedAt"`
}

// Queue hands accepted builds to the execution engine.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// NewMemoryQueue returns a Queue that records jobs in process.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

type MemoryQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.BuildID == 0 {
		return errors.New("build id is required")
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return nil
}

// Jobs returns a copy of every enqueued job in order.
func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.jobs...)
}

// RedisQueue publishes jobs to a Redis stream.
type RedisQueue struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisQueue returns a Queue appending to stream. A positive maxLen caps
// the stream approximately.
func NewRedisQueue(client redis.UniversalClient, stream string, maxLen int64) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisQueue{client: client, stream: stream, maxLen: maxLen}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.BuildID == 0 {
		return errors.New("build id is required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal build job: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"build":   strconv.FormatInt(job.BuildID, 10),
			"payload": string(payload),
		},
	}
	if q.maxLen > 0 {
		args.MaxLen = q.maxLen
		args.Approx = true
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish build job: %w", err)
	}
	return nil
}
