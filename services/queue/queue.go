// Package queue is a durable Redis work queue for analysis jobs with
// visibility timeouts, delayed retries and a dead-letter list.
//
// Layout:
//
//	analysis:ready     ZSET  job id -> unix ms when the job becomes runnable
//	analysis:inflight  ZSET  job id -> unix ms when the lease expires
//	analysis:jobs      HASH  job id -> JSON payload
//	analysis:dlq       LIST  JSON payloads of dead-lettered jobs
//	analysis:session:<kind>:<id>  STRING  id of the queued job for a session
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/speaknowly/speaknowly-api/model"
)

// DefaultVisibilityTimeout is the lease a dequeued job holds before redelivery
const DefaultVisibilityTimeout = 90 * time.Second

// Job is one analysis request
type Job struct {
	ID         string         `json:"id"`
	Kind       model.TestKind `json:"kind"`
	SessionID  uint           `json:"session_id"`
	Attempt    int            `json:"attempt"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	LastError  string         `json:"last_error,omitempty"`
}

// Stats are the current queue sizes
type Stats struct {
	Ready      int64 `json:"ready"`
	InFlight   int64 `json:"in_flight"`
	DeadLetter int64 `json:"dead_letter"`
}

// Options configures a Queue
type Options struct {
	Prefix            string
	VisibilityTimeout time.Duration
}

// Queue is safe for concurrent use by many workers and processes
type Queue struct {
	client     redis.UniversalClient
	prefix     string
	visibility time.Duration
	now        func() time.Time
}

// New creates a queue on client
func New(client redis.UniversalClient, opts Options) *Queue {
	if opts.Prefix == "" {
		opts.Prefix = "analysis"
	}
	if opts.VisibilityTimeout == 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	return &Queue{
		client:     client,
		prefix:     opts.Prefix,
		visibility: opts.VisibilityTimeout,
		now:        time.Now,
	}
}

func (q *Queue) readyKey() string    { return q.prefix + ":ready" }
func (q *Queue) inflightKey() string { return q.prefix + ":inflight" }
func (q *Queue) jobsKey() string     { return q.prefix + ":jobs" }
func (q *Queue) dlqKey() string      { return q.prefix + ":dlq" }

func (q *Queue) sessionKey(kind model.TestKind, sessionID uint) string {
	return fmt.Sprintf("%s:session:%s:%d", q.prefix, kind, sessionID)
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// enqueueScript adds a job unless one is already queued for the session
var enqueueScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[3])
if existing and redis.call('HEXISTS', KEYS[2], existing) == 1 then
  return existing
end
redis.call('SET', KEYS[3], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return ARGV[1]
`)

// dequeueScript leases the oldest runnable job
var dequeueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local payload = redis.call('HGET', KEYS[3], id)
if not payload then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[2], id)
return payload
`)

// finishScript removes a job for good, optionally pushing it to the DLQ
var finishScript = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
if redis.call('GET', KEYS[3]) == ARGV[1] then
  redis.call('DEL', KEYS[3])
end
if ARGV[2] ~= '' then
  redis.call('RPUSH', KEYS[5], ARGV[2])
end
return 1
`)

// retryScript moves a leased job back to ready at a later time
var retryScript = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// requeueScript returns every job whose lease expired to ready
var requeueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('ZADD', KEYS[2], ARGV[1], id)
end
return #ids
`)

// Enqueue schedules analysis of a session. If a job for the same session is
// already queued or in flight, that job is returned instead.
func (q *Queue) Enqueue(ctx context.Context, kind model.TestKind, sessionID uint) (*Job, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		SessionID:  sessionID,
		Attempt:    1,
		EnqueuedAt: q.now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	id, err := enqueueScript.Run(ctx, q.client,
		[]string{q.readyKey(), q.jobsKey(), q.sessionKey(kind, sessionID)},
		job.ID, string(payload), ms(q.now()),
	).Text()
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	if id != job.ID {
		return q.Get(ctx, id)
	}
	return job, nil
}

// Dequeue leases the next runnable job. It returns nil when none is ready.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	now := q.now()
	payload, err := dequeueScript.Run(ctx, q.client,
		[]string{q.readyKey(), q.inflightKey(), q.jobsKey()},
		ms(now), ms(now.Add(q.visibility)),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// Get loads a queued or in-flight job
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	payload, err := q.client.HGet(ctx, q.jobsKey(), id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// Ack removes a finished job
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	return q.finish(ctx, job, "")
}

// Retry bumps the attempt counter and makes the job runnable after delay
func (q *Queue) Retry(ctx context.Context, job *Job, delay time.Duration, cause error) error {
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	err = retryScript.Run(ctx, q.client,
		[]string{q.inflightKey(), q.jobsKey(), q.readyKey()},
		job.ID, string(payload), ms(q.now().Add(delay)),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	return nil
}

// DeadLetter removes the job from circulation and records it in the DLQ list
func (q *Queue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return q.finish(ctx, job, string(payload))
}

func (q *Queue) finish(ctx context.Context, job *Job, dlqPayload string) error {
	err := finishScript.Run(ctx, q.client,
		[]string{q.inflightKey(), q.jobsKey(), q.sessionKey(job.Kind, job.SessionID), q.readyKey(), q.dlqKey()},
		job.ID, dlqPayload,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", job.ID, err)
	}
	return nil
}

// RequeueExpired redelivers jobs whose lease ran out and returns how many moved
func (q *Queue) RequeueExpired(ctx context.Context) (int64, error) {
	n, err := requeueScript.Run(ctx, q.client,
		[]string{q.inflightKey(), q.readyKey()},
		ms(q.now()),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to requeue expired jobs: %w", err)
	}
	return n, nil
}

// DeadLetters returns up to limit dead-lettered jobs, oldest first
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]Job, error) {
	payloads, err := q.client.LRange(ctx, q.dlqKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	jobs := make([]Job, 0, len(payloads))
	for _, p := range payloads {
		var job Job
		if err := json.Unmarshal([]byte(p), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Stats reports the queue sizes
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.ZCard(ctx, q.readyKey())
	inflight := pipe.ZCard(ctx, q.inflightKey())
	dlq := pipe.LLen(ctx, q.dlqKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return Stats{Ready: ready.Val(), InFlight: inflight.Val(), DeadLetter: dlq.Val()}, nil
}

// Ping checks the connection
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
