package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T) (*Queue, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := New(client, Options{})
	q.now = c.now
	return q, c
}

func TestEnqueueDequeueAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, model.TestKindListening, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempt)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, uint(42), got.SessionID)
	assert.Equal(t, model.TestKindListening, got.Kind)

	empty, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	require.NoError(t, q.Ack(ctx, got))
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestEnqueueDeduplicatesPerSession(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, model.TestKindWriting, 1)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, model.TestKindWriting, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := q.Enqueue(ctx, model.TestKindSpeaking, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	// once acked, the session can be queued again
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, job))
	again, err := q.Enqueue(ctx, job.Kind, job.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, again.ID)
}

func TestRetryDelaysRedelivery(t *testing.T) {
	q, c := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, model.TestKindWriting, 7)
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, job, 4*time.Second, errors.New("grader down")))

	none, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	c.advance(5 * time.Second)
	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempt)
	assert.Equal(t, "grader down", again.LastError)
}

func TestVisibilityTimeoutRedelivers(t *testing.T) {
	q, c := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, model.TestKindReading, 3)
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	n, err := q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.advance(DefaultVisibilityTimeout + time.Second)
	n, err = q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	redelivered, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, job.ID, redelivered.ID)
}

func TestDeadLetter(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, model.TestKindSpeaking, 9)
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.DeadLetter(ctx, job, errors.New("invalid output")))

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
	assert.Equal(t, "invalid output", dead[0].LastError)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{DeadLetter: 1}, stats)
}
