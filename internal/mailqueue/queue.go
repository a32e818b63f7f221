package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnavailable wraps any underlying redis failure.
var ErrUnavailable = errors.New("mail queue unavailable")

const (
	pendingKey = "emailQueue:pending"
	delayedKey = "emailQueue:delayed"
	deadKey    = "emailQueue:dead"
)

// Queue is the redis-backed job queue. Pending jobs live in a list; jobs
// waiting out a retry backoff sit in a sorted set scored by the time they
// become due.
type Queue struct {
	rdb redis.UniversalClient
	log zerolog.Logger
}

// NewQueue wraps an existing redis client.
func NewQueue(rdb redis.UniversalClient, log zerolog.Logger) *Queue {
	return &Queue{rdb: rdb, log: log}
}

// Enqueue appends a job to the pending list.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, pendingKey, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	q.log.Debug().Str("jobId", job.ID).Str("kind", string(job.Kind)).Msg("email job enqueued")
	return nil
}

// dequeue pops the next pending job. It first promotes any delayed jobs
// whose backoff has elapsed. Returns ok=false when the queue is empty.
func (q *Queue) dequeue(ctx context.Context) (Job, bool, error) {
	if err := q.promoteDue(ctx); err != nil {
		return Job{}, false, err
	}

	payload, err := q.rdb.LPop(ctx, pendingKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, false, nil
		}
		return Job{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		// A corrupt entry would wedge the queue forever; drop it loudly.
		q.log.Error().Err(err).Msg("discarding undecodable email job")
		return Job{}, false, nil
	}
	return job, true, nil
}

// retry parks the job until its backoff elapses.
func (q *Queue) retry(ctx context.Context, job Job, backoff time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(backoff).UnixMilli())
	if err := q.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// bury moves an exhausted job to the dead list for manual inspection.
func (q *Queue) bury(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, deadKey, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// promoteDue moves every delayed job whose due time has passed back onto
// the pending list.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, payload := range due {
		removed, err := q.rdb.ZRem(ctx, delayedKey, payload).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		// Another worker may have promoted it first.
		if removed == 0 {
			continue
		}
		if err := q.rdb.RPush(ctx, pendingKey, payload).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}
