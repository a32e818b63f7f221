package mailqueue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// maxAttempts bounds delivery tries per job; with retryBackoff this
	// gives one retry five seconds after the first failure.
	maxAttempts  = 2
	retryBackoff = 5 * time.Second

	defaultPollInterval = time.Second
)

// Handler delivers one job. The worker owns retry accounting; handlers just
// succeed or fail.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Worker drains the queue with a pool of goroutines. Delivery is
// at-least-once: a job is re-queued on failure until its attempt budget is
// spent, then buried on the dead list.
type Worker struct {
	queue   *Queue
	handler Handler
	log     zerolog.Logger
	size    int
	poll    time.Duration
	backoff time.Duration
}

// NewWorker builds a pool of size goroutines draining queue into handler.
func NewWorker(queue *Queue, handler Handler, log zerolog.Logger, size int) *Worker {
	if size < 1 {
		size = 1
	}
	return &Worker{
		queue:   queue,
		handler: handler,
		log:     log,
		size:    size,
		poll:    defaultPollInterval,
		backoff: retryBackoff,
	}
}

// Run blocks until ctx is cancelled and every goroutine has drained out.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if !w.drain(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain processes jobs until the queue is empty. Returns false when ctx is
// done.
func (w *Worker) drain(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		job, ok, err := w.queue.dequeue(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("email queue read failed")
			return ctx.Err() == nil
		}
		if !ok {
			return true
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	job.Attempts++

	err := w.handler.Handle(ctx, job)
	if err == nil {
		w.log.Info().Str("jobId", job.ID).Str("kind", string(job.Kind)).
			Int("attempt", job.Attempts).Msg("email delivered")
		return
	}

	if job.Attempts >= maxAttempts {
		w.log.Error().Err(err).Str("jobId", job.ID).Str("kind", string(job.Kind)).
			Msg("email delivery exhausted, burying job")
		if buryErr := w.queue.bury(ctx, job); buryErr != nil {
			w.log.Error().Err(buryErr).Str("jobId", job.ID).Msg("could not bury email job")
		}
		return
	}

	w.log.Warn().Err(err).Str("jobId", job.ID).Int("attempt", job.Attempts).
		Msg("email delivery failed, scheduling retry")
	if retryErr := w.queue.retry(ctx, job, w.backoff); retryErr != nil {
		w.log.Error().Err(retryErr).Str("jobId", job.ID).Msg("could not schedule email retry")
	}
}
