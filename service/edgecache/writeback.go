package edgecache

import (
	"context"
	"sync"
	"time"

	"github.com/edgerelay/rpc-edge-proxy/logging"
)

const (
	// queue depth before Enqueue falls back to handing the job to a
	// dedicated goroutine so the caller never waits
	writeBackQueueDepth = 256

	// upper bound on how long a single deferred store may run
	writeBackTimeout = 10 * time.Second
)

type writeBackJob struct {
	key      string
	response *CachedResponse
}

// WriteBackQueue runs edge cache stores in the background so the
// client-visible response is never delayed waiting for a cache write.
// Enqueued writes are guaranteed to run to completion: Stop blocks
// until every accepted job has been attempted.
type WriteBackQueue struct {
	store *EdgeStore
	jobs  chan writeBackJob
	wg    sync.WaitGroup

	*logging.ServiceLogger
}

// NewWriteBackQueue returns a started WriteBackQueue draining into the
// provided store
func NewWriteBackQueue(store *EdgeStore, logger *logging.ServiceLogger) *WriteBackQueue {
	q := &WriteBackQueue{
		store:         store,
		jobs:          make(chan writeBackJob, writeBackQueueDepth),
		ServiceLogger: logger,
	}

	go q.run()

	return q
}

// Enqueue schedules a store for the provided key without blocking the
// caller. A store failure is logged, never retried, and never affects
// the response already delivered to the client.
func (q *WriteBackQueue) Enqueue(key string, response *CachedResponse) {
	job := writeBackJob{key: key, response: response}

	q.wg.Add(1)

	select {
	case q.jobs <- job:
	default:
		// queue is full; complete the handoff on a fresh goroutine
		// rather than dropping the write or delaying the response
		go func() {
			q.jobs <- job
		}()
	}
}

// Stop blocks until all accepted writes have been attempted, then
// shuts the worker down. Enqueue must not be called after Stop.
func (q *WriteBackQueue) Stop() {
	q.wg.Wait()
	close(q.jobs)
}

func (q *WriteBackQueue) run() {
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), writeBackTimeout)

		if err := q.store.Store(ctx, job.key, job.response); err != nil {
			q.Logger.Error().
				Str("key", job.key).
				Err(err).
				Msg("deferred edge cache store failed")
		} else {
			q.Logger.Trace().
				Str("key", job.key).
				Msg("deferred edge cache store completed")
		}

		cancel()
		q.wg.Done()
	}
}
