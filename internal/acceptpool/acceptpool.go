// Package acceptpool bounds the number of concurrently in-flight
// requests with a jobqueue.Stack admitting a fixed number of workers.
package acceptpool

import (
	"net/http"
	"time"

	"github.com/aryszka/jobqueue"
)

// Pool admits at most size concurrent requests; additional requests queue
// and are rejected with 503 if the queue is full or they wait past timeout.
type Pool struct {
	queue *jobqueue.Stack
}

// New returns a Pool admitting size concurrent requests, queuing up to
// queueSize more before rejecting.
func New(size, queueSize int, timeout time.Duration) *Pool {
	return &Pool{
		queue: jobqueue.With(jobqueue.Options{
			MaxConcurrency: size,
			MaxStackSize:   queueSize,
			Timeout:        timeout,
		}),
	}
}

// Wrap returns an http.Handler that admits requests through the pool
// before calling next, replying 503 if the pool rejects admission.
func (p *Pool) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done, err := p.queue.Wait()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		defer done()
		next.ServeHTTP(w, r)
	})
}

// Close releases the pool's background resources.
func (p *Pool) Close() {
	p.queue.Close()
}
