// internal/inverter/worker.go
package inverter

import (
	"context"

	"github.com/rs/zerolog"
)

// Request asks the worker to converge on a mode.
type Request struct {
	Desired uint16
	Reason  string
}

// Worker runs cycles one at a time. Requests that arrive while a cycle is in
// flight collapse into the newest one.
type Worker struct {
	client  *Client
	log     zerolog.Logger
	trigger chan Request
}

// NewWorker binds a worker to a client.
func NewWorker(client *Client, log zerolog.Logger) *Worker {
	return &Worker{
		client:  client,
		log:     log,
		trigger: make(chan Request, 1),
	}
}

// Trigger queues a request without blocking. A pending request is replaced.
// It must be called from a single goroutine.
func (w *Worker) Trigger(req Request) {
	select {
	case w.trigger <- req:
		return
	default:
	}

	select {
	case <-w.trigger:
	default:
	}

	select {
	case w.trigger <- req:
	default:
	}
}

// Run serves requests and emits results until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, out chan<- Result) {
	defer func() {
		if err := w.client.Close(); err != nil {
			w.log.Debug().Err(err).Msg("inverter transport close")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.trigger:
			res := w.client.Cycle(req.Desired, req.Reason)

			ev := w.log.Info()
			if res.Err != nil {
				ev = w.log.Warn().Err(res.Err).Str("kind", Kind(res.Err))
			}
			ev.Str("reason", req.Reason).
				Uint16("desired", req.Desired).
				Bool("wrote", res.Wrote).
				Str("stage", string(res.Stage)).
				Msg("inverter priority cycle")

			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}
