// Package background runs long-lived workers started from main.
package background

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher sends an event to the message broker
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// OpsError is an operational failure that was kept away from the API caller
type OpsError struct {
	Component  string            `json:"component"`
	Operation  string            `json:"operation"`
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// OpsErrorReporter is the operational error channel. Report never blocks; a
// single worker logs each error and forwards it to the ops exchange.
type OpsErrorReporter struct {
	ch        chan OpsError
	publisher Publisher
	exchange  string
	logger    *slog.Logger
	interval  time.Duration

	dropped  atomic.Int64
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewOpsErrorReporter(publisher Publisher, exchange string, buffer int, logger *slog.Logger) *OpsErrorReporter {
	if buffer <= 0 {
		buffer = 256
	}
	return &OpsErrorReporter{
		ch:        make(chan OpsError, buffer),
		publisher: publisher,
		exchange:  exchange,
		logger:    logger.With(slog.String("component", "ops_reporter")),
		interval:  time.Minute,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Report enqueues err. When the buffer is full the report is counted and dropped.
func (r *OpsErrorReporter) Report(ctx context.Context, component, operation string, err error, fields map[string]string) {
	if err == nil {
		return
	}
	e := OpsError{
		Component:  component,
		Operation:  operation,
		Error:      err.Error(),
		Fields:     fields,
		OccurredAt: time.Now().UTC(),
	}

	select {
	case r.ch <- e:
	default:
		r.dropped.Add(1)
	}
}

// Start processes reports until Stop is called or ctx is cancelled
func (r *OpsErrorReporter) Start(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case e := <-r.ch:
			r.handle(ctx, e)
		case <-ticker.C:
			r.flushDropped(ctx)
		case <-r.stopCh:
			r.drain(ctx)
			r.logger.Info("ops reporter stopped")
			return
		case <-ctx.Done():
			r.drain(context.WithoutCancel(ctx))
			r.logger.Info("ops reporter context cancelled")
			return
		}
	}
}

// Stop drains queued reports and waits for the worker to exit
func (r *OpsErrorReporter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}

func (r *OpsErrorReporter) drain(ctx context.Context) {
	for {
		select {
		case e := <-r.ch:
			r.handle(ctx, e)
		default:
			r.flushDropped(ctx)
			return
		}
	}
}

func (r *OpsErrorReporter) handle(ctx context.Context, e OpsError) {
	r.logger.ErrorContext(ctx, "operational error",
		slog.String("source", e.Component),
		slog.String("operation", e.Operation),
		slog.String("error", e.Error),
		slog.Any("fields", e.Fields),
	)

	if r.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, r.exchange, "ops."+e.Component+"."+e.Operation, e); err != nil {
		r.logger.WarnContext(ctx, "failed to publish operational error", slog.Any("error", err))
	}
}

func (r *OpsErrorReporter) flushDropped(ctx context.Context) {
	if n := r.dropped.Swap(0); n > 0 {
		r.logger.ErrorContext(ctx, "operational errors dropped, buffer full", slog.Int64("dropped", n))
	}
}
