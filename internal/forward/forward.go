// Package forward fans stored events out to external sinks. Decoding never
// waits on a sink: events pass through a bounded queue and are dropped when
// it is full.
package forward

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tkgateway/internal/core/model"
	"tkgateway/internal/metrics"
)

// ErrClosed is returned by publishers used after Close.
var ErrClosed = errors.New("publisher closed")

// Publisher delivers one event to an external sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event *model.Event) error
	Close() error
}

// Default per-event delivery deadline.
const publishTimeout = 5 * time.Second

// Dispatcher queues events and delivers them to every publisher from a
// single worker, so each sink sees events in insertion order.
type Dispatcher struct {
	queue      chan *model.Event
	publishers []Publisher
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(size int, logger *zap.Logger, publishers ...Publisher) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:      make(chan *model.Event, size),
		publishers: publishers,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start runs the delivery worker until Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for ev := range d.queue {
		for _, p := range d.publishers {
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := p.Publish(pctx, ev)
			cancel()
			if err != nil {
				metrics.ForwardDropped.WithLabelValues(p.Name()).Inc()
				d.logger.Warn("forward failed",
					zap.String("sink", p.Name()),
					zap.String("device", ev.AccountID+"/"+ev.DeviceID),
					zap.Error(err))
			}
		}
	}
}

// Publish enqueues ev without blocking. Events are dropped when the queue is
// full or the dispatcher is closed.
func (d *Dispatcher) Publish(ev *model.Event) {
	if ev == nil || len(d.publishers) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.ForwardDropped.WithLabelValues("closed").Inc()
		return
	}
	select {
	case d.queue <- ev:
	default:
		metrics.ForwardDropped.WithLabelValues("queue").Inc()
		d.logger.Warn("forward queue full, dropping event",
			zap.String("device", ev.AccountID+"/"+ev.DeviceID),
			zap.Int("status", ev.StatusCode))
	}
}

// Close stops accepting events, waits for queued ones to be delivered (or
// ctx to expire) and closes every publisher.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	var err error
	select {
	case <-d.done:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "forward queue not drained")
	}
	for _, p := range d.publishers {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", p.Name())
		}
	}
	return err
}

// encode is the wire form shared by the stream sinks.
func encode(ev *model.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "encode event")
	}
	return data, nil
}

func deviceKey(ev *model.Event) string {
	return ev.AccountID + "/" + ev.DeviceID
}
