package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// Dispatcher queues events and publishes them from a background worker.
// It owns the publisher: Close drains the queue and closes it.
type Dispatcher struct {
	publisher Publisher
	queue     chan Event
	wg        sync.WaitGroup
	once      sync.Once
}

// NewDispatcher starts the worker.
func NewDispatcher(publisher Publisher, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan Event, buffer),
	}

	d.wg.Add(1)
	go d.worker()

	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.publisher.Publish(ctx, ev); err != nil {
			metrics.EventPublishError()
			log.Error().Err(err).
				Str("type", ev.Type).
				Str("reference", ev.Reference).
				Msg("Failed to publish ledger event")
		}
		cancel()
	}
}

// Notify enqueues ev, dropping it if the queue is full.
func (d *Dispatcher) Notify(_ context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case d.queue <- ev:
	default:
		metrics.EventPublishError()
		log.Warn().Str("type", ev.Type).Str("reference", ev.Reference).Msg("Event queue full, dropping event")
	}
}

// Close stops accepting events, flushes the queue and closes the publisher.
func (d *Dispatcher) Close() error {
	var err error
	d.once.Do(func() {
		close(d.queue)
		d.wg.Wait()
		err = d.publisher.Close()
	})
	return err
}
