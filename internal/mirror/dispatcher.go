package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/frontdesk/internal/outbox"
	"github.com/roach88/frontdesk/internal/record"
)

// Queue is the part of the outbox the dispatcher needs.
// *outbox.Outbox implements it.
type Queue interface {
	Enqueue(ctx context.Context, rec record.Record) (outbox.Message, bool, error)
	Pending(ctx context.Context, limit int) ([]outbox.Message, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// Config holds the parameters for NewDispatcher.
type Config struct {
	// BatchSize caps messages per drain. Defaults to 50.
	BatchSize int

	// SendTimeout bounds each Sink.Send. Defaults to 15s.
	SendTimeout time.Duration

	// Interval is how often Start drains. Defaults to 30s.
	Interval time.Duration

	// MaxBackoff caps the wait after consecutive failed drains, which grows
	// exponentially from Interval. Defaults to 10 * Interval.
	MaxBackoff time.Duration
}

// DrainResult counts the outcome of one drain.
type DrainResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Dispatcher moves messages from the outbox to a sink. It runs either on
// demand (Drain) or as a background loop (Start/Stop).
type Dispatcher struct {
	queue  Queue
	sink   Sink
	cfg    Config
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher but does not start it.
func NewDispatcher(q Queue, sink Sink, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = 10 * cfg.Interval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		queue:  q,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Submit queues a freshly registered record. It is called after Register
// succeeds; its failure does not undo the registration.
func (d *Dispatcher) Submit(ctx context.Context, rec record.Record) error {
	msg, inserted, err := d.queue.Enqueue(ctx, rec)
	if err != nil {
		return fmt.Errorf("submit record %d: %w", rec.ID, err)
	}
	d.logger.Debug("record queued for mirror", "record_id", rec.ID, "message_id", msg.ID, "new", inserted)
	return nil
}

// Drain sends up to BatchSize pending messages in record order. Delivery
// stops at the first failure so rows are never appended out of order.
func (d *Dispatcher) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	msgs, err := d.queue.Pending(ctx, d.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("drain: %w", err)
	}

	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		sendErr := d.sink.Send(sendCtx, m.ID, RowFromRecord(m.Record))
		cancel()

		if sendErr != nil {
			res.Failed++
			d.logger.Warn("mirror delivery failed", "record_id", m.Record.ID, "attempt", m.Attempts+1, "error", sendErr)
			if err := d.queue.MarkFailed(ctx, m.ID, sendErr); err != nil {
				return res, fmt.Errorf("drain: %w", err)
			}
			break
		}

		if err := d.queue.MarkDelivered(ctx, m.ID); err != nil {
			return res, fmt.Errorf("drain: %w", err)
		}
		res.Delivered++
	}

	if res.Delivered > 0 || res.Failed > 0 {
		d.logger.Info("mirror drain", "delivered", res.Delivered, "failed", res.Failed)
	}
	return res, nil
}

// Start begins the background drain loop. It drains immediately, then on the
// configured interval, until ctx is cancelled or Stop is called. After a
// failed drain the wait grows exponentially up to MaxBackoff.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	go d.loop(ctx)
	d.logger.Info("mirror dispatcher started", "interval", d.cfg.Interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)

	b := d.newBackOff()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			wait := d.cfg.Interval
			if d.drainLogged(ctx) {
				b.Reset()
			} else {
				wait = b.NextBackOff()
				d.logger.Debug("mirror backing off", "wait", wait)
			}
			timer.Reset(wait)
		}
	}
}

func (d *Dispatcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.Interval
	b.MaxInterval = d.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// drainLogged drains once and reports whether the sink accepted everything.
func (d *Dispatcher) drainLogged(ctx context.Context) bool {
	res, err := d.Drain(ctx)
	if err != nil && ctx.Err() == nil {
		d.logger.Error("mirror drain error", "error", err)
	}
	return err == nil && res.Failed == 0
}
