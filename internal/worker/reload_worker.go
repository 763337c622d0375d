package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"schememap/internal/amqp"
	"schememap/internal/dataset"
)

// Reloader rebuilds and installs a dataset snapshot.
type Reloader interface {
	Reload(ctx context.Context, reason string) (*dataset.Dataset, error)
}

// Consumer is the part of the AMQP client the worker drives.
type Consumer interface {
	ConsumeReload(ctx context.Context, handler amqp.Handler) error
	Reconnect() error
}

// ReloadWorker turns reload messages into dataset reloads inside the server
// process.
type ReloadWorker struct {
	reloader Reloader
	consumer Consumer
	backoff  func(attempt int) time.Duration
}

func NewReloadWorker(reloader Reloader, consumer Consumer) *ReloadWorker {
	return &ReloadWorker{
		reloader: reloader,
		consumer: consumer,
		backoff:  amqp.ExponentialBackoff,
	}
}

// HandleReloadMessage processes a single reload message from AMQP
func (w *ReloadWorker) HandleReloadMessage(ctx context.Context, msg *amqp.ReloadMessage) error {
	slog.InfoContext(ctx, "Processing reload message",
		"message_id", msg.ID,
		"reason", msg.Reason,
		"source", msg.Source,
		"requested_at", msg.RequestedAt)

	d, err := w.reloader.Reload(ctx, "amqp:"+msg.Reason)
	if err != nil {
		return fmt.Errorf("reload dataset: %w", err)
	}

	slog.InfoContext(ctx, "Dataset reloaded from message",
		"message_id", msg.ID,
		"dataset_version", d.Version,
		"latency", time.Since(msg.RequestedAt).Round(time.Millisecond))
	return nil
}

// Run consumes until ctx is done, reconnecting with exponential backoff
// when the broker connection drops.
func (w *ReloadWorker) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := w.consumer.ConsumeReload(ctx, w.HandleReloadMessage)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !amqp.IsConnectionError(err) {
			return fmt.Errorf("consume reload messages: %w", err)
		}

		delay := w.backoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer stopped, reconnecting",
			"error", err,
			"attempt", attempt+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if rerr := w.consumer.Reconnect(); rerr != nil {
			slog.ErrorContext(ctx, "AMQP reconnect failed", "error", rerr, "attempt", attempt+1)
			attempt++
			continue
		}
		attempt = 0
	}
}

// ErrNoConsumer is returned by Start when AMQP is not configured.
var ErrNoConsumer = errors.New("no AMQP consumer configured")

// Start runs the worker in a goroutine and returns a channel that yields
// its exit error.
func (w *ReloadWorker) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	if w.consumer == nil {
		done <- ErrNoConsumer
		close(done)
		return done
	}
	go func() {
		defer close(done)
		done <- w.Run(ctx)
	}()
	return done
}
