package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher drains the queue with a single consumer goroutine. One consumer
// keeps per-recipient delivery order; the external transport applies its own
// rate limiting.
type Dispatcher struct {
	repo         *Repository
	sender       Sender
	logger       *slog.Logger
	pollInterval time.Duration
	stop         chan struct{}
	wg           sync.WaitGroup
}

func NewDispatcher(repo *Repository, sender Sender, logger *slog.Logger, pollInterval time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Dispatcher{
		repo:         repo,
		sender:       sender,
		logger:       logger,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
	}
}

// Start launches the consumer goroutine
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.consume(ctx)
}

// Stop signals the consumer to stop and waits for it
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Dispatcher) consume(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			d.logger.Info("notification dispatcher stopping")
			return
		case <-ctx.Done():
			d.logger.Info("context canceled, notification dispatcher exiting")
			return
		default:
			n, err := d.repo.FetchNext(ctx)
			if err != nil {
				d.logger.Error("fetch notification", "err", err)
				time.Sleep(time.Second)
				continue
			}
			if n == nil {
				time.Sleep(d.pollInterval)
				continue
			}
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) {
	err := d.sender.Send(ctx, n.Recipient, n.Body)
	if err == nil {
		n.Status = "sent"
		if upErr := d.repo.Update(ctx, n); upErr != nil {
			d.logger.Error("mark notification sent", "err", upErr)
		}
		return
	}

	n.Attempts++
	n.LastError = err.Error()
	if n.Attempts >= n.MaxAttempts {
		n.Status = "failed"
		if mvErr := d.repo.MoveToDeadLetter(ctx, n); mvErr != nil {
			d.logger.Error("move notification to dead letter", "err", mvErr)
		}
		return
	}

	backoff := BackoffDuration(n.Attempts)
	t := time.Now().Add(backoff)
	n.NextTryAt = &t
	n.Status = "retry"
	if upErr := d.repo.Update(ctx, n); upErr != nil {
		d.logger.Error("update notification for retry", "err", upErr)
	}
}
