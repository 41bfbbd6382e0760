package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/circles/internal/repository"
)

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	Interval    time.Duration // pause between polls when the outbox is drained
	BatchSize   int
	MaxAttempts int           // after this many failures a row is marked failed
	SendTimeout time.Duration // per message
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Interval:    2 * time.Second,
		BatchSize:   50,
		MaxAttempts: 5,
		SendTimeout: 10 * time.Second,
	}
}

// Relay drains notification_outbox in the background.
type Relay struct {
	outbox repository.OutboxRepository
	sender Sender
	config RelayConfig
	logger *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewRelay(outbox repository.OutboxRepository, sender Sender, cfg RelayConfig, logger *slog.Logger) *Relay {
	def := DefaultRelayConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	return &Relay{
		outbox: outbox,
		sender: sender,
		config: cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the polling loop. Calling it twice is harmless.
func (r *Relay) Start() {
	r.startOnce.Do(func() {
		r.logger.Info("starting notification relay",
			slog.Duration("interval", r.config.Interval),
			slog.Int("batchSize", r.config.BatchSize),
		)
		r.wg.Add(1)
		go r.loop()
	})
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("stopping notification relay")
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Relay) loop() {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-timer.C:
			res, err := r.DrainOnce(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.Error("outbox poll failed", slog.String("error", err.Error()))
			}
			timer.Reset(r.nextPoll(res, err))
		}
	}
}

// DrainResult counts what one DrainOnce pass did with its batch.
type DrainResult struct {
	Delivered int
	Failed    int
}

// Handled is the number of messages the pass attempted.
func (d DrainResult) Handled() int { return d.Delivered + d.Failed }

// nextPoll is zero only after a full batch went out cleanly. Any failed send
// waits a whole interval, so a transport outage cannot burn through
// MaxAttempts in a tight loop.
func (r *Relay) nextPoll(res DrainResult, err error) time.Duration {
	if err == nil && res.Failed == 0 && res.Delivered == r.config.BatchSize {
		return 0
	}
	return r.config.Interval
}

// DrainOnce delivers one batch. Failed sends count one attempt against the
// row and leave it pending until MaxAttempts.
func (r *Relay) DrainOnce(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	msgs, err := r.outbox.ListPendingOutbox(ctx, r.config.BatchSize)
	if err != nil {
		return res, err
	}

	for i := range msgs {
		m := &msgs[i]
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		sendCtx, cancel := context.WithTimeout(ctx, r.config.SendTimeout)
		sendErr := r.sender.Send(sendCtx, m)
		cancel()

		if sendErr == nil {
			if err := r.outbox.MarkOutboxSent(ctx, m.ID); err != nil {
				return res, err
			}
			res.Delivered++
			r.logger.Info("notification sent",
				slog.Int64("outboxID", m.ID),
				slog.String("channel", string(m.Channel)),
			)
			continue
		}

		r.logger.Warn("notification delivery failed",
			slog.Int64("outboxID", m.ID),
			slog.String("channel", string(m.Channel)),
			slog.Int("attempt", m.Attempts+1),
			slog.String("error", sendErr.Error()),
		)
		if err := r.outbox.MarkOutboxAttempt(ctx, m.ID, sendErr.Error(), r.config.MaxAttempts); err != nil {
			return res, err
		}
		res.Failed++
	}
	return res, nil
}
