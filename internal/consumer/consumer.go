package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/imagepipe/internal/domain"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

type TaskStore interface {
	Get(ctx context.Context, id string) (domain.Task, error)
	UpdateStatus(ctx context.Context, id string, newStatus domain.TaskStatus, failureReason, outputURL string) error
}

type WorkerSet interface {
	Process(ctx context.Context, job domain.ProcessingJob) (string, error)
}

type Config struct {
	Stream            string
	Subject           string
	DeadLetterSubject string
	Durable           string

	Workers        int
	MaxDeliver     int
	AckWait        time.Duration
	ProcessTimeout time.Duration
}

// disposition is the outcome of handling one received message. Every code
// path through handle terminates in exactly one of these.
type disposition int

const (
	ackMessage disposition = iota
	nakMessage
	deadLetterMessage
)

type natsConsumer struct {
	cfg       Config
	js        nats.JetStreamContext
	taskStore TaskStore
	workers   WorkerSet

	sub *nats.Subscription
	eg  errgroup.Group
}

func New(cfg Config, js nats.JetStreamContext, taskStore TaskStore, workers WorkerSet) *natsConsumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &natsConsumer{
		cfg:       cfg,
		js:        js,
		taskStore: taskStore,
		workers:   workers,
	}
}

// Run creates the durable consumer and starts the worker pool. MaxAckPending
// bounds the number of outstanding messages, so backpressure lands on the
// broker instead of piling up in-process.
func (c *natsConsumer) Run(ctx context.Context) error {
	_, err := c.js.AddConsumer(c.cfg.Stream, &nats.ConsumerConfig{
		Durable:       c.cfg.Durable,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: c.cfg.Subject,
		MaxAckPending: c.cfg.Workers * 2,
		MaxDeliver:    c.cfg.MaxDeliver,
		AckWait:       c.cfg.AckWait,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("JetStream AddConsumer: %w", err)
	}

	sub, err := c.js.PullSubscribe(c.cfg.Subject, c.cfg.Durable)
	if err != nil {
		return fmt.Errorf("JetStream PullSubscribe: %w", err)
	}
	c.sub = sub

	for range c.cfg.Workers {
		c.eg.Go(func() error {
			c.runWorker(ctx)
			return nil
		})
	}

	slog.Info("consumer is running",
		slog.Int("workers", c.cfg.Workers),
		slog.String("subject", c.cfg.Subject),
		slog.String("durable", c.cfg.Durable),
	)

	return nil
}

// Stop waits for in-flight messages within the grace period of ctx, then
// drains the subscription. Messages still unfinished after the grace period
// are redelivered by the broker; the idempotency guard makes that safe.
func (c *natsConsumer) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		_ = c.eg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("consumer: grace period expired, in-flight messages will be redelivered")
	}

	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			slog.Warn("NATS subscription drain", slog.String("error", err.Error()))
		}
	}

	slog.Info("consumer stopped")
}

func (c *natsConsumer) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			c.handleMsg(ctx, msg)
		}
	}
}

func (c *natsConsumer) handleMsg(ctx context.Context, msg *nats.Msg) {
	deliveries := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		deliveries = meta.NumDelivered
	}

	switch c.handle(ctx, msg.Data, deliveries) {
	case ackMessage:
		if err := msg.Ack(); err != nil {
			slog.Warn("NATS Ack", slog.String("error", err.Error()))
		}
	case nakMessage:
		if err := msg.Nak(); err != nil {
			slog.Warn("NATS Nak", slog.String("error", err.Error()))
		}
	case deadLetterMessage:
		if err := c.publishDeadLetter(context.WithoutCancel(ctx), msg.Data); err != nil {
			slog.Error("dead-letter publish failed, message may be lost if deliveries are exhausted",
				slog.String("error", err.Error()),
				slog.Uint64("deliveries", deliveries),
			)
			if err := msg.Nak(); err != nil {
				slog.Warn("NATS Nak", slog.String("error", err.Error()))
			}
			return
		}
		if err := msg.Term(); err != nil {
			slog.Warn("NATS Term", slog.String("error", err.Error()))
		}
	}
}

// handle drives the per-message state machine. The ack decision is made only
// after the corresponding registry write is durable, so a crash between the
// two sides results in redelivery, never loss.
func (c *natsConsumer) handle(ctx context.Context, data []byte, deliveries uint64) disposition {
	// the stop signal gates admission in runWorker only; a dispatch that is
	// already in flight runs to completion within the drain grace period so
	// it can ack or nak normally instead of aborting on context.Canceled
	ctx = context.WithoutCancel(ctx)

	var job domain.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil || job.TaskID == "" {
		slog.Error("malformed job message",
			slog.Uint64("deliveries", deliveries),
			slog.Int("bytes", len(data)),
		)
		return c.retryOrDeadLetter(deliveries)
	}

	logger := slog.With(
		slog.String("task_id", job.TaskID),
		slog.String("task_type", string(job.TaskType)),
	)

	task, err := c.taskStore.Get(ctx, job.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			logger.Error("no task for message")
			return deadLetterMessage
		}
		logger.Warn("task lookup", slog.String("error", err.Error()))
		return c.retryOrDeadLetter(deliveries)
	}

	// at-least-once guard: a redelivered message whose work already finished
	// is acknowledged without touching the worker
	if task.Status.Terminal() {
		logger.Info("task already finished, skipping",
			slog.String("status", string(task.Status)),
		)
		return ackMessage
	}

	// a task already in PROCESSING means a previous attempt died before its
	// terminal write; reprocess without a redundant transition
	if task.Status != domain.StatusProcessing {
		if err := c.taskStore.UpdateStatus(ctx, job.TaskID, domain.StatusProcessing, "", ""); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				// lost the race with a concurrent delivery; let it finish
				return nakMessage
			}
			logger.Warn("mark processing", slog.String("error", err.Error()))
			return c.retryOrDeadLetter(deliveries)
		}
	}

	procCtx := ctx
	if c.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, c.cfg.ProcessTimeout)
		defer cancel()
	}

	outputURL, err := c.workers.Process(procCtx, job)
	if err != nil {
		if domain.IsPermanent(err) {
			return c.failTask(ctx, logger, job.TaskID, err.Error(), deliveries)
		}
		if c.redeliveriesExhausted(deliveries) {
			// the broker will not deliver again; leaving the task
			// non-terminal would strand it forever
			logger.Warn("retries exhausted", slog.String("error", err.Error()))
			reason := fmt.Sprintf("retries exhausted: %s", err)
			return c.failTask(ctx, logger, job.TaskID, reason, deliveries)
		}
		logger.Warn("processing failed, will retry", slog.String("error", err.Error()))
		return nakMessage
	}

	if err := c.taskStore.UpdateStatus(ctx, job.TaskID, domain.StatusDone, "", outputURL); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return ackMessage
		}
		logger.Warn("mark done", slog.String("error", err.Error()))
		return c.retryOrDeadLetter(deliveries)
	}

	logger.Info("task done", slog.String("output_url", outputURL))
	return ackMessage
}

// failTask writes the FAILED terminal status and acks only once the write is
// durable. When the registry cannot take the write on the last permitted
// delivery, the message moves to the dead-letter subject so the failure is
// never silently lost.
func (c *natsConsumer) failTask(ctx context.Context, logger *slog.Logger, taskID, reason string, deliveries uint64) disposition {
	if err := c.taskStore.UpdateStatus(ctx, taskID, domain.StatusFailed, reason, ""); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return ackMessage
		}
		logger.Warn("mark failed", slog.String("error", err.Error()))
		return c.retryOrDeadLetter(deliveries)
	}
	logger.Info("task failed", slog.String("reason", reason))
	return ackMessage
}

func (c *natsConsumer) retryOrDeadLetter(deliveries uint64) disposition {
	if c.redeliveriesExhausted(deliveries) {
		return deadLetterMessage
	}
	return nakMessage
}

func (c *natsConsumer) redeliveriesExhausted(deliveries uint64) bool {
	return c.cfg.MaxDeliver > 0 && deliveries >= uint64(c.cfg.MaxDeliver)
}

func (c *natsConsumer) publishDeadLetter(ctx context.Context, data []byte) error {
	if c.cfg.DeadLetterSubject == "" {
		return fmt.Errorf("no dead-letter subject configured")
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
		if _, lastErr = c.js.Publish(c.cfg.DeadLetterSubject, data, nats.Context(ctx)); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("publish to %s: %w", c.cfg.DeadLetterSubject, lastErr)
}
