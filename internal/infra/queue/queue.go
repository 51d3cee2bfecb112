package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/you-humble/imagepipe/internal/domain"

	"github.com/nats-io/nats.go"
)

type publisher struct {
	js      nats.JetStreamContext
	subject string
}

func New(js nats.JetStreamContext, subject string) *publisher {
	return &publisher{
		js:      js,
		subject: subject,
	}
}

// Publish hands a processing job to the stream. The returned error must be
// surfaced by the caller: a job that was never accepted by the broker leaves
// its task stranded.
func (q *publisher) Publish(ctx context.Context, job domain.ProcessingJob) error {
	if job.TaskID == "" {
		return fmt.Errorf("empty task id")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.TaskID, err)
	}

	msg := &nats.Msg{
		Subject: q.subject,
		Data:    data,
		Header:  nats.Header{},
	}

	ack, err := q.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.TaskID, err)
	}

	slog.Debug(
		"job published",
		slog.String("task_id", job.TaskID),
		slog.String("subject", q.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}
