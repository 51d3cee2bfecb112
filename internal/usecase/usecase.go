package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/you-humble/imagepipe/internal/domain"
)

type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	OpenByName(ctx context.Context, name string) (io.ReadCloser, int64, error)
}

type TaskStore interface {
	Create(ctx context.Context, p domain.CreateTaskParams) (domain.Task, error)
	Get(ctx context.Context, id string) (domain.Task, error)
	UpdateStatus(ctx context.Context, id string, newStatus domain.TaskStatus, failureReason, outputURL string) error
}

type TaskQueue interface {
	Publish(ctx context.Context, job domain.ProcessingJob) error
}

type usecase struct {
	addressor *contentAddressor
	blobStore BlobStore
	taskStore TaskStore
	queue     TaskQueue
}

func New(blobStore BlobStore, taskStore TaskStore, queue TaskQueue) *usecase {
	return &usecase{
		addressor: newContentAddressor(blobStore),
		blobStore: blobStore,
		taskStore: taskStore,
		queue:     queue,
	}
}

// UploadImage runs the ingestion sequence: hash and dedup the content, create
// a task, mark it queued, publish the job. Dedup applies to the blob only:
// every call creates its own task even when the bytes were seen before.
//
// There is no rollback across the steps. If the publish fails the task is
// marked FAILED and the error is returned, so the caller never gets a success
// for a job the broker did not accept.
func (uc *usecase) UploadImage(
	ctx context.Context,
	file io.Reader,
	filename string,
	taskType domain.TaskType,
) (domain.Task, error) {
	if !taskType.Valid() {
		return domain.Task{}, fmt.Errorf("unknown task type %q", taskType)
	}

	addr, err := uc.addressor.Address(ctx, file, filename)
	if err != nil {
		return domain.Task{}, err
	}

	if addr.Deduped {
		slog.Info("content deduplicated",
			slog.String("digest", addr.Digest),
			slog.String("file_name", filename),
		)
	}

	task, err := uc.taskStore.Create(ctx, domain.CreateTaskParams{
		OriginURL:        addr.OriginURL,
		TaskType:         taskType,
		OriginalFilename: filename,
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}

	if err := uc.taskStore.UpdateStatus(ctx, task.ID, domain.StatusQueued, "", ""); err != nil {
		return domain.Task{}, fmt.Errorf("mark task queued: %w", err)
	}
	task.Status = domain.StatusQueued

	job := domain.ProcessingJob{
		TaskID:           task.ID,
		URL:              addr.OriginURL,
		TaskType:         taskType,
		OriginalFilename: filename,
	}
	if err := uc.queue.Publish(ctx, job); err != nil {
		slog.Error("publish job failed",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		reason := fmt.Sprintf("queue publish failed: %s", err)
		if uerr := uc.taskStore.UpdateStatus(ctx, task.ID, domain.StatusFailed, reason, ""); uerr != nil {
			slog.Warn("mark task failed",
				slog.String("task_id", task.ID),
				slog.String("error", uerr.Error()),
			)
		}
		return domain.Task{}, fmt.Errorf("publish job: %w", err)
	}

	return task, nil
}

func (uc *usecase) Task(ctx context.Context, id string) (domain.Task, error) {
	return uc.taskStore.Get(ctx, id)
}

func (uc *usecase) OpenImage(ctx context.Context, fileName string) (io.ReadCloser, int64, error) {
	return uc.blobStore.OpenByName(ctx, fileName)
}
