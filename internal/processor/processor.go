package processor

import (
	"context"
	"io"

	"github.com/you-humble/imagepipe/internal/domain"
)

type BlobStore interface {
	OpenByName(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// Worker performs one task type's transformation: fetch the source bytes,
// transform, store the result under a fresh key, return its public reference.
//
// Errors wrapped with domain.Permanent move the task to FAILED; anything else
// is treated as transient and triggers redelivery.
type Worker interface {
	Process(ctx context.Context, job domain.ProcessingJob) (string, error)
}

type Set struct {
	workers map[domain.TaskType]Worker
}

func NewSet() *Set {
	return &Set{workers: make(map[domain.TaskType]Worker)}
}

func (s *Set) Register(t domain.TaskType, w Worker) *Set {
	s.workers[t] = w
	return s
}

func (s *Set) Process(ctx context.Context, job domain.ProcessingJob) (string, error) {
	w, ok := s.workers[job.TaskType]
	if !ok {
		return "", domain.Permanentf("no worker for task type %q", job.TaskType)
	}
	return w.Process(ctx, job)
}
