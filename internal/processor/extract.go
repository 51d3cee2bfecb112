package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/you-humble/imagepipe/internal/domain"

	"github.com/google/uuid"
)

// TextEngine is the text-recognition boundary. Implementations classify
// their own failures: domain.Permanent for unrecoverable ones (unreadable
// input, blocked content), plain errors for transient ones.
type TextEngine interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

type TextExtractor struct {
	blobStore BlobStore
	engine    TextEngine
}

func NewTextExtractor(blobStore BlobStore, engine TextEngine) *TextExtractor {
	return &TextExtractor{blobStore: blobStore, engine: engine}
}

func (e *TextExtractor) Process(ctx context.Context, job domain.ProcessingJob) (string, error) {
	name := domain.ObjectName(job.URL)

	source, _, err := e.blobStore.OpenByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return "", domain.Permanentf("source object %s missing: %v", name, err)
		}
		return "", fmt.Errorf("open source: %w", err)
	}
	defer source.Close()

	data, err := io.ReadAll(source)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}

	mimeType := domain.ContentTypeByExt(strings.ToLower(filepath.Ext(name)))
	text, err := e.engine.ExtractText(ctx, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}

	key := domain.ArtifactKey(uuid.NewString(), ".txt")
	err = e.blobStore.Put(ctx, key, strings.NewReader(text), int64(len(text)), "text/plain; charset=utf-8")
	if err != nil {
		return "", fmt.Errorf("store result: %w", err)
	}

	slog.Info("text extracted",
		slog.String("task_id", job.TaskID),
		slog.String("output_key", key),
		slog.Int("text_bytes", len(text)),
	)

	return domain.ImageURL(key), nil
}
