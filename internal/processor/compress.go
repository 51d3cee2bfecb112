package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/you-humble/imagepipe/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const compressScale = 0.8

// Compressor produces a smaller PNG derivative: the image is scaled down and
// re-encoded at the strongest compression level.
type Compressor struct {
	blobStore BlobStore
}

func NewCompressor(blobStore BlobStore) *Compressor {
	return &Compressor{blobStore: blobStore}
}

func (c *Compressor) Process(ctx context.Context, job domain.ProcessingJob) (string, error) {
	name := domain.ObjectName(job.URL)

	source, _, err := c.blobStore.OpenByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return "", domain.Permanentf("source object %s missing: %v", name, err)
		}
		return "", fmt.Errorf("open source: %w", err)
	}
	defer source.Close()

	src, format, err := image.Decode(source)
	if err != nil {
		return "", domain.Permanentf("decode image %s: %v", name, err)
	}

	bounds := src.Bounds()
	dstW := max(1, int(float64(bounds.Dx())*compressScale))
	dstH := max(1, int(float64(bounds.Dy())*compressScale))

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&out, dst); err != nil {
		return "", domain.Permanentf("encode png: %v", err)
	}

	key := domain.ArtifactKey(uuid.NewString(), ".png")
	err = c.blobStore.Put(ctx, key, bytes.NewReader(out.Bytes()), int64(out.Len()), "image/png")
	if err != nil {
		return "", fmt.Errorf("store result: %w", err)
	}

	slog.Info("image compressed",
		slog.String("task_id", job.TaskID),
		slog.String("source_format", format),
		slog.String("output_key", key),
		slog.Int("output_bytes", out.Len()),
	)

	return domain.ImageURL(key), nil
}
