package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/you-humble/imagepipe/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobStore struct {
	objects map[string][]byte
	openErr error
	putErr  error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) OpenByName(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if f.openErr != nil {
		return nil, 0, f.openErr
	}
	for _, prefix := range []string{domain.DedupPrefix, domain.ImagesPrefix} {
		if data, ok := f.objects[prefix+name]; ok {
			return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
		}
	}
	return nil, 0, fmt.Errorf("%s: %w", name, domain.ErrObjectNotFound)
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressorProcess(t *testing.T) {
	blob := newFakeBlobStore()
	blob.objects["dedup/abc.png"] = pngBytes(t, 100, 60)
	c := NewCompressor(blob)

	job := domain.ProcessingJob{
		TaskID:   "t-1",
		URL:      "/ingestion/image/abc.png",
		TaskType: domain.TypeCompress,
	}

	outputURL, err := c.Process(context.Background(), job)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(outputURL, domain.ImagePathPrefix))
	assert.True(t, strings.HasSuffix(outputURL, ".png"))

	stored, ok := blob.objects[domain.ImagesPrefix+domain.ObjectName(outputURL)]
	require.True(t, ok, "derivative is stored under the images prefix")

	decoded, format, err := image.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 80, decoded.Bounds().Dx(), "scaled to 0.8 of the source width")
	assert.Equal(t, 48, decoded.Bounds().Dy())
}

func TestCompressorTinyImage(t *testing.T) {
	blob := newFakeBlobStore()
	blob.objects["dedup/one.png"] = pngBytes(t, 1, 1)
	c := NewCompressor(blob)

	outputURL, err := c.Process(context.Background(), domain.ProcessingJob{
		TaskID: "t-1",
		URL:    "/ingestion/image/one.png",
	})
	require.NoError(t, err)

	stored := blob.objects[domain.ImagesPrefix+domain.ObjectName(outputURL)]
	decoded, _, err := image.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.Bounds().Dx(), "dimensions never round down to zero")
	assert.Equal(t, 1, decoded.Bounds().Dy())
}

func TestCompressorCorruptImage(t *testing.T) {
	blob := newFakeBlobStore()
	blob.objects["dedup/bad.png"] = []byte("this is not a png")
	c := NewCompressor(blob)

	_, err := c.Process(context.Background(), domain.ProcessingJob{
		TaskID: "t-1",
		URL:    "/ingestion/image/bad.png",
	})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err), "undecodable input never succeeds on retry")
}

func TestCompressorSourceMissing(t *testing.T) {
	c := NewCompressor(newFakeBlobStore())

	_, err := c.Process(context.Background(), domain.ProcessingJob{
		TaskID: "t-1",
		URL:    "/ingestion/image/gone.png",
	})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func TestCompressorStoreUnavailable(t *testing.T) {
	blob := newFakeBlobStore()
	blob.openErr = errors.New("minio: connection refused")
	c := NewCompressor(blob)

	_, err := c.Process(context.Background(), domain.ProcessingJob{
		TaskID: "t-1",
		URL:    "/ingestion/image/abc.png",
	})
	require.Error(t, err)
	assert.False(t, domain.IsPermanent(err), "infrastructure failures stay retryable")
}

type fakeEngine struct {
	text string
	err  error
	mime string
}

func (f *fakeEngine) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	f.mime = mimeType
	return f.text, f.err
}

func TestTextExtractorProcess(t *testing.T) {
	blob := newFakeBlobStore()
	blob.objects["dedup/scan.jpg"] = []byte("jpeg bytes")
	engine := &fakeEngine{text: "INVOICE #42"}
	e := NewTextExtractor(blob, engine)

	outputURL, err := e.Process(context.Background(), domain.ProcessingJob{
		TaskID:   "t-1",
		URL:      "/ingestion/image/scan.jpg",
		TaskType: domain.TypeExtractText,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(outputURL, ".txt"))
	assert.Equal(t, "image/jpeg", engine.mime)

	stored := blob.objects[domain.ImagesPrefix+domain.ObjectName(outputURL)]
	assert.Equal(t, "INVOICE #42", string(stored))
}

func TestTextExtractorEngineErrorClassification(t *testing.T) {
	blob := newFakeBlobStore()
	blob.objects["dedup/scan.jpg"] = []byte("jpeg bytes")

	permanent := NewTextExtractor(blob, &fakeEngine{err: domain.Permanentf("content blocked")})
	_, err := permanent.Process(context.Background(), domain.ProcessingJob{
		TaskID: "t-1", URL: "/ingestion/image/scan.jpg",
	})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err), "classification survives wrapping")

	transient := NewTextExtractor(blob, &fakeEngine{err: errors.New("503 service unavailable")})
	_, err = transient.Process(context.Background(), domain.ProcessingJob{
		TaskID: "t-1", URL: "/ingestion/image/scan.jpg",
	})
	require.Error(t, err)
	assert.False(t, domain.IsPermanent(err))
}

func TestSetDispatch(t *testing.T) {
	blob := newFakeBlobStore()
	blob.objects["dedup/abc.png"] = pngBytes(t, 10, 10)

	set := NewSet().
		Register(domain.TypeCompress, NewCompressor(blob)).
		Register(domain.TypeExtractText, NewTextExtractor(blob, &fakeEngine{text: "hi"}))

	_, err := set.Process(context.Background(), domain.ProcessingJob{
		TaskID: "t-1", URL: "/ingestion/image/abc.png", TaskType: domain.TypeCompress,
	})
	assert.NoError(t, err)

	_, err = set.Process(context.Background(), domain.ProcessingJob{
		TaskID: "t-2", URL: "/ingestion/image/abc.png", TaskType: domain.TaskType("resize"),
	})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err), "unregistered task types are dead on arrival")
}
