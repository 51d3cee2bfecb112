package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/you-humble/imagepipe/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsecase struct {
	uploadTask domain.Task
	uploadErr  error
	gotType    domain.TaskType
	gotName    string

	task    domain.Task
	taskErr error

	image    []byte
	imageErr error
}

func (f *fakeUsecase) UploadImage(ctx context.Context, file io.Reader, filename string, taskType domain.TaskType) (domain.Task, error) {
	f.gotName = filename
	f.gotType = taskType
	if f.uploadErr != nil {
		return domain.Task{}, f.uploadErr
	}
	return f.uploadTask, nil
}

func (f *fakeUsecase) Task(ctx context.Context, id string) (domain.Task, error) {
	if f.taskErr != nil {
		return domain.Task{}, f.taskErr
	}
	return f.task, nil
}

func (f *fakeUsecase) OpenImage(ctx context.Context, fileName string) (io.ReadCloser, int64, error) {
	if f.imageErr != nil {
		return nil, 0, f.imageErr
	}
	return io.NopCloser(bytes.NewReader(f.image)), int64(len(f.image)), nil
}

func multipartUpload(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestUploadImageOK(t *testing.T) {
	uc := &fakeUsecase{uploadTask: domain.Task{
		ID:        "task-1",
		Status:    domain.StatusQueued,
		OriginURL: "/ingestion/image/abc.png",
	}}
	router := NewRouter(NewHandler(10, uc))

	body, contentType := multipartUpload(t, "cat.png", "png bytes", nil)
	req := httptest.NewRequest(http.MethodPost, "/ingestion/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "/ingestion/image/abc.png", resp.ImageURL)
	assert.Equal(t, "image ingested, processing task queued", resp.Message)

	assert.Equal(t, "cat.png", uc.gotName)
	assert.Equal(t, domain.TypeCompress, uc.gotType, "taskType defaults to compress")
}

func TestUploadImageTaskTypeField(t *testing.T) {
	uc := &fakeUsecase{uploadTask: domain.Task{ID: "task-2", Status: domain.StatusQueued}}
	router := NewRouter(NewHandler(10, uc))

	body, contentType := multipartUpload(t, "doc.png", "png bytes", map[string]string{
		"taskType": "extract-text",
	})
	req := httptest.NewRequest(http.MethodPost, "/ingestion/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TypeExtractText, uc.gotType)
}

func TestUploadImageUnknownTaskType(t *testing.T) {
	router := NewRouter(NewHandler(10, &fakeUsecase{}))

	body, contentType := multipartUpload(t, "doc.png", "png bytes", map[string]string{
		"taskType": "resize",
	})
	req := httptest.NewRequest(http.MethodPost, "/ingestion/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadImageMissingFile(t *testing.T) {
	router := NewRouter(NewHandler(10, &fakeUsecase{}))

	body, contentType := multipartUpload(t, "", "", map[string]string{"taskType": "compress"})
	req := httptest.NewRequest(http.MethodPost, "/ingestion/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "field `file` is required", resp.Message)
}

func TestUploadImageEmptyFile(t *testing.T) {
	router := NewRouter(NewHandler(10, &fakeUsecase{}))

	body, contentType := multipartUpload(t, "empty.png", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/ingestion/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "no image file provided", resp.Message)
}

func TestUploadImageNotMultipart(t *testing.T) {
	router := NewRouter(NewHandler(10, &fakeUsecase{}))

	req := httptest.NewRequest(http.MethodPost, "/ingestion/upload-image", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadImageUsecaseError(t *testing.T) {
	uc := &fakeUsecase{uploadErr: io.ErrUnexpectedEOF}
	router := NewRouter(NewHandler(10, uc))

	body, contentType := multipartUpload(t, "cat.png", "png bytes", nil)
	req := httptest.NewRequest(http.MethodPost, "/ingestion/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetImage(t *testing.T) {
	uc := &fakeUsecase{image: []byte("fake png content")}
	router := NewRouter(NewHandler(10, uc))

	req := httptest.NewRequest(http.MethodGet, "/ingestion/image/abc.png", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "16", rec.Header().Get("Content-Length"))
	assert.Equal(t, "fake png content", rec.Body.String())
}

func TestGetImageNotFound(t *testing.T) {
	uc := &fakeUsecase{imageErr: domain.ErrObjectNotFound}
	router := NewRouter(NewHandler(10, uc))

	req := httptest.NewRequest(http.MethodGet, "/ingestion/image/missing.png", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTask(t *testing.T) {
	uc := &fakeUsecase{task: domain.Task{
		ID:        "task-9",
		Status:    domain.StatusDone,
		OriginURL: "/ingestion/image/abc.png",
		OutputURL: "/ingestion/image/out.png",
	}}
	router := NewRouter(NewHandler(10, uc))

	req := httptest.NewRequest(http.MethodGet, "/task/task-9", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.TaskResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "task-9", resp.ID)
	assert.Equal(t, domain.StatusDone, resp.Status)
	assert.Equal(t, "/ingestion/image/out.png", resp.OutputURL)
	assert.Empty(t, resp.FailureReason)
}

func TestGetTaskNotFound(t *testing.T) {
	uc := &fakeUsecase{taskErr: domain.ErrTaskNotFound}
	router := NewRouter(NewHandler(10, uc))

	req := httptest.NewRequest(http.MethodGet, "/task/missing", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
