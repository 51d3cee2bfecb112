package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/you-humble/imagepipe/internal/domain"

	"github.com/go-chi/chi/v5"
)

type Usecase interface {
	UploadImage(ctx context.Context, file io.Reader, filename string, taskType domain.TaskType) (domain.Task, error)
	Task(ctx context.Context, id string) (domain.Task, error)
	OpenImage(ctx context.Context, fileName string) (io.ReadCloser, int64, error)
}

type Handler struct {
	maxUploadBytes int64
	usecase        Usecase
}

func NewHandler(maxUploadMb int64, uc Usecase) *Handler {
	return &Handler{
		maxUploadBytes: maxUploadMb << 20,
		usecase:        uc,
	}
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	logger := slog.With(
		slog.String("request_id", RequestID(r.Context())),
		slog.String("handler", "upload-image"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		logger.Error("ParseMultipartForm", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "unable to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("missing file field")
		writeError(w, http.StatusBadRequest, "field `file` is required")
		return
	}
	defer file.Close()

	if header.Size == 0 {
		logger.Warn("empty file", slog.String("file_name", header.Filename))
		writeError(w, http.StatusBadRequest, "no image file provided")
		return
	}

	logger = logger.With(slog.String("file_name", header.Filename))

	taskType := domain.TaskType(strings.TrimSpace(r.FormValue("taskType")))
	if taskType == "" {
		taskType = domain.TypeCompress
	}
	if !taskType.Valid() {
		logger.Warn("unknown task type", slog.String("task_type", string(taskType)))
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}

	task, err := h.usecase.UploadImage(r.Context(), file, header.Filename, taskType)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyUpload) {
			writeError(w, http.StatusBadRequest, "no image file provided")
			return
		}
		logger.Error("UploadImage usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cannot ingest image")
		return
	}

	writeJSON(w, http.StatusOK, domain.UploadResponse{
		Message:  "image ingested, processing task queued",
		TaskID:   task.ID,
		ImageURL: task.OriginURL,
	})
}

func (h *Handler) getImage(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "fileName")
	if fileName == "" {
		writeError(w, http.StatusBadRequest, "missing file name")
		return
	}

	content, size, err := h.usecase.OpenImage(r.Context(), fileName)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		slog.Error("OpenImage",
			slog.String("file_name", fileName),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cannot open image")
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", domain.ContentTypeByExt(strings.ToLower(filepath.Ext(fileName))))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		slog.Error("getImage: send file",
			slog.String("file_name", fileName),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing ID")
		return
	}

	task, err := h.usecase.Task(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		slog.Error("Task usecase",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	writeJSON(w, http.StatusOK, domain.TaskResponse{
		ID:            task.ID,
		Status:        task.Status,
		FailureReason: task.FailureReason,
		OriginURL:     task.OriginURL,
		OutputURL:     task.OutputURL,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
