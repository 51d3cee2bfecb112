package domain

import (
	"errors"
	"fmt"
	"path"
	"time"
)

type TaskStatus string

const (
	StatusInit       TaskStatus = "INIT"
	StatusQueued     TaskStatus = "QUEUED"
	StatusProcessing TaskStatus = "PROCESSING"
	StatusDone       TaskStatus = "DONE"
	StatusFailed     TaskStatus = "FAILED"
)

// statusRank orders statuses along the task lifecycle. DONE and FAILED share
// the highest rank: both are terminal outcomes of PROCESSING.
var statusRank = map[TaskStatus]int{
	StatusInit:       0,
	StatusQueued:     1,
	StatusProcessing: 2,
	StatusDone:       3,
	StatusFailed:     3,
}

func (s TaskStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether a task may move from one status to another.
// Transitions are forward-only and nothing leaves a terminal status.
func CanTransition(from, to TaskStatus) bool {
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	if from.Terminal() {
		return false
	}
	return tr > fr
}

type TaskType string

const (
	TypeCompress    TaskType = "compress"
	TypeExtractText TaskType = "extract-text"
)

func (t TaskType) Valid() bool {
	return t == TypeCompress || t == TypeExtractText
}

type Task struct {
	ID               string     `json:"id"`
	Status           TaskStatus `json:"status"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	OriginURL        string     `json:"origin_url"`
	OutputURL        string     `json:"output_url,omitempty"`
	TaskType         TaskType   `json:"task_type"`
	OriginalFilename string     `json:"original_filename"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type CreateTaskParams struct {
	OriginURL        string
	TaskType         TaskType
	OriginalFilename string
}

// ProcessingJob is the queue payload. The field names are the wire schema:
// both the publisher and the consumer marshal against this one type, so the
// two sides cannot drift apart.
type ProcessingJob struct {
	TaskID           string   `json:"task_id"`
	URL              string   `json:"url"`
	TaskType         TaskType `json:"task_type"`
	OriginalFilename string   `json:"original_filename"`
}

type UploadResponse struct {
	Message  string `json:"message"`
	TaskID   string `json:"taskId"`
	ImageURL string `json:"imageUrl"`
}

type TaskResponse struct {
	ID            string     `json:"id"`
	Status        TaskStatus `json:"status"`
	FailureReason string     `json:"failureReason,omitempty"`
	OriginURL     string     `json:"originUrl"`
	OutputURL     string     `json:"outputUrl,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrObjectNotFound    = errors.New("object not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyUpload       = errors.New("empty upload")
)

// permanentError marks a failure that redelivery cannot fix: the task should
// move to FAILED instead of being retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func Permanentf(format string, args ...any) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// ImagePathPrefix is the public download route; object references handed to
// clients and to the queue are built from it.
const ImagePathPrefix = "/ingestion/image/"

// Blob store key namespaces: content-addressed originals and produced
// artifacts.
const (
	DedupPrefix  = "dedup/"
	ImagesPrefix = "images/"
)

// DedupKey derives the content-addressed storage key for uploaded bytes.
// Byte-identical content always maps to the same key.
func DedupKey(digest, ext string) string {
	return DedupPrefix + digest + ext
}

// ArtifactKey builds a fresh storage key for a produced artifact.
func ArtifactKey(id, ext string) string {
	return ImagesPrefix + id + ext
}

// ImageURL converts a blob store key ("dedup/ab12.png", "images/xyz.png")
// into the public reference clients and workers use to fetch the bytes.
func ImageURL(objectKey string) string {
	return ImagePathPrefix + path.Base(objectKey)
}

// ObjectName extracts the object basename from a public image reference.
func ObjectName(imageURL string) string {
	return path.Base(imageURL)
}

func ContentTypeByExt(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
