package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"init to queued", StatusInit, StatusQueued, true},
		{"queued to processing", StatusQueued, StatusProcessing, true},
		{"processing to done", StatusProcessing, StatusDone, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"queued to failed", StatusQueued, StatusFailed, true},
		{"init to done", StatusInit, StatusDone, true},

		{"no backward queued to init", StatusQueued, StatusInit, false},
		{"no backward done to processing", StatusDone, StatusProcessing, false},
		{"no self transition", StatusProcessing, StatusProcessing, false},
		{"done is terminal", StatusDone, StatusFailed, false},
		{"failed is terminal", StatusFailed, StatusDone, false},
		{"failed stays failed", StatusFailed, StatusFailed, false},
		{"unknown from", TaskStatus("LIMBO"), StatusDone, false},
		{"unknown to", StatusInit, TaskStatus("LIMBO"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusInit.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestTaskTypeValid(t *testing.T) {
	assert.True(t, TypeCompress.Valid())
	assert.True(t, TypeExtractText.Valid())
	assert.False(t, TaskType("").Valid())
	assert.False(t, TaskType("ocr").Valid())
}

func TestProcessingJobWireSchema(t *testing.T) {
	job := ProcessingJob{
		TaskID:           "t-1",
		URL:              "/ingestion/image/abc.png",
		TaskType:         TypeCompress,
		OriginalFilename: "a.png",
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Contains(t, fields, "task_id")
	assert.Contains(t, fields, "url")
	assert.Contains(t, fields, "task_type")
	assert.Contains(t, fields, "original_filename")
	assert.Len(t, fields, 4)
}

func TestPermanentErrors(t *testing.T) {
	base := errors.New("corrupt image")

	assert.True(t, IsPermanent(Permanent(base)))
	assert.True(t, IsPermanent(Permanentf("decode: %v", base)))
	assert.False(t, IsPermanent(base))
	assert.False(t, IsPermanent(nil))
	assert.Nil(t, Permanent(nil))

	// wrapping keeps the classification visible
	wrapped := Permanent(base)
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, base.Error(), wrapped.Error())
}

func TestKeyLayout(t *testing.T) {
	key := DedupKey("ab12cd", ".png")
	assert.Equal(t, "dedup/ab12cd.png", key)
	assert.Equal(t, "/ingestion/image/ab12cd.png", ImageURL(key))
	assert.Equal(t, "ab12cd.png", ObjectName(ImageURL(key)))

	art := ArtifactKey("xyz", ".txt")
	assert.Equal(t, "images/xyz.txt", art)
	assert.Equal(t, "/ingestion/image/xyz.txt", ImageURL(art))
}

func TestContentTypeByExt(t *testing.T) {
	tests := map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
		".bmp":  "image/bmp",
		".svg":  "image/svg+xml",
		".pdf":  "application/octet-stream",
		"":      "application/octet-stream",
	}

	for ext, want := range tests {
		assert.Equal(t, want, ContentTypeByExt(ext), "ext %q", ext)
	}
}
