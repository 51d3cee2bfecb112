package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/you-humble/imagepipe/internal/domain"
)

type addressed struct {
	Digest    string
	Key       string
	OriginURL string
	Deduped   bool
}

// contentAddressor turns an uploaded byte stream into a content-addressed
// blob: identical bytes always land under the same dedup key, so the store
// holds at most one copy of any content.
type contentAddressor struct {
	blobStore BlobStore
}

func newContentAddressor(blobStore BlobStore) *contentAddressor {
	return &contentAddressor{blobStore: blobStore}
}

// Address hashes the stream while buffering it, then uploads only when the
// derived key is absent. The exists-check-then-put pair is not atomic; two
// concurrent uploads of the same content may both put, which is harmless
// because they write identical bytes to the same key.
func (a *contentAddressor) Address(
	ctx context.Context,
	reader io.Reader,
	filename string,
) (addressed, error) {
	var buf bytes.Buffer
	hasher := sha256.New()

	n, err := io.Copy(&buf, io.TeeReader(reader, hasher))
	if err != nil {
		return addressed{}, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return addressed{}, domain.ErrEmptyUpload
	}

	ext := strings.ToLower(filepath.Ext(filename))
	digest := hex.EncodeToString(hasher.Sum(nil))
	key := domain.DedupKey(digest, ext)

	exists, err := a.blobStore.Exists(ctx, key)
	if err != nil {
		return addressed{}, fmt.Errorf("check object exists: %w", err)
	}

	if !exists {
		err := a.blobStore.Put(
			ctx,
			key,
			bytes.NewReader(buf.Bytes()),
			int64(buf.Len()),
			domain.ContentTypeByExt(ext),
		)
		if err != nil {
			return addressed{}, fmt.Errorf("upload object: %w", err)
		}
	}

	return addressed{
		Digest:    digest,
		Key:       key,
		OriginURL: domain.ImageURL(key),
		Deduped:   exists,
	}, nil
}
