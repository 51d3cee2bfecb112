package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/you-humble/imagepipe/internal/domain"
	mio "github.com/you-humble/imagepipe/internal/libs/minio"

	"github.com/minio/minio-go/v7"
)

type minioStore struct {
	db     *minio.Client
	bucket string
}

func NewMinIOStore(ctx context.Context, cfg mio.Config) (*minioStore, error) {
	mioClient, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &minioStore{
		db:     mioClient,
		bucket: cfg.Bucket,
	}, nil
}

func (s *minioStore) Exists(ctx context.Context, key string) (bool, error) {
	objectName, err := s.objectName(key)
	if err != nil {
		return false, err
	}

	_, err = s.db.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == minio.NoSuchKey {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}

	return true, nil
}

// Put overwrites any existing object under the same key. For dedup keys the
// bytes are identical by construction, so the concurrent
// exists-check-then-put race converges to one object.
func (s *minioStore) Put(
	ctx context.Context,
	key string,
	reader io.Reader,
	size int64,
	contentType string,
) error {
	objectName, err := s.objectName(key)
	if err != nil {
		return err
	}

	putSize := size
	if putSize <= 0 {
		putSize = -1
	}

	_, err = s.db.PutObject(ctx, s.bucket, objectName, reader, putSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

func (s *minioStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	objectName, err := s.objectName(key)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.db.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object: %w", err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		if resp := minio.ToErrorResponse(err); resp.Code == minio.NoSuchKey {
			return nil, 0, fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
		}
		return nil, 0, fmt.Errorf("stat object: %w", err)
	}

	return obj, st.Size, nil
}

// OpenByName resolves a public object basename against the dedup namespace
// first, then the artifact namespace. Public references carry only the
// basename, never the prefix.
func (s *minioStore) OpenByName(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	rc, size, err := s.Open(ctx, domain.DedupPrefix+name)
	if err == nil {
		return rc, size, nil
	}
	if !errors.Is(err, domain.ErrObjectNotFound) {
		return nil, 0, err
	}

	return s.Open(ctx, domain.ImagesPrefix+name)
}

func (s *minioStore) objectName(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty object key")
	}

	clean := path.Clean(key)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key: %s", key)
	}

	return strings.TrimLeft(clean, "/"), nil
}
