package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// localStore keeps objects on disk under rootDir/<bucket>/<id> with a
// sidecar metadata file. Stands in for a hosted object store.
type localStore struct {
	rootDir string
	baseURL string
	logger  *zap.Logger
}

// NewLocalStore builds a disk-backed object store.
func NewLocalStore(rootDir, baseURL string, logger *zap.Logger) (ObjectStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &localStore{rootDir: rootDir, baseURL: baseURL, logger: logger}, nil
}

type objectMeta struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
}

func (s *localStore) Upload(ctx context.Context, bucket, name, mimeType string, size int64, r io.Reader) (ObjectInfo, error) {
	if size > MaxAttachmentBytes {
		return ObjectInfo{}, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	id := uuid.NewString()
	dir := filepath.Join(s.rootDir, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ObjectInfo{}, err
	}

	path := filepath.Join(dir, id)
	f, err := os.Create(path)
	if err != nil {
		return ObjectInfo{}, err
	}
	// LimitReader guards against callers understating size.
	written, err := io.Copy(f, io.LimitReader(r, MaxAttachmentBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > MaxAttachmentBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return ObjectInfo{}, err
	}

	info := ObjectInfo{ID: id, Name: name, SizeBytes: written, MimeType: mimeType}
	meta, err := json.Marshal(objectMeta{Name: name, SizeBytes: written, MimeType: mimeType})
	if err == nil {
		err = os.WriteFile(path+".meta", meta, 0o644)
	}
	if err != nil {
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return ObjectInfo{}, err
	}

	s.logger.Debug("stored object",
		zap.String("bucket", bucket),
		zap.String("object_id", id),
		zap.Int64("size_bytes", written))
	return info, nil
}

func (s *localStore) DownloadURL(bucket, id string) string {
	return fmt.Sprintf("%s/attachments/%s/%s", s.baseURL, bucket, id)
}

func (s *localStore) Open(_ context.Context, bucket, id string) (io.ReadCloser, ObjectInfo, error) {
	path := filepath.Join(s.rootDir, bucket, id)

	raw, err := os.ReadFile(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	var meta objectMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, ObjectInfo{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	return f, ObjectInfo{ID: id, Name: meta.Name, SizeBytes: meta.SizeBytes, MimeType: meta.MimeType}, nil
}
