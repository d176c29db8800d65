package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// MaxAttachmentBytes is the per-file upload limit, enforced before any
// upload is attempted.
const MaxAttachmentBytes = 10 << 20 // 10 MiB

// ErrTooLarge rejects uploads over MaxAttachmentBytes.
var ErrTooLarge = fmt.Errorf("attachment exceeds %d bytes", MaxAttachmentBytes)

// ErrNotFound is returned when an object id does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ID        string
	Name      string
	SizeBytes int64
	MimeType  string
}

// ObjectStore persists attachment files. Messages reference objects by the
// returned descriptor; the file must be stored before the message is created.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, name, mimeType string, size int64, r io.Reader) (ObjectInfo, error)
	// DownloadURL returns a URL participants can fetch the object from.
	DownloadURL(bucket, id string) string
	Open(ctx context.Context, bucket, id string) (io.ReadCloser, ObjectInfo, error)
}
