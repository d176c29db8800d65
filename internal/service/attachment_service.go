package service

import (
	"context"
	"io"

	"github.com/spec-kit/consult-case-service/internal/chat"
	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/storage"
)

// AttachmentService adapts the object store to the chat upload contract and
// serves downloads.
type AttachmentService struct {
	store  storage.ObjectStore
	bucket string
}

// NewAttachmentService constructs the service.
func NewAttachmentService(store storage.ObjectStore, bucket string) *AttachmentService {
	return &AttachmentService{store: store, bucket: bucket}
}

// Upload stores one attachment file and returns its descriptor.
func (s *AttachmentService) Upload(ctx context.Context, upload chat.AttachmentUpload) (domain.AttachmentReference, error) {
	info, err := s.store.Upload(ctx, s.bucket, upload.FileName, upload.MimeType, upload.SizeBytes, upload.Content)
	if err != nil {
		return domain.AttachmentReference{}, err
	}
	return domain.AttachmentReference{
		StorageKey: info.ID,
		FileName:   info.Name,
		MimeType:   info.MimeType,
		SizeBytes:  info.SizeBytes,
	}, nil
}

// DownloadURL returns the participant-facing URL for a stored attachment.
func (s *AttachmentService) DownloadURL(storageKey string) string {
	return s.store.DownloadURL(s.bucket, storageKey)
}

// Open streams a stored attachment.
func (s *AttachmentService) Open(ctx context.Context, storageKey string) (io.ReadCloser, storage.ObjectInfo, error) {
	return s.store.Open(ctx, s.bucket, storageKey)
}
