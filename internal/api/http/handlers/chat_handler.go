package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/consult-case-service/internal/api/dto"
	"github.com/spec-kit/consult-case-service/internal/auth"
	"github.com/spec-kit/consult-case-service/internal/chat"
	"github.com/spec-kit/consult-case-service/internal/domain"
	"github.com/spec-kit/consult-case-service/internal/service"
	"github.com/spec-kit/consult-case-service/internal/storage"
	apperrors "github.com/spec-kit/consult-case-service/pkg/util/errorutil"
)

// ChatHandler exposes per-case chat sessions. Each (case, participant) pair
// owns one session whose transcript is maintained by its synchronizer.
type ChatHandler struct {
	manager     *chat.Manager
	cases       *service.CaseService
	attachments *service.AttachmentService
}

// NewChatHandler constructs handler.
func NewChatHandler(manager *chat.Manager, cases *service.CaseService, attachments *service.AttachmentService) *ChatHandler {
	return &ChatHandler{manager: manager, cases: cases, attachments: attachments}
}

// Open POST /cases/:id/chat/open.
func (h *ChatHandler) Open(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	caseID := c.Params("id")

	// Access is enforced before any transcript is loaded.
	if _, err := h.cases.GetCase(c.Context(), principal, caseID); err != nil {
		return err
	}

	session, err := h.manager.Open(c.Context(), caseID, domain.SenderOf(principal))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.transcriptResponse(session)})
}

// Transcript GET /cases/:id/chat.
func (h *ChatHandler) Transcript(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.transcriptResponse(session)})
}

// Send POST /cases/:id/chat/messages. Accepts JSON for text-only sends and
// multipart form data when attachments are included. Responds immediately
// with the placeholder id; persistence and broadcast happen asynchronously.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	text, uploads, err := parseSendRequest(c)
	if err != nil {
		return err
	}

	tempID, err := session.Send(text, uploads)
	if err != nil {
		return mapSendError(err)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": dto.SendMessageResponse{TempID: tempID}})
}

// Failures GET /cases/:id/chat/failures returns and clears queued send
// failures so the composer can restore lost input.
func (h *ChatHandler) Failures(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	failures := session.DrainFailures()
	items := make([]dto.SendFailureResponse, 0, len(failures))
	for _, failure := range failures {
		items = append(items, dto.SendFailureResponse{
			TempID: failure.TempID,
			Text:   failure.Text,
			Error:  failure.Err.Error(),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Close POST /cases/:id/chat/close.
func (h *ChatHandler) Close(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	h.manager.Close(c.Params("id"), principal.ID)
	return c.JSON(fiber.Map{"data": "chat closed"})
}

// Download GET /attachments/:bucket/:id streams a stored attachment.
func (h *ChatHandler) Download(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	reader, info, err := h.attachments.Open(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NewNotFound("attachment", nil)
		}
		return err
	}
	defer reader.Close()

	c.Set(fiber.HeaderContentType, info.MimeType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+info.Name+`"`)
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (h *ChatHandler) session(c *fiber.Ctx) (*chat.Synchronizer, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	session, ok := h.manager.Get(c.Params("id"), principal.ID)
	if !ok {
		return nil, apperrors.NewConflict("chat session not open", nil)
	}
	return session, nil
}

// parseSendRequest extracts text and attachment uploads. Multipart file
// contents are buffered in memory because delivery outlives the request.
func parseSendRequest(c *fiber.Ctx) (string, []chat.AttachmentUpload, error) {
	if form, err := c.MultipartForm(); err == nil && form != nil {
		text := ""
		if vals := form.Value["text"]; len(vals) > 0 {
			text = vals[0]
		}
		var uploads []chat.AttachmentUpload
		for _, header := range form.File["attachments"] {
			if header.Size > storage.MaxAttachmentBytes {
				return "", nil, apperrors.NewPayloadTooLarge("attachment exceeds size limit")
			}
			file, err := header.Open()
			if err != nil {
				return "", nil, apperrors.NewValidationError("unreadable attachment", nil)
			}
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, file); err != nil {
				file.Close()
				return "", nil, apperrors.NewValidationError("unreadable attachment", nil)
			}
			file.Close()
			uploads = append(uploads, chat.AttachmentUpload{
				FileName:  header.Filename,
				MimeType:  header.Header.Get("Content-Type"),
				SizeBytes: header.Size,
				Content:   bytes.NewReader(buf.Bytes()),
			})
		}
		return text, uploads, nil
	}

	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return "", nil, apperrors.NewValidationError("invalid payload", nil)
	}
	return req.Text, nil, nil
}

func mapSendError(err error) error {
	var sendErr *chat.SendError
	if !errors.As(err, &sendErr) {
		return err
	}
	if errors.Is(sendErr.Err, storage.ErrTooLarge) {
		return apperrors.NewPayloadTooLarge(sendErr.Reason)
	}
	return apperrors.NewConflict(sendErr.Reason, nil)
}

func (h *ChatHandler) transcriptResponse(session *chat.Synchronizer) dto.TranscriptResponse {
	kase := session.Case()
	entries := session.Transcript()
	messages := make([]dto.MessageResponse, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, h.messageResponse(entry))
	}
	return dto.TranscriptResponse{
		CaseID:      kase.ID,
		Status:      kase.Status,
		ChatEnabled: session.ChatEnabled(),
		Stale:       session.Stale(),
		Messages:    messages,
	}
}

func (h *ChatHandler) messageResponse(entry chat.Entry) dto.MessageResponse {
	msg := entry.Message
	resp := dto.MessageResponse{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		SenderRole: msg.SenderRole,
		Text:       msg.Text,
		Pending:    entry.Pending,
		CreatedAt:  msg.CreatedAt,
	}
	for _, att := range msg.Attachments {
		item := dto.AttachmentResponse{
			ID:        att.ID,
			FileName:  att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
		}
		if att.StorageKey != "" {
			item.URL = h.attachments.DownloadURL(att.StorageKey)
		}
		resp.Attachments = append(resp.Attachments, item)
	}
	return resp
}
