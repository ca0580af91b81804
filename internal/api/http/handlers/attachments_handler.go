package handlers

import (
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/grievance-portal/internal/api/dto"
	"github.com/spec-kit/grievance-portal/internal/storage"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

// maxAttachmentBytes caps a single uploaded document.
const maxAttachmentBytes = 10 << 20

// AttachmentsHandler accepts supporting-document uploads and returns the URL
// to reference from a grievance submission.
type AttachmentsHandler struct {
	store storage.Store
}

// NewAttachmentsHandler constructs handler.
func NewAttachmentsHandler(store storage.Store) *AttachmentsHandler {
	return &AttachmentsHandler{store: store}
}

// Upload handles POST /attachments (multipart form, field "file").
func (h *AttachmentsHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("multipart field \"file\" is required", nil)
	}
	if fileHeader.Size > maxAttachmentBytes {
		return apperrors.NewValidationError("file too large",
			map[string]any{"max_bytes": maxAttachmentBytes})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes+1))
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if int64(len(data)) > maxAttachmentBytes {
		return apperrors.NewValidationError("file too large",
			map[string]any{"max_bytes": maxAttachmentBytes})
	}

	url, err := h.store.Put(c.UserContext(), fileHeader.Filename, data)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AttachmentUploadResponse{
		FileName:  fileHeader.Filename,
		URL:       url,
		SizeBytes: int64(len(data)),
	}})
}
