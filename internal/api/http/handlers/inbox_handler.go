package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/grievance-portal/internal/api/dto"
	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/repository"
	"github.com/spec-kit/grievance-portal/internal/service"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

// InboxHandler exposes the admin correspondence endpoints. All routes are
// behind the staff guard.
type InboxHandler struct {
	correspondence *service.CorrespondenceService
}

// NewInboxHandler constructs handler.
func NewInboxHandler(correspondence *service.CorrespondenceService) *InboxHandler {
	return &InboxHandler{correspondence: correspondence}
}

// List handles GET /inbox/messages.
func (h *InboxHandler) List(c *fiber.Ctx) error {
	filter := repository.InboxFilter{
		UnreadOnly:  c.QueryBool("unread", false),
		StarredOnly: c.QueryBool("starred", false),
		Limit:       c.QueryInt("limit", 50),
		Offset:      c.QueryInt("offset", 0),
	}
	if id := strings.TrimSpace(c.Query("grievance_id")); id != "" {
		filter.LinkedGrievanceID = &id
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("from must be an RFC3339 timestamp", map[string]any{"from": raw})
		}
		filter.SentFrom = &ts
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("to must be an RFC3339 timestamp", map[string]any{"to": raw})
		}
		filter.SentTo = &ts
	}

	msgs, err := h.correspondence.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageResponses(msgs)})
}

// CreateInbound handles POST /inbox/messages, recording mail that arrived
// outside the poller.
func (h *InboxHandler) CreateInbound(c *fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.Subject) == "" {
		return apperrors.NewValidationError("from and subject required", nil)
	}

	msg := &domain.CorrespondenceMessage{
		Subject:           req.Subject,
		From:              req.From,
		To:                req.To,
		CC:                req.CC,
		Body:              req.Body,
		LinkedGrievanceID: req.LinkedGrievanceID,
	}
	if err := h.correspondence.CreateInbound(c.UserContext(), msg); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// MarkRead handles POST /inbox/messages/:id/read.
func (h *InboxHandler) MarkRead(c *fiber.Ctx) error {
	msg, err := h.correspondence.MarkRead(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// ToggleStar handles POST /inbox/messages/:id/star.
func (h *InboxHandler) ToggleStar(c *fiber.Ctx) error {
	msg, err := h.correspondence.ToggleStar(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// Delete handles DELETE /inbox/messages/:id.
func (h *InboxHandler) Delete(c *fiber.Ctx) error {
	if err := h.correspondence.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Reply handles POST /inbox/messages/:id/reply.
func (h *InboxHandler) Reply(c *fiber.Ctx) error {
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	msg, err := h.correspondence.Reply(c.UserContext(), c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// ReplyAll handles POST /inbox/messages/:id/reply-all.
func (h *InboxHandler) ReplyAll(c *fiber.Ctx) error {
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	msg, err := h.correspondence.ReplyAll(c.UserContext(), c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// Forward handles POST /inbox/messages/:id/forward.
func (h *InboxHandler) Forward(c *fiber.Ctx) error {
	var req dto.ForwardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	msg, err := h.correspondence.Forward(c.UserContext(), c.Params("id"), req.To, req.CC, req.BCC, req.Note)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// ResolveLinked handles POST /inbox/messages/:id/resolve, resolving the
// grievance the message is linked to.
func (h *InboxHandler) ResolveLinked(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	grievance, err := h.correspondence.ResolveLinkedGrievance(c.UserContext(), c.Params("id"), principal.User)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewGrievanceResponse(grievance)})
}

// AssignLinked handles POST /inbox/messages/:id/assign.
func (h *InboxHandler) AssignLinked(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.StaffID == "" {
		return apperrors.NewValidationError("staff_id is required", nil)
	}

	grievance, err := h.correspondence.AssignLinkedGrievance(c.UserContext(), c.Params("id"), req.StaffID, principal.User)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewGrievanceResponse(grievance)})
}
