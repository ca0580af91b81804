package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/grievance-portal/internal/api/dto"
	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/repository"
	"github.com/spec-kit/grievance-portal/internal/service"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

// GrievancesHandler exposes the grievance lifecycle endpoints.
type GrievancesHandler struct {
	grievances *service.GrievanceService
}

// NewGrievancesHandler constructs handler.
func NewGrievancesHandler(grievances *service.GrievanceService) *GrievancesHandler {
	return &GrievancesHandler{grievances: grievances}
}

// Submit handles POST /grievances.
func (h *GrievancesHandler) Submit(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.SubmitGrievanceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	result, err := h.grievances.Submit(c.UserContext(), principal.User, service.SubmitInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Documents:   req.Documents,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.SubmitGrievanceResponse{
		Grievance: dto.NewGrievanceResponse(result.Grievance),
		Warning:   result.Warning,
	}})
}

// List handles GET /grievances. Students see their own; staff see all.
func (h *GrievancesHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := repository.GrievanceFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	for _, s := range splitQueryList(c.Query("status")) {
		status := domain.GrievanceStatus(strings.ToUpper(s))
		if !status.IsValid() {
			return apperrors.NewValidationError("unknown status filter", map[string]any{"status": s})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, s := range splitQueryList(c.Query("category")) {
		category := domain.GrievanceCategory(strings.ToUpper(s))
		if !category.IsValid() {
			return apperrors.NewValidationError("unknown category filter", map[string]any{"category": s})
		}
		filter.Categories = append(filter.Categories, category)
	}

	grievances, err := h.grievances.List(c.UserContext(), principal.User, filter)
	if err != nil {
		return err
	}

	out := make([]dto.GrievanceResponse, 0, len(grievances))
	for i := range grievances {
		out = append(out, dto.NewGrievanceResponse(&grievances[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Get handles GET /grievances/:id, returning the grievance with its thread.
func (h *GrievancesHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	grievance, responses, err := h.grievances.Get(c.UserContext(), c.Params("id"), principal.User)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.GrievanceDetailResponse{
		Grievance: dto.NewGrievanceResponse(grievance),
		Responses: dto.NewAdminResponseViews(responses),
	}})
}

// Delete handles DELETE /grievances/:id. Owner only.
func (h *GrievancesHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	if err := h.grievances.Delete(c.UserContext(), c.Params("id"), principal.User); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Remind handles POST /grievances/:id/reminder. A reminder inside the cooldown
// window is rejected; a failed delivery still acks with a compose fallback.
func (h *GrievancesHandler) Remind(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	ack, err := h.grievances.RequestReminder(c.UserContext(), c.Params("id"), principal.User)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReminderAckResponse(ack)})
}

// SetStatus handles PATCH /grievances/:id/status. Staff only (route guard).
func (h *GrievancesHandler) SetStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	grievance, err := h.grievances.SetStatus(c.UserContext(), c.Params("id"), req.Status, principal.User)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewGrievanceResponse(grievance)})
}

// Assign handles POST /grievances/:id/assign. Staff only (route guard).
func (h *GrievancesHandler) Assign(c *fiber.Ctx) error {
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

	grievance, err := h.grievances.Assign(c.UserContext(), c.Params("id"), req.StaffID, principal.User)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewGrievanceResponse(grievance)})
}

// AddResponse handles POST /grievances/:id/responses. Staff only (route guard).
func (h *GrievancesHandler) AddResponse(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.AddResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	response, err := h.grievances.AddResponse(c.UserContext(), c.Params("id"), principal.User, req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AdminResponseView{
		ID:        response.ID,
		AdminID:   response.AdminID,
		Text:      response.Text,
		CreatedAt: response.CreatedAt,
	}})
}

// SetFeedback handles POST /grievances/:id/feedback. Owner only, after the
// grievance concludes.
func (h *GrievancesHandler) SetFeedback(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	grievance, err := h.grievances.SetFeedback(c.UserContext(), c.Params("id"), principal.User, req.Feedback)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewGrievanceResponse(grievance)})
}

func splitQueryList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
