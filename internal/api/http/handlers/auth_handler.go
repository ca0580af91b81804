package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/grievance-portal/internal/api/dto"
	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/service"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

const minPasswordLength = 8

// AuthHandler exposes the registration, verification and login endpoints.
type AuthHandler struct {
	auth          *service.AuthService
	allowedDomain string
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, allowedDomain string) *AuthHandler {
	return &AuthHandler{auth: authService, allowedDomain: allowedDomain}
}

// Register handles POST /auth/register. The account stays pending until the
// emailed code is verified; repeat signups for the same address replace the
// earlier attempt.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.UserID = strings.TrimSpace(req.UserID)

	if req.UserID == "" {
		return apperrors.NewValidationError("user_id is required", nil)
	}
	if err := h.validateEmail(req.Email); err != nil {
		return err
	}
	if len(req.Password) < minPasswordLength {
		return apperrors.NewValidationError("password too short",
			map[string]any{"min_length": minPasswordLength})
	}

	result, err := h.auth.Register(c.UserContext(), req.UserID, req.Email, req.Password)
	if err != nil {
		return err
	}

	resp := dto.RegisterResponse{
		Email:            req.Email,
		ExpiresInMinutes: int(domain.PendingRegistrationTTL.Minutes()),
	}
	if !result.Delivery.Delivered {
		resp.Warning = "verification email could not be sent; you may register again to retry"
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": resp})
}

// Verify handles POST /auth/register/verify. A matching code promotes the
// pending signup into a real account and logs it in.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Code == "" {
		return apperrors.NewValidationError("email and code required", nil)
	}

	user, token, exp, err := h.auth.VerifyRegistration(c.UserContext(), req.Email, req.Code)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"user": dto.NewUserResponse(user),
		"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
	}})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, token, exp, err := h.auth.Login(c.UserContext(), strings.ToLower(req.Email), req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"user": dto.NewUserResponse(user),
		"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
	}})
}

// RequestPasswordReset handles POST /auth/password/reset/request. The response
// is uniform whether or not the address exists.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" {
		return apperrors.NewValidationError("email is required", nil)
	}

	if _, err := h.auth.RequestPasswordReset(c.UserContext(), strings.ToLower(req.Email)); err != nil {
		if !apperrors.IsCode(err, "NOT_FOUND") {
			return err
		}
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{
		"message": "if the address is registered, a reset link has been sent",
	}})
}

// ConfirmPasswordReset handles POST /auth/password/reset/confirm.
func (h *AuthHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Token == "" || len(req.NewPassword) < minPasswordLength {
		return apperrors.NewValidationError("token and a sufficiently long new_password required",
			map[string]any{"min_length": minPasswordLength})
	}

	if err := h.auth.ConfirmPasswordReset(c.UserContext(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "password updated"}})
}

// ChangePassword handles POST /auth/password/change for authenticated users.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if len(req.NewPassword) < minPasswordLength {
		return apperrors.NewValidationError("new password too short",
			map[string]any{"min_length": minPasswordLength})
	}

	if err := h.auth.ChangePassword(c.UserContext(), principal.User, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "password updated"}})
}

func (h *AuthHandler) validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return apperrors.NewValidationError("invalid email address", nil)
	}
	if h.allowedDomain != "" && !strings.HasSuffix(strings.ToLower(addr.Address), "@"+strings.ToLower(h.allowedDomain)) {
		return apperrors.NewValidationError("email must belong to the institutional domain",
			map[string]any{"domain": h.allowedDomain})
	}
	return nil
}
