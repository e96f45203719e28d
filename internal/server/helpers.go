package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"airwave/internal/models"
)

// respondAppError maps an application error onto its HTTP status.
func respondAppError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if appErr, ok := err.(*models.AppError); ok {
		switch appErr.Code {
		case "NOT_FOUND":
			status = fiber.StatusNotFound
		case "VALIDATION_ERROR":
			status = fiber.StatusBadRequest
		case "UNAUTHORIZED":
			status = fiber.StatusUnauthorized
		case "FORBIDDEN":
			status = fiber.StatusForbidden
		case "RATE_LIMITED":
			status = fiber.StatusTooManyRequests
		}
	}
	return models.RespondWithError(c, status, err)
}

// identityKeyFor builds the hub identity key for a moderation target.
func identityKeyFor(userID *uint, fingerprint string) string {
	if userID != nil {
		return fmt.Sprintf("user:%d", *userID)
	}
	return fmt.Sprintf("anon:%s", fingerprint)
}
