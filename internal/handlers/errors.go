package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/report-console/internal/repositories"
	"alfredoptarigan/report-console/internal/services"
	"alfredoptarigan/report-console/internal/state"
)

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	var fiberErr *fiber.Error
	var valErr *services.ValidationError
	var netErr *services.NetworkError
	var appErr *services.ApplicationError

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, repositories.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, state.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrPrecondition):
		return fiber.StatusPreconditionFailed
	case errors.As(err, &valErr):
		return fiber.StatusBadRequest
	case errors.As(err, &netErr), errors.As(err, &appErr):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func errorResponse(c *fiber.Ctx, err error) error {
	message := services.NoticeMessage(err)
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		message = fiberErr.Message
	}
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": message,
	})
}
