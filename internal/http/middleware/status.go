package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// responseStatus returns the status the client will see. When a handler
// returns an error the global ErrorHandler has not run yet, so the status is
// derived from the error.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
