package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	HeaderUserID = "X-User-ID"
	localsUserID = "user_id"
)

// UserContextMiddleware requires the caller identity forwarded by the gateway
// in X-User-ID and attaches it to the request.
func UserContextMiddleware(logger *zap.Logger) fiber.Handler {
	log := logger.Named("user_ctx")

	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(HeaderUserID))
		if userID == "" {
			log.Warn("❌ X-User-ID required but missing", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID",
			})
		}

		c.Locals(localsUserID, userID)
		return c.Next()
	}
}

// UserID returns the identity attached by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsUserID).(string)
	return id
}
