package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/config"
	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

// Protected guards the management API. Callers are service integrations
// holding a signed API token, not interactive users, so the check is
// claims-only.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization required",
			})
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization format",
			})
		}

		claims, err := utils.ParseAPIToken(tokenParts[1], config.AppConfig.APITokenSecret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("clientID", claims.ClientID)
		return c.Next()
	}
}
