package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// Config holds the auth middleware configuration.
type Config struct {
	// ApiKey is the shared key clients must present. Empty disables auth.
	ApiKey string
}

// New creates a middleware that requires the X-Api-Key header to match the
// configured key. With no key configured every request passes through.
func New(config Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if config.ApiKey == "" {
			return c.Next()
		}

		provided := c.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(config.ApiKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid api key",
			})
		}

		return c.Next()
	}
}
