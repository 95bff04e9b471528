// derby-race-system/middleware/sse_auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware validates `token` and `wallet` from query params.
// EventSource cannot set request headers, so streams authenticate through
// the query string instead of the usual Authorization/X-Wallet-Address pair.
//
// Usage:
//
//	app.Get("/live/races/:id/stream", middleware.SSEAuthMiddleware(), liveService.StreamLiveRace)
func SSEAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("DERBY_SERVICE_TOKEN")

	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		wallet := strings.TrimSpace(c.Query("wallet"))

		if token == "" {
			log.Printf("[SSEAuth] ❌ Missing token query param for %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token in query",
			})
		}
		if token != expectedToken {
			log.Printf("[SSEAuth] ❌ Invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		if wallet != "" {
			c.Locals("wallet_address", strings.ToLower(wallet))
		}
		return c.Next()
	}
}
