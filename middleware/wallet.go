// middleware/wallet.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// WalletContextMiddleware extracts the caller's wallet identity set by the
// Gateway after it verified the wallet signature. Mutating settlement routes
// sit behind this; without a wallet there is no caller to bill or pay.
func WalletContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		wallet := strings.TrimSpace(c.Get("X-Wallet-Address"))
		if wallet == "" {
			log.Printf("❌ [WALLET_CTX] X-Wallet-Address missing on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Wallet-Address — request must come through gateway with wallet context",
			})
		}

		// Addresses are compared case-insensitively everywhere downstream.
		c.Locals("wallet_address", strings.ToLower(wallet))
		return c.Next()
	}
}
