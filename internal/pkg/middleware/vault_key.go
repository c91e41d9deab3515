package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/outflo/outflo/internal/pkg/env"
)

const (
	VaultKeyEnv        = "OUTFLO_VAULT_KEY"
	LocalVaultAuthed   = "VAULT_AUTHED"
	bcryptHashPrefix   = "$2"
	vaultHeaderPrimary = "X-Outflo-Vault-Key"
	vaultHeaderShort   = "X-Outflo-Vault"
)

// VaultKeyAuthMiddleware guards operator endpoints with the pre-shared vault key. It
// rejects before any store access: 500 when no key is configured, 401 when the request
// carries none, 403 when it does not match.
func VaultKeyAuthMiddleware() fiber.Handler {
	return VaultKeyAuth(func() string { return env.GetEnv(VaultKeyEnv, "") })
}

// VaultKeyAuth is VaultKeyAuthMiddleware with an injectable key source.
func VaultKeyAuth(expected func() string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		want := strings.TrimSpace(expected())
		if want == "" {
			log.Error("[Auth] OUTFLO_VAULT_KEY is not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "vault_not_configured", "message": "Missing OUTFLO_VAULT_KEY"})
		}

		got := extractVaultKeyFromHeader(c)
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing vault key"})
		}
		if !VaultKeyMatches(got, want) {
			log.Warnf("[Auth] Invalid vault key from %s", c.IP())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Invalid vault key"})
		}

		c.Locals(LocalVaultAuthed, true)
		return c.Next()
	}
}

// VaultKeyMatches compares a presented key to the configured one, which may be a bcrypt hash.
func VaultKeyMatches(got, want string) bool {
	if strings.HasPrefix(want, bcryptHashPrefix) {
		return bcrypt.CompareHashAndPassword([]byte(want), []byte(got)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func extractVaultKeyFromHeader(c *fiber.Ctx) string {
	if key := strings.TrimSpace(c.Get(vaultHeaderPrimary)); key != "" {
		return key
	}
	if key := strings.TrimSpace(c.Get(vaultHeaderShort)); key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
