package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/outflo/outflo/app/controllers"
	apiv1 "github.com/outflo/outflo/internal/api/v1"
	"github.com/outflo/outflo/internal/pkg/constants"
	"github.com/outflo/outflo/internal/pkg/env"
	"github.com/outflo/outflo/internal/pkg/middleware"
)

type ApiRouter struct {
	limiterStorage fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.ApiRoute)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Provider webhooks
	ingestGroup := api.Group("/ingest", limiter.New(limiter.Config{
		Max:        env.GetInt("WEBHOOK_RATE_LIMIT", 300),
		Expiration: time.Minute,
		Storage:    h.limiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many webhook deliveries"})
		},
	}))
	ingestGroup.Post("/resend", controllers.GetIngestController().HandleResendWebhook)

	// API v1 routes
	v1 := api.Group("/v1", limiter.New(limiter.Config{
		Max:        env.GetInt("API_RATE_LIMIT", 120),
		Expiration: time.Minute,
		Storage:    h.limiterStorage,
	}))
	v1.Use("/admin", middleware.VaultKeyAuthMiddleware())
	v1.Use("/users", middleware.VaultKeyAuthMiddleware())
	apiServer := apiv1.NewAPIServer(controllers.GetAdminIngestController(), controllers.GetReceiptController())
	apiv1.RegisterHandlers(v1, apiServer)
}

// NewApiRouter creates the API router. A nil storage keeps limiter state in memory.
func NewApiRouter(limiterStorage fiber.Storage) *ApiRouter {
	return &ApiRouter{limiterStorage: limiterStorage}
}
