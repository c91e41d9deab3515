package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/outflo/outflo/internal/pkg/database"
	"github.com/outflo/outflo/internal/pkg/env"
	"github.com/outflo/outflo/internal/pkg/ingest"
	"github.com/outflo/outflo/internal/pkg/resend"
)

const (
	webhookTimeout      = 15 * time.Second
	resendWebhookSecret = "RESEND_WEBHOOK_SECRET"
)

// IngestController handles provider webhooks.
type IngestController struct {
	service *ingest.Service
	secret  func() string
	now     func() time.Time
}

// NewIngestController creates the webhook controller. secret returns the Svix signing
// secret; an empty secret disables signature checks.
func NewIngestController(service *ingest.Service, secret func() string) *IngestController {
	if secret == nil {
		secret = func() string { return "" }
	}
	return &IngestController{
		service: service,
		secret:  secret,
		now:     time.Now,
	}
}

// HandleResendWebhook runs a Resend inbound email webhook through the intake state machine.
// Unbound and duplicate deliveries are acknowledged with 200 so the provider stops retrying.
func (ic *IngestController) HandleResendWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	now := ic.now()

	if secret := strings.TrimSpace(ic.secret()); secret != "" {
		msgID := firstHeaderValue(c, "svix-id", "webhook-id")
		timestamp := firstHeaderValue(c, "svix-timestamp", "webhook-timestamp")
		signature := firstHeaderValue(c, "svix-signature", "webhook-signature")
		if !resend.VerifySignature(rawBody, msgID, timestamp, signature, secret, now) {
			log.Warnf("[Ingest] Rejected Resend webhook %q with invalid signature", msgID)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature", "message": "Webhook signature verification failed"})
		}
	}

	delivery, err := resend.Decode(rawBody, now)
	if err != nil {
		return writeIntakeError(c, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	result, err := ic.service.Ingest(ctx, delivery)
	if err != nil {
		return writeIntakeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":         true,
		"status":     result.Status,
		"id":         result.ID,
		"event_id":   result.ProviderEventID,
		"local_part": result.LocalPart,
		"duplicate":  !result.Inserted,
	})
}

// writeIntakeError maps pipeline errors to the webhook response contract: 400 for payloads
// that can never succeed, 500 for anything the provider should retry.
func writeIntakeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ingest.ErrMissingEventID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_event_id", "message": "Payload has no event id"})
	case errors.Is(err, ingest.ErrMissingRecipient):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_recipient", "message": "Payload has no recipient"})
	case errors.Is(err, ingest.ErrInvalidRecipient):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_recipient", "message": "Recipient address is not routable"})
	case ingest.IsMalformed(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Payload could not be decoded"})
	case errors.Is(err, ingest.ErrMaterialize):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "materialize_failed", "message": "Event stored but not yet materialized"})
	default:
		log.Errorf("[Ingest] Webhook failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed", "message": "Event could not be stored"})
	}
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(c.Get(key)); value != "" {
			return value
		}
	}
	return ""
}

var ingestController *IngestController

// InitializeIngestController sets the global webhook controller.
func InitializeIngestController(service *ingest.Service) {
	ingestController = NewIngestController(service, func() string {
		return env.GetEnv(resendWebhookSecret, "")
	})
}

// GetIngestController returns the global webhook controller, building a counter-less
// pipeline from the shared database when none was initialized.
func GetIngestController() *IngestController {
	if ingestController == nil {
		InitializeIngestController(ingest.NewServiceFromDB(database.GetDB()))
	}
	return ingestController
}
