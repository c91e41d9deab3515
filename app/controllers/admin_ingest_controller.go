package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/app/repository"
	"github.com/outflo/outflo/internal/pkg/env"
	"github.com/outflo/outflo/internal/pkg/ingest"
)

// Reprocessor runs one bounded Batch Reprocessor pass.
type Reprocessor interface {
	Reprocess(ctx context.Context, limit int) (ingest.RunStats, error)
}

// ============================================================================
// ADMIN INGEST CONTROLLER - operator commands behind the vault key
// ============================================================================

type AdminIngestController struct {
	reprocessor Reprocessor
	aliasRepo   repository.AliasRepository
	receiptRepo repository.ReceiptRepository
	statsRepo   repository.StatsRepository
	runTimeout  time.Duration
}

func NewAdminIngestController(reprocessor Reprocessor, repos *repository.Repositories) *AdminIngestController {
	return &AdminIngestController{
		reprocessor: reprocessor,
		aliasRepo:   repos.Alias,
		receiptRepo: repos.Receipt,
		statsRepo:   repos.Stats,
		runTimeout:  env.GetDuration("REPROCESS_TIMEOUT", 2*time.Minute),
	}
}

type reprocessRequest struct {
	Limit int `json:"limit"`
}

type createAliasRequest struct {
	LocalPart string `json:"local_part"`
	UserID    string `json:"user_id"`
}

type hardResetRequest struct {
	UserID string `json:"user_id"`
}

// HandleReprocess runs the Batch Reprocessor once. The limit comes from the JSON body or
// the query string; missing or non-positive means the default batch size.
func (ac *AdminIngestController) HandleReprocess(c *fiber.Ctx) error {
	var req reprocessRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Body must be JSON"})
		}
	}
	if req.Limit == 0 {
		req.Limit = c.QueryInt("limit", 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ac.runTimeout)
	defer cancel()

	stats, err := ac.reprocessor.Reprocess(ctx, req.Limit)
	if err != nil {
		log.Errorf("[Admin] Reprocess run failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reprocess_failed", "message": err.Error(), "stats": stats})
	}
	return c.JSON(fiber.Map{"ok": true, "stats": stats})
}

// HandleCreateAlias provisions an active alias for a local part.
func (ac *AdminIngestController) HandleCreateAlias(c *fiber.Ctx) error {
	var req createAliasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Body must be JSON"})
	}

	alias := &models.IngestAlias{
		LocalPart: ingest.NormalizeLocalPart(req.LocalPart),
		UserID:    strings.TrimSpace(req.UserID),
		IsActive:  true,
	}
	if err := alias.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_alias", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ac.aliasRepo.Create(ctx, alias); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create alias"})
	}
	log.Infof("[Admin] Alias %q -> %s created (id %d)", alias.LocalPart, alias.UserID, alias.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "alias": alias})
}

// HandleListAliases lists the alias history of one local part, newest first.
func (ac *AdminIngestController) HandleListAliases(c *fiber.Ctx) error {
	localPart := ingest.NormalizeLocalPart(c.Query("local_part"))
	if localPart == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "local_part is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliases, err := ac.aliasRepo.ListByLocalPart(ctx, localPart)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load aliases"})
	}
	return c.JSON(fiber.Map{"ok": true, "aliases": aliases, "count": len(aliases)})
}

// HandleDeactivateAlias turns an alias off. Deactivating an inactive alias is a no-op.
func (ac *AdminIngestController) HandleDeactivateAlias(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid alias id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := ac.aliasRepo.GetByID(ctx, uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Alias not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load alias"})
	}

	changed, err := ac.aliasRepo.Deactivate(ctx, uint(id))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to deactivate alias"})
	}
	return c.JSON(fiber.Map{"ok": true, "deactivated": changed})
}

// HandleHardReset deletes every receipt of one user. Inbound events are kept.
func (ac *AdminIngestController) HandleHardReset(c *fiber.Ctx) error {
	var req hardResetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Body must be JSON"})
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "user_id is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := ac.receiptRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete receipts"})
	}
	log.Warnf("[Admin] Hard reset for user %s removed %d receipts", userID, deleted)
	return c.JSON(fiber.Map{"ok": true, "deleted": deleted})
}

// HandleStats returns pipeline counters and live row counts.
func (ac *AdminIngestController) HandleStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := ac.statsRepo.Get(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load stats"})
	}
	return c.JSON(fiber.Map{"ok": true, "stats": stats})
}

// ============================================================================
// GLOBAL ADMIN INGEST CONTROLLER INSTANCE - Singleton Pattern
// ============================================================================

var adminIngestController *AdminIngestController

// InitializeAdminIngestController initializes the global admin ingest controller
func InitializeAdminIngestController(reprocessor Reprocessor) {
	adminIngestController = NewAdminIngestController(reprocessor, repository.GetGlobalRepositories())
}

// GetAdminIngestController returns the global admin ingest controller instance
func GetAdminIngestController() *AdminIngestController {
	if adminIngestController == nil {
		InitializeAdminIngestController(GetIngestController().service)
	}
	return adminIngestController
}
