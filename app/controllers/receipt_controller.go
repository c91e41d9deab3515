package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/app/repository"
)

const ledgerReadTimeout = 10 * time.Second

// ReceiptController serves the user-scoped ledger reads.
type ReceiptController struct {
	receiptRepo repository.ReceiptRepository
}

// NewReceiptController creates a new receipt controller with repository
func NewReceiptController(receiptRepo repository.ReceiptRepository) *ReceiptController {
	return &ReceiptController{
		receiptRepo: receiptRepo,
	}
}

type receiptResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Ts        int64           `json:"ts"`
	Time      string          `json:"time"`
	Place     string          `json:"place"`
	Amount    string          `json:"amount"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func toReceiptResponse(r *models.Receipt, withRaw bool) receiptResponse {
	resp := receiptResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		Ts:        r.Ts,
		Time:      time.UnixMilli(r.Ts).UTC().Format(time.RFC3339),
		Place:     r.Place,
		Amount:    r.Amount.StringFixed(2),
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withRaw && len(r.Raw) > 0 {
		resp.Raw = json.RawMessage(r.Raw)
	}
	return resp
}

// HandleListReceipts returns a user's receipts, newest first. total counts all of them
// regardless of limit.
func (rc *ReceiptController) HandleListReceipts(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "user_id missing"})
	}
	limit := c.QueryInt("limit", repository.MaxReceiptPage)

	ctx, cancel := context.WithTimeout(context.Background(), ledgerReadTimeout)
	defer cancel()

	receipts, err := rc.receiptRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load receipts"})
	}

	total, err := rc.receiptRepo.CountByUser(ctx, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count receipts"})
	}

	items := make([]receiptResponse, 0, len(receipts))
	for i := range receipts {
		items = append(items, toReceiptResponse(&receipts[i], false))
	}
	return c.JSON(fiber.Map{"ok": true, "receipts": items, "count": len(items), "total": total})
}

// HandleGetReceipt returns one receipt including its provenance document.
func (rc *ReceiptController) HandleGetReceipt(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user_id"))
	id := strings.TrimSpace(c.Params("id"))
	if userID == "" || id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "user_id or id missing"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), ledgerReadTimeout)
	defer cancel()

	receipt, err := rc.receiptRepo.GetForUser(ctx, userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Receipt not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load receipt"})
	}
	return c.JSON(fiber.Map{"ok": true, "receipt": toReceiptResponse(receipt, true)})
}

var receiptController *ReceiptController

// InitializeReceiptController initializes the global receipt controller
func InitializeReceiptController() {
	receiptController = NewReceiptController(repository.GetGlobalFactory().GetReceiptRepository())
}

// GetReceiptController returns the global receipt controller instance
func GetReceiptController() *ReceiptController {
	if receiptController == nil {
		InitializeReceiptController()
	}
	return receiptController
}
