package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/outflo/outflo/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	admin    *controllers.AdminIngestController
	receipts *controllers.ReceiptController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(admin *controllers.AdminIngestController, receipts *controllers.ReceiptController) *APIServer {
	return &APIServer{
		admin:    admin,
		receipts: receipts,
	}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostAdminReprocess runs one Batch Reprocessor pass.
// Security is enforced via vault key middleware attached in the router.
func (s *APIServer) PostAdminReprocess(c *fiber.Ctx) error {
	return s.admin.HandleReprocess(c)
}

// ListAdminAliases shows every alias row for a local part, active or not.
func (s *APIServer) ListAdminAliases(c *fiber.Ctx, params ListAdminAliasesParams) error {
	return s.admin.HandleListAliases(c)
}

// PostAdminAlias provisions an alias.
func (s *APIServer) PostAdminAlias(c *fiber.Ctx) error {
	return s.admin.HandleCreateAlias(c)
}

// DeleteAdminAlias deactivates an alias. The controller reads id from route params; the
// wrapper already validated it.
func (s *APIServer) DeleteAdminAlias(c *fiber.Ctx, id int) error {
	return s.admin.HandleDeactivateAlias(c)
}

// PostAdminHardReset removes all receipts of one user.
func (s *APIServer) PostAdminHardReset(c *fiber.Ctx) error {
	return s.admin.HandleHardReset(c)
}

func (s *APIServer) GetAdminStats(c *fiber.Ctx) error {
	return s.admin.HandleStats(c)
}

// ListUserReceipts returns the ledger of a user, newest first.
func (s *APIServer) ListUserReceipts(c *fiber.Ctx, userID string) error {
	return s.receipts.HandleListReceipts(c)
}

// GetUserReceipt returns one receipt; receipts of other users are reported as not found.
func (s *APIServer) GetUserReceipt(c *fiber.Ctx, userID string, id string) error {
	return s.receipts.HandleGetReceipt(c)
}
