package apiv1

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// ListAdminAliasesParams defines parameters for ListAdminAliases.
type ListAdminAliasesParams struct {
	LocalPart string `form:"local_part" json:"local_part"`
}

// ServerInterface lists the v1 operations described in public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (POST /admin/reprocess)
	PostAdminReprocess(c *fiber.Ctx) error
	// (GET /admin/aliases)
	ListAdminAliases(c *fiber.Ctx, params ListAdminAliasesParams) error
	// (POST /admin/aliases)
	PostAdminAlias(c *fiber.Ctx) error
	// (DELETE /admin/aliases/{id})
	DeleteAdminAlias(c *fiber.Ctx, id int) error
	// (POST /admin/hard-reset)
	PostAdminHardReset(c *fiber.Ctx) error
	// (GET /admin/stats)
	GetAdminStats(c *fiber.Ctx) error
	// (GET /users/{user_id}/receipts)
	ListUserReceipts(c *fiber.Ctx, userID string) error
	// (GET /users/{user_id}/receipts/{id})
	GetUserReceipt(c *fiber.Ctx, userID string, id string) error
}

// ServerInterfaceWrapper extracts path parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func (w *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return w.Handler.GetPing(c)
}

func (w *ServerInterfaceWrapper) PostAdminReprocess(c *fiber.Ctx) error {
	return w.Handler.PostAdminReprocess(c)
}

func (w *ServerInterfaceWrapper) ListAdminAliases(c *fiber.Ctx) error {
	var params ListAdminAliasesParams
	if err := c.QueryParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Errorf("invalid format for query parameters: %w", err).Error())
	}
	if params.LocalPart == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query argument local_part is required")
	}
	return w.Handler.ListAdminAliases(c, params)
}

func (w *ServerInterfaceWrapper) PostAdminAlias(c *fiber.Ctx) error {
	return w.Handler.PostAdminAlias(c)
}

func (w *ServerInterfaceWrapper) DeleteAdminAlias(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Errorf("invalid format for parameter id: %w", err).Error())
	}
	return w.Handler.DeleteAdminAlias(c, id)
}

func (w *ServerInterfaceWrapper) PostAdminHardReset(c *fiber.Ctx) error {
	return w.Handler.PostAdminHardReset(c)
}

func (w *ServerInterfaceWrapper) GetAdminStats(c *fiber.Ctx) error {
	return w.Handler.GetAdminStats(c)
}

func (w *ServerInterfaceWrapper) ListUserReceipts(c *fiber.Ctx) error {
	return w.Handler.ListUserReceipts(c, c.Params("user_id"))
}

func (w *ServerInterfaceWrapper) GetUserReceipt(c *fiber.Ctx) error {
	return w.Handler.GetUserReceipt(c, c.Params("user_id"), c.Params("id"))
}

// FiberServerOptions configures RegisterHandlersWithOptions.
type FiberServerOptions struct {
	BaseURL     string
	Middlewares []fiber.Handler
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, FiberServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router fiber.Router, si ServerInterface, options FiberServerOptions) {
	wrapper := ServerInterfaceWrapper{
		Handler: si,
	}

	for _, m := range options.Middlewares {
		router.Use(m)
	}

	router.Get(options.BaseURL+"/ping", wrapper.GetPing)
	router.Post(options.BaseURL+"/admin/reprocess", wrapper.PostAdminReprocess)
	router.Get(options.BaseURL+"/admin/aliases", wrapper.ListAdminAliases)
	router.Post(options.BaseURL+"/admin/aliases", wrapper.PostAdminAlias)
	router.Delete(options.BaseURL+"/admin/aliases/:id", wrapper.DeleteAdminAlias)
	router.Post(options.BaseURL+"/admin/hard-reset", wrapper.PostAdminHardReset)
	router.Get(options.BaseURL+"/admin/stats", wrapper.GetAdminStats)
	router.Get(options.BaseURL+"/users/:user_id/receipts", wrapper.ListUserReceipts)
	router.Get(options.BaseURL+"/users/:user_id/receipts/:id", wrapper.GetUserReceipt)
}
