package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/outflo/outflo/app/controllers"
	"github.com/outflo/outflo/internal/pkg/constants"
	"github.com/outflo/outflo/internal/pkg/env"
	"github.com/outflo/outflo/internal/pkg/middleware"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	console := controllers.GetConsoleController()

	consoleGroup := app.Group(constants.ConsoleRoute, consoleAuthMiddleware())
	consoleGroup.Get("/", console.HandleConsole)
	consoleGroup.Post("/reprocess", console.HandleConsoleReprocess)
	consoleGroup.Post("/counters/reset", console.HandleConsoleResetCounters)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

// consoleAuthMiddleware asks the browser for basic auth; the password is the vault key.
func consoleAuthMiddleware() fiber.Handler {
	return basicauth.New(basicauth.Config{
		Realm: "Outflo console",
		Authorizer: func(user, pass string) bool {
			want := env.GetEnv(middleware.VaultKeyEnv, "")
			if want == "" || user != env.GetEnv("OUTFLO_CONSOLE_USER", "operator") {
				return false
			}
			return middleware.VaultKeyMatches(pass, want)
		},
	})
}
