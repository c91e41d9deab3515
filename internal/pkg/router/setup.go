package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/outflo/outflo/internal/pkg/cache"
	"github.com/outflo/outflo/internal/pkg/env"
)

// limiterDatabase is the Redis database holding rate limiter keys (counters use 0).
const limiterDatabase = 2

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	setup(app, NewApiRouter(newLimiterStorage()), NewHttpRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

// newLimiterStorage shares rate limits across instances through Redis when it is reachable
// and falls back to per-process memory otherwise.
func newLimiterStorage() fiber.Storage {
	if !env.GetBool("RATE_LIMIT_REDIS", true) {
		return nil
	}
	if err := cache.Ping(); err != nil {
		log.Warnf("[Router] Cache unavailable, rate limits are per process: %v", err)
		return nil
	}
	return cache.NewStorage(limiterDatabase)
}
