package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/outflo/outflo/app/controllers"
	"github.com/outflo/outflo/app/repository"
	"github.com/outflo/outflo/internal/pkg/archive"
	"github.com/outflo/outflo/internal/pkg/cache"
	"github.com/outflo/outflo/internal/pkg/constants"
	"github.com/outflo/outflo/internal/pkg/database"
	"github.com/outflo/outflo/internal/pkg/env"
	"github.com/outflo/outflo/internal/pkg/ingest"
	"github.com/outflo/outflo/internal/pkg/metrics/counter"
	"github.com/outflo/outflo/internal/pkg/router"
	"github.com/outflo/outflo/internal/pkg/sweeper"
)

func main() {
	app := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			fiberlog.Errorf("[Server] Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/outflo to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// pipeline
	recorder := counter.NewRecorder(cache.GetClient())
	opts := []ingest.Option{ingest.WithRecorder(recorder)}
	if archiver := setupArchive(); archiver != nil {
		opts = append(opts, ingest.WithArchiver(archiver))
	}
	service := ingest.NewServiceFromDB(database.GetDB(), opts...)

	repository.InitializeFactory(database.GetDB(), recorder)
	controllers.InitializeIngestController(service)
	controllers.InitializeAdminIngestController(service)
	controllers.InitializeReceiptController()
	controllers.InitializeConsoleController(service)

	workers := sweeper.NewManager(service, sweeper.ConfigFromEnv())

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:     html.New(basePath+"views", ".html"),
		BodyLimit: 10 * 1024 * 1024, // inbound emails with inline content
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	// background reprocess + stale claim release
	workers.Start()
	app.Hooks().OnShutdown(func() error {
		workers.Stop()
		return nil
	})

	return app
}

// setupArchive returns nil when archiving is disabled or misconfigured; the pipeline
// never depends on it.
func setupArchive() ingest.Archiver {
	cfg, err := archive.LoadConfig()
	if err != nil {
		fiberlog.Warnf("[Archive] Disabled: %v", err)
		return nil
	}
	if !cfg.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := archive.NewClient(ctx, cfg)
	if err != nil {
		fiberlog.Warnf("[Archive] Disabled: %v", err)
		return nil
	}
	return client
}
