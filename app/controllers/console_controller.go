package controllers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/app/repository"
	"github.com/outflo/outflo/internal/pkg/constants"
	"github.com/outflo/outflo/internal/pkg/metrics/counter"
)

const consolePendingRows = 50

// ConsoleController renders the operator console.
type ConsoleController struct {
	reprocessor Reprocessor
	eventRepo   repository.EventRepository
	statsRepo   repository.StatsRepository
}

func NewConsoleController(reprocessor Reprocessor, repos *repository.Repositories) *ConsoleController {
	return &ConsoleController{
		reprocessor: reprocessor,
		eventRepo:   repos.Event,
		statsRepo:   repos.Stats,
	}
}

type consoleCounter struct {
	Name  string
	Value int64
}

type consolePendingEvent struct {
	ID         string
	Provider   string
	EventID    string
	LocalPart  string
	Subject    string
	ReceivedAt string
	Bound      bool
	Claimed    bool
	Error      string
}

func toConsolePendingEvent(e *models.InboundEvent) consolePendingEvent {
	return consolePendingEvent{
		ID:         e.ID,
		Provider:   e.Provider,
		EventID:    e.EventID,
		LocalPart:  e.LocalPart,
		Subject:    e.Subject,
		ReceivedAt: e.ReceivedAt.UTC().Format(time.RFC3339),
		Bound:      e.IsBound(),
		Claimed:    e.IsClaimed(),
		Error:      e.ProcessingError,
	}
}

// HandleConsole shows counters and the oldest pending events.
func (cc *ConsoleController) HandleConsole(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := cc.statsRepo.Get(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load pipeline stats")
	}
	pending, err := cc.eventRepo.ListPending(ctx, consolePendingRows)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load pending events")
	}

	counters := make([]consoleCounter, 0, len(stats.Counters))
	for _, name := range counter.Fields(stats.Counters) {
		counters = append(counters, consoleCounter{Name: name, Value: stats.Counters[name]})
	}
	rows := make([]consolePendingEvent, 0, len(pending))
	for i := range pending {
		rows = append(rows, toConsolePendingEvent(&pending[i]))
	}

	return c.Render("console", fiber.Map{
		"Title":       "Outflo ingest console",
		"Flash":       flash.Get(c),
		"Stats":       stats,
		"Counters":    counters,
		"Pending":     rows,
		"GeneratedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleConsoleReprocess runs one batch from the console form and redirects back.
func (cc *ConsoleController) HandleConsoleReprocess(c *fiber.Ctx) error {
	limit := 0
	if v := c.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return flash.WithError(c, fiber.Map{"type": "error", "message": "Limit must be a number"}).Redirect(constants.ConsoleRoute)
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stats, err := cc.reprocessor.Reprocess(ctx, limit)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Reprocess failed: " + err.Error()}).Redirect(constants.ConsoleRoute)
	}
	msg := fmt.Sprintf("Reprocessed: scanned %d, claimed %d, bound %d, materialized %d, skipped %d, failed %d",
		stats.Scanned, stats.Claimed, stats.Bound, stats.Materialized, stats.Skipped, stats.Failed)
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": msg}).Redirect(constants.ConsoleRoute)
}

// HandleConsoleResetCounters clears the outcome counters. Row counts are unaffected.
func (cc *ConsoleController) HandleConsoleResetCounters(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := cc.statsRepo.ResetCounters(ctx); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not reset counters: " + err.Error()}).Redirect(constants.ConsoleRoute)
	}
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Counters reset"}).Redirect(constants.ConsoleRoute)
}

var consoleController *ConsoleController

// InitializeConsoleController initializes the global console controller
func InitializeConsoleController(reprocessor Reprocessor) {
	consoleController = NewConsoleController(reprocessor, repository.GetGlobalRepositories())
}

// GetConsoleController returns the global console controller instance
func GetConsoleController() *ConsoleController {
	if consoleController == nil {
		InitializeConsoleController(GetIngestController().service)
	}
	return consoleController
}
