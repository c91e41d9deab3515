package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/outflo/outflo/app/models"
	"github.com/outflo/outflo/app/repository"
	"github.com/outflo/outflo/internal/pkg/database"
	"github.com/outflo/outflo/internal/pkg/ingest"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:ctl_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type testEnv struct {
	db      *gorm.DB
	service *ingest.Service
	repos   *repository.Repositories
	app     *fiber.App
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	db := newTestDB(t)
	service := ingest.NewServiceFromDB(db)
	repos := repository.NewRepositories(db, nil)

	ingestCtl := NewIngestController(service, func() string { return secret })
	receiptCtl := NewReceiptController(repos.Receipt)
	adminCtl := NewAdminIngestController(service, repos)

	app := fiber.New()
	app.Post("/api/ingest/resend", ingestCtl.HandleResendWebhook)
	app.Get("/users/:user_id/receipts", receiptCtl.HandleListReceipts)
	app.Get("/users/:user_id/receipts/:id", receiptCtl.HandleGetReceipt)
	app.Post("/admin/reprocess", adminCtl.HandleReprocess)
	app.Get("/admin/aliases", adminCtl.HandleListAliases)
	app.Post("/admin/aliases", adminCtl.HandleCreateAlias)
	app.Delete("/admin/aliases/:id", adminCtl.HandleDeactivateAlias)
	app.Post("/admin/hard-reset", adminCtl.HandleHardReset)
	app.Get("/admin/stats", adminCtl.HandleStats)

	return &testEnv{db: db, service: service, repos: repos, app: app}
}

func (e *testEnv) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func webhookBody(emailID, to, subject string) string {
	return fmt.Sprintf(`{"type":"email.received","created_at":"2025-03-14T08:00:00Z","data":{"email_id":%q,"from":"alerts@bank.example","to":[%q],"subject":%q}}`, emailID, to, subject)
}

func TestHandleResendWebhook_Statuses(t *testing.T) {
	env := newTestEnv(t, "")
	require.NoError(t, env.db.Create(&models.IngestAlias{LocalPart: "alice", UserID: "user-1", IsActive: true}).Error)

	status, body := env.do(t, http.MethodPost, "/api/ingest/resend", webhookBody("em_1", "alice@in.outflo.app", "You spent $12.50 at Cafe X"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "materialized", body["status"])
	assert.Equal(t, "em_1", body["event_id"])
	assert.Equal(t, "alice", body["local_part"])
	assert.Equal(t, false, body["duplicate"])

	status, body = env.do(t, http.MethodPost, "/api/ingest/resend", webhookBody("em_1", "alice@in.outflo.app", "You spent $12.50 at Cafe X"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "duplicate", body["status"])
	assert.Equal(t, true, body["duplicate"])

	status, body = env.do(t, http.MethodPost, "/api/ingest/resend", webhookBody("em_2", "nobody@in.outflo.app", "Hello"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "unbound", body["status"])

	var receipts int64
	require.NoError(t, env.db.Model(&models.Receipt{}).Count(&receipts).Error)
	assert.Equal(t, int64(1), receipts)
}

func TestHandleResendWebhook_Malformed(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "not json", body: `{`, want: "invalid_payload"},
		{name: "no event id", body: `{"data":{"to":["a@b.c"]}}`, want: "missing_event_id"},
		{name: "no recipient", body: `{"data":{"email_id":"e","to":[]}}`, want: "missing_recipient"},
		{name: "bad recipient", body: `{"data":{"email_id":"e","to":["nobody"]}}`, want: "invalid_recipient"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/ingest/resend", tt.body)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, tt.want, body["error"])
		})
	}

	var events int64
	require.NoError(t, env.db.Model(&models.InboundEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}

func TestHandleResendWebhook_RejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, "whsec_c2VjcmV0LWtleQ==")

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/resend", strings.NewReader(webhookBody("em_1", "a@b.c", "x")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", "1")
	req.Header.Set("svix-signature", "v1,bm9wZQ==")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var events int64
	require.NoError(t, env.db.Model(&models.InboundEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}

func TestReceiptEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	require.NoError(t, env.db.Create(&models.IngestAlias{LocalPart: "alice", UserID: "user-1", IsActive: true}).Error)

	_, body := env.do(t, http.MethodPost, "/api/ingest/resend", webhookBody("em_1", "alice@in.outflo.app", "You spent $12.50 at Cafe X"))
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	status, body := env.do(t, http.MethodGet, "/users/user-1/receipts", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 1, body["total"])
	list := body["receipts"].([]any)
	first := list[0].(map[string]any)
	assert.Equal(t, id, first["id"])
	assert.Equal(t, "Cafe X", first["place"])
	assert.Equal(t, "12.50", first["amount"])
	assert.NotContains(t, first, "raw")

	status, body = env.do(t, http.MethodGet, "/users/user-1/receipts/"+id, "")
	assert.Equal(t, fiber.StatusOK, status)
	receipt := body["receipt"].(map[string]any)
	raw := receipt["raw"].(map[string]any)
	assert.Equal(t, "ingest", raw["source"])
	assert.Equal(t, "em_1", raw["event_id"])
	assert.Equal(t, "2025-03-14T08:00:00Z", receipt["time"])

	status, body = env.do(t, http.MethodGet, "/users/user-2/receipts/"+id, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "not_found", body["error"])

	status, body = env.do(t, http.MethodGet, "/users/user-2/receipts", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

type stubReprocessor struct {
	limit int
	stats ingest.RunStats
	err   error
}

func (s *stubReprocessor) Reprocess(ctx context.Context, limit int) (ingest.RunStats, error) {
	s.limit = limit
	return s.stats, s.err
}

func TestHandleReprocess_Limit(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{name: "body", target: "/reprocess", body: `{"limit":10}`, want: 10},
		{name: "query", target: "/reprocess?limit=7", want: 7},
		{name: "none", target: "/reprocess", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubReprocessor{stats: ingest.RunStats{Limit: 25}}
			ctl := NewAdminIngestController(stub, &repository.Repositories{})
			app := fiber.New()
			app.Post("/reprocess", ctl.HandleReprocess)

			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, stub.limit)
		})
	}
}

func TestHandleReprocess_Error(t *testing.T) {
	stub := &stubReprocessor{err: errors.New("db down")}
	ctl := NewAdminIngestController(stub, &repository.Repositories{})
	app := fiber.New()
	app.Post("/reprocess", ctl.HandleReprocess)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reprocess", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestAdminReprocess_BindsLateAlias(t *testing.T) {
	env := newTestEnv(t, "")

	_, body := env.do(t, http.MethodPost, "/api/ingest/resend", webhookBody("em_1", "late@in.outflo.app", "You spent $3 at Kiosk"))
	require.Equal(t, "unbound", body["status"])

	status, body := env.do(t, http.MethodPost, "/admin/aliases", `{"local_part":" Late ","user_id":"user-9"}`)
	require.Equal(t, fiber.StatusCreated, status)
	alias := body["alias"].(map[string]any)
	assert.Equal(t, "late", alias["local_part"])

	status, body = env.do(t, http.MethodPost, "/admin/reprocess", `{"limit":5}`)
	require.Equal(t, fiber.StatusOK, status)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 5, stats["limit"])
	assert.EqualValues(t, 1, stats["bound"])
	assert.EqualValues(t, 1, stats["materialized"])

	status, body = env.do(t, http.MethodGet, "/admin/stats", "")
	require.Equal(t, fiber.StatusOK, status)
	pipeline := body["stats"].(map[string]any)
	assert.EqualValues(t, 0, pipeline["pending"])
	assert.EqualValues(t, 0, pipeline["unbound"])

	status, body = env.do(t, http.MethodGet, "/users/user-9/receipts", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
}

func TestAdminAliases(t *testing.T) {
	env := newTestEnv(t, "")

	status, body := env.do(t, http.MethodPost, "/admin/aliases", `{"local_part":"a@b","user_id":"u"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_alias", body["error"])

	status, _ = env.do(t, http.MethodPost, "/admin/aliases", `{"local_part":"bob"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPost, "/admin/aliases", `{"local_part":"bob","user_id":"u-1"}`)
	require.Equal(t, fiber.StatusCreated, status)
	id := int(body["alias"].(map[string]any)["id"].(float64))
	target := fmt.Sprintf("/admin/aliases/%d", id)

	status, body = env.do(t, http.MethodDelete, target, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["deactivated"])

	status, body = env.do(t, http.MethodDelete, target, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["deactivated"])

	status, _ = env.do(t, http.MethodDelete, "/admin/aliases/9999", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = env.do(t, http.MethodDelete, "/admin/aliases/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAdminHardReset(t *testing.T) {
	env := newTestEnv(t, "")
	require.NoError(t, env.db.Create(&models.IngestAlias{LocalPart: "alice", UserID: "user-1", IsActive: true}).Error)
	env.do(t, http.MethodPost, "/api/ingest/resend", webhookBody("em_1", "alice@in.outflo.app", "A"))
	env.do(t, http.MethodPost, "/api/ingest/resend", webhookBody("em_2", "alice@in.outflo.app", "B"))

	status, _ := env.do(t, http.MethodPost, "/admin/hard-reset", `{"user_id":" "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := env.do(t, http.MethodPost, "/admin/hard-reset", `{"user_id":"user-1"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["deleted"])

	var events int64
	require.NoError(t, env.db.Model(&models.InboundEvent{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)

	// processed events are never rebuilt, so a replay stays a duplicate
	_, body = env.do(t, http.MethodPost, "/api/ingest/resend", webhookBody("em_1", "alice@in.outflo.app", "A"))
	assert.Equal(t, "duplicate", body["status"])
}

func TestConsole(t *testing.T) {
	db := newTestDB(t)
	service := ingest.NewServiceFromDB(db)
	repos := repository.NewRepositories(db, nil)
	ctl := NewConsoleController(service, repos)

	_, err := service.Ingest(context.Background(), ingest.Delivery{
		Provider:  models.ProviderResend,
		EventID:   "em_console",
		Recipient: "ghost@in.outflo.app",
		Subject:   "Parked delivery",
	})
	require.NoError(t, err)

	app := fiber.New(fiber.Config{Views: html.New("../../views", ".html")})
	app.Get("/console", ctl.HandleConsole)
	app.Post("/console/reprocess", ctl.HandleConsoleReprocess)
	app.Post("/console/counters/reset", ctl.HandleConsoleResetCounters)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/console", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Parked delivery")
	assert.Contains(t, string(page), "ghost")

	req := httptest.NewRequest(http.MethodPost, "/console/reprocess", strings.NewReader("limit=10"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/console", resp.Header.Get("Location"))

	req = httptest.NewRequest(http.MethodPost, "/console/reprocess", strings.NewReader("limit=ten"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/console/counters/reset", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

func TestAdminListAliases(t *testing.T) {
	env := newTestEnv(t, "")

	env.do(t, http.MethodPost, "/admin/aliases", `{"local_part":"carol","user_id":"u-1"}`)
	env.do(t, http.MethodPost, "/admin/aliases", `{"local_part":"carol","user_id":"u-2"}`)
	env.do(t, http.MethodPost, "/admin/aliases", `{"local_part":"dave","user_id":"u-3"}`)

	status, body := env.do(t, http.MethodGet, "/admin/aliases?local_part=Carol", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	status, _ = env.do(t, http.MethodGet, "/admin/aliases", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}
