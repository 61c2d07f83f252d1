//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/bengkelku/api/internal/config"
	"github.com/bengkelku/api/internal/ledger"
	"github.com/bengkelku/api/internal/router"
	"github.com/bengkelku/api/internal/service"
	"github.com/bengkelku/api/internal/snapshot"
	"github.com/bengkelku/api/internal/store/postgres"
	"github.com/bengkelku/api/internal/ws"
)

// TestIntegrationFlow exercises the full API lifecycle against a real
// PostgreSQL database: reference data setup, order editing and resave,
// warning-blocked settlement, override settlement, and payroll.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	// Run migrations
	runMigrations(t, connStr)

	// Create pgxpool connection
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	// Initialize dependencies
	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
	}
	st := postgres.New(pool)
	loader := snapshot.NewLoader(st, nil, time.Minute)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit — Hub has no shutdown mechanism.
	// Acceptable for tests; production should add context-based shutdown.
	go hub.Run()

	orch := service.NewOrchestrator(st, ledger.NewInventoryUpdater(st),
		ledger.NewShopSync(st), ledger.NewWorkerSync(st), loader, hub)

	// Build router
	r := router.New(cfg, st, orch, loader, hub)

	// Create HTTP test server
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Create owner user (manual DB insert to bootstrap) ---
	createOwnerUser(t, ctx, pool)

	// --- 2. Login as owner ---
	token := login(t, server, "owner@test.com", "password123")

	// --- 3. Create reference data through the API ---
	shopResp := httpPostJSON(t, server, "/shops", map[string]interface{}{
		"name": "AutoParts Sentosa",
	}, token)
	if shopResp["kind"].(string) != "SHOP" {
		t.Fatalf("shop kind: got %v", shopResp["kind"])
	}

	workerResp := httpPostJSON(t, server, "/workers", map[string]interface{}{
		"name":            "Budi Santoso",
		"payroll_percent": "40",
	}, token)
	workerID := uuid.MustParse(workerResp["id"].(string))

	itemResp := httpPostJSON(t, server, "/inventory", map[string]interface{}{
		"code":      "OF-001",
		"name":      "Oil Filter",
		"price":     "80",
		"on_hand":   "10",
		"unit":      "pcs",
		"shop_name": "AutoParts Sentosa",
	}, token)
	itemID := uuid.MustParse(itemResp["id"].(string))

	// --- 4. Create an order ---
	orderResp := httpPostJSON(t, server, "/orders", map[string]interface{}{
		"client":  "Pak Joko",
		"vehicle": "B 1234 XY",
	}, token)
	orderID := uuid.MustParse(orderResp["id"].(string))
	if orderResp["status"].(string) != "OPEN" {
		t.Fatalf("new order status: got %v, want OPEN", orderResp["status"])
	}

	// --- 5. Save lines: one part, one labor ---
	rows := []map[string]interface{}{
		{
			"kind":         "PART",
			"name":         "Oil Filter",
			"inventory_id": itemID.String(),
			"qty":          "2",
			"price":        "100",
		},
		{
			"kind":         "LABOR",
			"name":         "Ganti Oli",
			"counterparty": "Budi Santoso",
			"qty":          "1",
			"price":        "150",
		},
	}
	saveResp := httpPutJSON(t, server, fmt.Sprintf("/orders/%s/lines", orderID), map[string]interface{}{
		"rows":          rows,
		"open_snapshot": map[string]string{},
	}, token)

	order := saveResp["order"].(map[string]interface{})
	if got := order["grand_total"].(string); got != "350.00" {
		t.Fatalf("grand_total: got %s, want 350.00", got)
	}
	if warnings := saveResp["warnings"].([]interface{}); len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	openSnap := toStringMap(t, saveResp["open_snapshot"])

	// --- 6. Inventory reflects the consumption delta ---
	item := httpGetJSON(t, server, fmt.Sprintf("/inventory/%s", itemID), token)
	if got := item["consumed"].(string); got != "2" {
		t.Fatalf("consumed: got %s, want 2", got)
	}
	if item["linked_order_id"] == nil {
		t.Fatal("item not linked to the open order")
	}

	// --- 7. Resave with a larger quantity; counters replace, not accumulate ---
	rows[0]["qty"] = "5"
	saveResp = httpPutJSON(t, server, fmt.Sprintf("/orders/%s/lines", orderID), map[string]interface{}{
		"rows":          rows,
		"open_snapshot": openSnap,
	}, token)
	openSnap = toStringMap(t, saveResp["open_snapshot"])

	item = httpGetJSON(t, server, fmt.Sprintf("/inventory/%s", itemID), token)
	if got := item["consumed"].(string); got != "5" {
		t.Fatalf("consumed after resave: got %s, want 5", got)
	}

	// --- 8. Shop history mirrors the current state of the order ---
	history := httpGetJSONArray(t, server, fmt.Sprintf("/shops/%s/history", shopResp["id"]), token)
	if len(history) != 1 {
		t.Fatalf("shop history days: got %d, want 1", len(history))
	}

	// --- 9. Over-consume and attempt settle: blocked with 409 ---
	rows[0]["qty"] = "15"
	status, blocked := httpPutJSONStatus(t, server, fmt.Sprintf("/orders/%s/lines", orderID), map[string]interface{}{
		"rows":          rows,
		"open_snapshot": openSnap,
		"settle":        true,
	}, token)
	if status != http.StatusConflict {
		t.Fatalf("blocked settle status: got %d, want 409", status)
	}
	if blocked["warnings"] == nil {
		t.Fatalf("blocked settle response has no warnings: %v", blocked)
	}

	// --- 10. Settle with override as OWNER ---
	saveResp = httpPutJSON(t, server, fmt.Sprintf("/orders/%s/lines", orderID), map[string]interface{}{
		"rows":          rows,
		"open_snapshot": openSnap,
		"settle":        true,
		"override":      true,
	}, token)
	if !saveResp["flagged"].(bool) {
		t.Fatal("override settle not flagged")
	}
	order = saveResp["order"].(map[string]interface{})
	if order["status"].(string) != "SETTLED" {
		t.Fatalf("order status: got %v, want SETTLED", order["status"])
	}

	// --- 11. Reopen ---
	reopenResp := httpPostJSON(t, server, fmt.Sprintf("/orders/%s/reopen", orderID), nil, token)
	order = reopenResp["order"].(map[string]interface{})
	if order["status"].(string) != "OPEN" {
		t.Fatalf("reopened status: got %v, want OPEN", order["status"])
	}

	// --- 12. Payroll settlement pays the worker's outstanding records ---
	payrollResp := httpPostJSON(t, server, fmt.Sprintf("/workers/%s/payroll", workerID), nil, token)
	if got := payrollResp["total"].(string); got != "60.00" {
		t.Fatalf("payroll total: got %s, want 60.00", got)
	}
	if got := payrollResp["settled"].(float64); got != 1 {
		t.Fatalf("payroll settled count: got %v, want 1", got)
	}

	t.Logf("Integration test passed: container=%s, order=%s, item=%s, worker=%s",
		pgContainer.GetContainerID(), orderID, itemID, workerID)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bengkel_test"),
		tcpostgres.WithUsername("bengkel"),
		tcpostgres.WithPassword("bengkel"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	// Connect with stdlib for migrate
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory (internal/handler/).
	// Go test sets cwd to the package directory.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createOwnerUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (email, name, role, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		"owner@test.com", "Test Owner", "OWNER", string(hashedPassword),
	).Scan(&id)
	if err != nil {
		t.Fatalf("create owner user: %v", err)
	}
	return id
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

func toStringMap(t *testing.T, v interface{}) map[string]string {
	t.Helper()
	raw, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = val.(string)
	}
	return out
}

// --- HTTP helpers ---

func doJSON(t *testing.T, server *httptest.Server, method, path string, body interface{}, token string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp, result
}

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body interface{}, token string) map[string]interface{} {
	t.Helper()
	resp, result := doJSON(t, server, "POST", path, body, token)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.Fatalf("POST %s: status %d, body: %v", path, resp.StatusCode, result)
	}
	return result
}

func httpPutJSON(t *testing.T, server *httptest.Server, path string, body interface{}, token string) map[string]interface{} {
	t.Helper()
	resp, result := doJSON(t, server, "PUT", path, body, token)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.Fatalf("PUT %s: status %d, body: %v", path, resp.StatusCode, result)
	}
	return result
}

func httpPutJSONStatus(t *testing.T, server *httptest.Server, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()
	resp, result := doJSON(t, server, "PUT", path, body, token)
	return resp.StatusCode, result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	resp, result := doJSON(t, server, "GET", path, nil, token)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, result)
	}
	return result
}

func httpGetJSONArray(t *testing.T, server *httptest.Server, path string, token string) []interface{} {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}

	var result []interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
