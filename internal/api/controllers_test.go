package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bot-core/internal/allocator"
	"bot-core/internal/bot"
	"bot-core/internal/events"
	"bot-core/internal/kyc"
	"bot-core/internal/ledger"
	"bot-core/internal/monitor"
	"bot-core/internal/profit"
	"bot-core/internal/wallet"
	"bot-core/pkg/crypto"
	"bot-core/pkg/db"
)

func newTestAPIServer(t *testing.T) (*httptest.Server, *db.Database, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	lgr, err := ledger.New(database, bus, 5*time.Second)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	kycSvc := kyc.NewService(database, bus)

	deriver, err := crypto.NewAddressDeriver("test-secret")
	if err != nil {
		t.Fatalf("NewAddressDeriver: %v", err)
	}
	alloc := allocator.New(database, deriver, bus)

	if err := bot.SyncTemplatesToDB(database.DB, []bot.TemplateConfig{{
		ID: "tpl-1", Name: "Test Grid", Strategy: "grid", RiskLevel: "low",
		MinProfitPct: -1, MaxProfitPct: 2,
		MinInvestment: 100, MaxInvestment: 1000, IsActive: true,
	}}); err != nil {
		t.Fatalf("SyncTemplatesToDB: %v", err)
	}

	engine := profit.NewEngine(database, bus, 42, time.Minute)
	bots := bot.NewManager(database, lgr, engine, bus)
	wallets := wallet.NewService(database, lgr, bus, 10)

	server := NewServer(bus, database, lgr, wallets, bots, kycSvc, alloc, metrics,
		SystemMeta{TickInterval: time.Minute, Version: "test"}, "test-secret")

	httpServer := httptest.NewServer(server.Router)
	cleanup := func() {
		httpServer.Close()
		_ = database.Close()
	}
	return httpServer, database, cleanup
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func registerAndLogin(t *testing.T, client *http.Client, baseURL, email string) (string, string) {
	t.Helper()
	var regResp struct {
		UserID string `json:"user_id"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "StrongPass123!",
	}, &regResp)
	if status != http.StatusCreated {
		t.Fatalf("register status=%d resp=%+v", status, regResp)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	status = doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"email":    email,
		"password": "StrongPass123!",
	}, &loginResp)
	if status != http.StatusOK || loginResp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, loginResp)
	}
	return loginResp.Token, regResp.UserID
}

func setTier(t *testing.T, database *db.Database, userID string, tier int) {
	t.Helper()
	if err := database.AdvanceUserTier(context.Background(), userID, tier); err != nil {
		t.Fatalf("AdvanceUserTier: %v", err)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t)
	defer cleanup()

	status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/wallets", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", status)
	}
}

func TestDepositWithdrawFlow(t *testing.T) {
	ts, database, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()
	token, userID := registerAndLogin(t, client, ts.URL, "flow@example.com")
	setTier(t, database, userID, 2)

	var depResp struct {
		Balance float64 `json:"balance"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/wallets/deposit", token, map[string]any{
		"currency": "USDT", "amount": 1000,
	}, &depResp)
	if status != http.StatusCreated || depResp.Balance != 1000 {
		t.Fatalf("deposit status=%d resp=%+v", status, depResp)
	}

	var wdResp struct {
		Balance float64 `json:"balance"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/wallets/withdraw", token, map[string]any{
		"currency": "USDT", "amount": 400, "destination": "0xdest",
	}, &wdResp)
	if status != http.StatusCreated || wdResp.Balance != 600 {
		t.Fatalf("withdraw status=%d resp=%+v", status, wdResp)
	}

	var errResp struct {
		Code string `json:"code"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/wallets/withdraw", token, map[string]any{
		"currency": "USDT", "amount": 5000, "destination": "0xdest",
	}, &errResp)
	if status != http.StatusBadRequest || errResp.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("expected INSUFFICIENT_BALANCE 400, got %d %+v", status, errResp)
	}
}

func TestKycLimitMapsTo403(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()
	token, _ := registerAndLogin(t, client, ts.URL, "tier0@example.com")

	// Fresh users are tier 0: withdrawals are blocked outright.
	var errResp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/wallets/withdraw", token, map[string]any{
		"currency": "USDT", "amount": 10, "destination": "0xdest",
	}, &errResp)
	if status != http.StatusForbidden || errResp.Code != "KYC_LIMIT_EXCEEDED" {
		t.Fatalf("expected KYC_LIMIT_EXCEEDED 403, got %d %+v", status, errResp)
	}
}

func TestBotLifecycleOverHTTP(t *testing.T) {
	ts, database, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()
	token, userID := registerAndLogin(t, client, ts.URL, "bots@example.com")
	setTier(t, database, userID, 2)

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/wallets/deposit", token, map[string]any{
		"currency": "USDT", "amount": 1000,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("deposit status=%d", status)
	}

	var launchResp struct {
		Bot db.BotInstance `json:"bot"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/bots/launch", token, map[string]any{
		"template_id": "tpl-1", "currency": "USDT", "amount": 300,
	}, &launchResp)
	if status != http.StatusCreated || launchResp.Bot.ID == "" {
		t.Fatalf("launch status=%d resp=%+v", status, launchResp)
	}

	var activeResp struct {
		Bots []db.BotInstance `json:"bots"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/bots/active", token, nil, &activeResp)
	if status != http.StatusOK || len(activeResp.Bots) != 1 {
		t.Fatalf("active status=%d resp=%+v", status, activeResp)
	}

	var stopResp struct {
		Bot db.BotInstance `json:"bot"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/bots/"+launchResp.Bot.ID+"/stop", token, nil, &stopResp)
	if status != http.StatusOK || stopResp.Bot.Status != db.StatusStopped {
		t.Fatalf("stop status=%d resp=%+v", status, stopResp)
	}

	// Stopping again is a benign no-op, still 200.
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/bots/"+launchResp.Bot.ID+"/stop", token, nil, &stopResp)
	if status != http.StatusOK {
		t.Fatalf("repeat stop status=%d", status)
	}

	// Another user cannot stop it.
	otherToken, _ := registerAndLogin(t, client, ts.URL, "other@example.com")
	var errResp struct {
		Code string `json:"code"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/bots/"+launchResp.Bot.ID+"/stop", otherToken, nil, &errResp)
	if status != http.StatusNotFound || errResp.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND 404, got %d %+v", status, errResp)
	}
}

func TestDepositAddressIdempotentOverHTTP(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()
	token, _ := registerAndLogin(t, client, ts.URL, "addr@example.com")

	type addrResp struct {
		Address db.DepositAddress `json:"address"`
	}
	var first, second addrResp
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/wallets/deposit-address", token, map[string]any{
		"currency": "USDT", "network": "ERC20",
	}, &first)
	if status != http.StatusOK || first.Address.Address == "" {
		t.Fatalf("allocate status=%d resp=%+v", status, first)
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/wallets/deposit-address", token, map[string]any{
		"currency": "USDT", "network": "ERC20",
	}, &second)
	if status != http.StatusOK || second.Address.Address != first.Address.Address {
		t.Fatalf("expected idempotent allocation, got %+v vs %+v", first, second)
	}
}

func TestReferralRegistration(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()

	var regResp struct {
		UserID       string `json:"user_id"`
		ReferralCode string `json:"referral_code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/auth/register", "", map[string]string{
		"email":    "referrer@example.com",
		"password": "StrongPass123!",
	}, &regResp)
	if status != http.StatusCreated || regResp.ReferralCode == "" {
		t.Fatalf("register status=%d resp=%+v", status, regResp)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/auth/register", "", map[string]string{
		"email":         "friend@example.com",
		"password":      "StrongPass123!",
		"referral_code": regResp.ReferralCode,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("referred register status=%d", status)
	}

	var errResp struct {
		Code string `json:"code"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/auth/register", "", map[string]string{
		"email":         "stranger@example.com",
		"password":      "StrongPass123!",
		"referral_code": "nope",
	}, &errResp)
	if status != http.StatusBadRequest || errResp.Code != "INVALID_REFERRAL_CODE" {
		t.Fatalf("expected INVALID_REFERRAL_CODE 400, got %d %+v", status, errResp)
	}
}
