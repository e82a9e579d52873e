package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unbuiltapp/unbuilt/internal/database"
	"github.com/unbuiltapp/unbuilt/internal/email"
	"github.com/unbuiltapp/unbuilt/internal/gapanalysis"
	"github.com/unbuiltapp/unbuilt/internal/model"
)

func setupTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// No API key: the analyzer serves deterministic fallback data.
	analyzer, err := gapanalysis.NewClient(context.Background(), "", "", logger)
	if err != nil {
		t.Fatalf("create analyzer: %v", err)
	}
	emailClient := email.NewClient("", "reports@unbuilt.app", logger)

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.ResetSecret == "" {
		cfg.ResetSecret = "test-secret"
	}

	srv, err := New(db, cfg, analyzer, emailClient, logger)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func testClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func postJSON(t *testing.T, client *http.Client, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := postJSON(t, http.DefaultClient, ts.URL+"/api/search", map[string]string{"query": "anything"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSearchFlowEndToEnd(t *testing.T) {
	ts := setupTestServer(t, Config{})
	client := testClient(t)

	// Register establishes the session cookie.
	resp := postJSON(t, client, ts.URL+"/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"name":     "Alice",
	})
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Submit a search; the fallback analyzer makes this deterministic.
	resp = postJSON(t, client, ts.URL+"/api/search", map[string]string{"query": "sustainable packaging"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp.StatusCode)
	}
	var searchResp struct {
		Search  model.Search         `json:"search"`
		Results []model.SearchResult `json:"results"`
	}
	decodeBody(t, resp, &searchResp)

	if len(searchResp.Results) < 1 || len(searchResp.Results) > 8 {
		t.Fatalf("got %d results, want between 1 and 8", len(searchResp.Results))
	}
	if searchResp.Search.ResultsCount != len(searchResp.Results) {
		t.Errorf("results_count = %d, len(results) = %d", searchResp.Search.ResultsCount, len(searchResp.Results))
	}
	for i, r := range searchResp.Results {
		if r.InnovationScore < 1 || r.InnovationScore > 10 {
			t.Errorf("result %d score %d out of range", i, r.InnovationScore)
		}
		if r.Title == "" {
			t.Errorf("result %d has empty title", i)
		}
	}

	// History now holds the search.
	histResp, err := client.Get(ts.URL + "/api/searches")
	if err != nil {
		t.Fatalf("GET /api/searches: %v", err)
	}
	var history []model.Search
	decodeBody(t, histResp, &history)
	if len(history) != 1 || history[0].ID != searchResp.Search.ID {
		t.Errorf("history = %d entries, want the submitted search", len(history))
	}

	// Save a result and read it back.
	saveURL := fmt.Sprintf("%s/api/results/%d/save", ts.URL, searchResp.Results[0].ID)
	req, err := http.NewRequest("PATCH", saveURL, strings.NewReader(`{"is_saved": true}`))
	if err != nil {
		t.Fatalf("build save request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	saveResp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PATCH save: %v", err)
	}
	if saveResp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", saveResp.StatusCode)
	}
	saveResp.Body.Close()

	savedResp, err := client.Get(ts.URL + "/api/results/saved")
	if err != nil {
		t.Fatalf("GET saved: %v", err)
	}
	var saved []model.SearchResult
	decodeBody(t, savedResp, &saved)
	if len(saved) != 1 || saved[0].ID != searchResp.Results[0].ID {
		t.Errorf("saved = %d entries, want the toggled result", len(saved))
	}
}

func TestLoginLogoutCycle(t *testing.T) {
	ts := setupTestServer(t, Config{})
	client := testClient(t)

	resp := postJSON(t, client, ts.URL+"/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"name":     "Alice",
	})
	resp.Body.Close()

	// Logout invalidates the session.
	resp = postJSON(t, client, ts.URL+"/api/auth/logout", map[string]string{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	profResp, err := client.Get(ts.URL + "/api/auth/profile")
	if err != nil {
		t.Fatalf("GET profile: %v", err)
	}
	profResp.Body.Close()
	if profResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("profile after logout status = %d, want 401", profResp.StatusCode)
	}

	// Login with the registered credentials restores access.
	resp = postJSON(t, client, ts.URL+"/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	profResp, err = client.Get(ts.URL + "/api/auth/profile")
	if err != nil {
		t.Fatalf("GET profile: %v", err)
	}
	defer profResp.Body.Close()
	if profResp.StatusCode != http.StatusOK {
		t.Fatalf("profile status = %d", profResp.StatusCode)
	}
	var prof struct {
		User          model.User `json:"user"`
		EffectivePlan string     `json:"effective_plan"`
	}
	if err := json.NewDecoder(profResp.Body).Decode(&prof); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if prof.User.Email != "alice@example.com" {
		t.Errorf("profile email = %q", prof.User.Email)
	}
	if prof.EffectivePlan != model.PlanFree {
		t.Errorf("effective plan = %q, want free", prof.EffectivePlan)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ts := setupTestServer(t, Config{})
	client := testClient(t)

	resp := postJSON(t, client, ts.URL+"/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"name":     "Alice",
	})
	resp.Body.Close()

	resp = postJSON(t, testClient(t), ts.URL+"/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSharedSearchIsPublic(t *testing.T) {
	ts := setupTestServer(t, Config{})
	client := testClient(t)

	resp := postJSON(t, client, ts.URL+"/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"name":     "Alice",
	})
	resp.Body.Close()

	resp = postJSON(t, client, ts.URL+"/api/search", map[string]string{"query": "urban farming"})
	var searchResp struct {
		Search model.Search `json:"search"`
	}
	decodeBody(t, resp, &searchResp)

	shareResp := postJSON(t, client, fmt.Sprintf("%s/api/search/%d/share", ts.URL, searchResp.Search.ID), map[string]string{})
	if shareResp.StatusCode != http.StatusOK {
		t.Fatalf("share status = %d", shareResp.StatusCode)
	}
	var shared struct {
		Search model.Search `json:"search"`
	}
	decodeBody(t, shareResp, &shared)
	if shared.Search.ShareToken == nil || *shared.Search.ShareToken == "" {
		t.Fatal("share did not produce a token")
	}

	// The shared view needs no session.
	publicResp, err := http.Get(ts.URL + "/api/search/shared/" + *shared.Search.ShareToken)
	if err != nil {
		t.Fatalf("GET shared: %v", err)
	}
	defer publicResp.Body.Close()
	if publicResp.StatusCode != http.StatusOK {
		t.Errorf("shared status = %d, want 200", publicResp.StatusCode)
	}
}

func TestOAuthRedirectSetsStateCookie(t *testing.T) {
	ts := setupTestServer(t, Config{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
	})

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(ts.URL + "/api/auth/google/redirect")
	if err != nil {
		t.Fatalf("GET redirect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}

	var state string
	for _, c := range resp.Cookies() {
		if c.Name == "unbuilt_oauth_state" {
			state = c.Value
		}
	}
	if state == "" {
		t.Fatal("state cookie not set")
	}

	loc := resp.Header.Get("Location")
	if !strings.Contains(loc, "accounts.google.com") {
		t.Errorf("location = %q, want the google consent url", loc)
	}
	if !strings.Contains(loc, "state="+state) {
		t.Errorf("location %q does not carry the state %q", loc, state)
	}
}

func TestOAuthRedirectUnknownProvider(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/api/auth/gitlab/redirect")
	if err != nil {
		t.Fatalf("GET redirect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMonthlyQuotaEnforced(t *testing.T) {
	ts := setupTestServer(t, Config{})
	client := testClient(t)

	resp := postJSON(t, client, ts.URL+"/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"name":     "Alice",
	})
	resp.Body.Close()

	for i := 0; i < model.FreeMonthlySearchLimit; i++ {
		r := postJSON(t, client, ts.URL+"/api/search", map[string]string{"query": "remote work tools"})
		if r.StatusCode != http.StatusOK {
			t.Fatalf("search %d status = %d", i+1, r.StatusCode)
		}
		r.Body.Close()
	}

	r := postJSON(t, client, ts.URL+"/api/search", map[string]string{"query": "remote work tools"})
	defer r.Body.Close()
	if r.StatusCode != http.StatusForbidden {
		t.Errorf("over-quota status = %d, want 403", r.StatusCode)
	}
}

func TestDemoModeSearchWithoutSession(t *testing.T) {
	ts := setupTestServer(t, Config{DemoMode: true})

	resp := postJSON(t, http.DefaultClient, ts.URL+"/api/search", map[string]string{"query": "pet services"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("demo search status = %d, want 200", resp.StatusCode)
	}
	var searchResp struct {
		Results []model.SearchResult `json:"results"`
	}
	decodeBody(t, resp, &searchResp)
	if len(searchResp.Results) == 0 {
		t.Error("demo search returned no results")
	}
}

func TestExportCSVDownload(t *testing.T) {
	ts := setupTestServer(t, Config{})
	client := testClient(t)

	resp := postJSON(t, client, ts.URL+"/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"name":     "Alice",
	})
	resp.Body.Close()

	resp = postJSON(t, client, ts.URL+"/api/search", map[string]string{"query": "fitness tech"})
	var searchResp struct {
		Results []model.SearchResult `json:"results"`
	}
	decodeBody(t, resp, &searchResp)

	ids := make([]int64, len(searchResp.Results))
	for i, r := range searchResp.Results {
		ids[i] = r.ID
	}

	exportResp := postJSON(t, client, ts.URL+"/api/export", map[string]any{
		"format":     "csv",
		"result_ids": ids,
	})
	defer exportResp.Body.Close()
	if exportResp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", exportResp.StatusCode)
	}
	if ct := exportResp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	if cd := exportResp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("content disposition = %q, want attachment", cd)
	}

	body, err := io.ReadAll(exportResp.Body)
	if err != nil {
		t.Fatalf("read export body: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if len(lines) != len(searchResp.Results)+1 {
		t.Errorf("csv has %d lines, want header plus %d rows", len(lines), len(searchResp.Results))
	}
	if !strings.HasPrefix(lines[0], `"Title","Description"`) {
		t.Errorf("csv header = %s", lines[0])
	}
}

func TestBillingUnconfigured(t *testing.T) {
	ts := setupTestServer(t, Config{})
	client := testClient(t)

	resp := postJSON(t, client, ts.URL+"/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"name":     "Alice",
	})
	resp.Body.Close()

	resp = postJSON(t, client, ts.URL+"/api/create-subscription", map[string]string{"plan": "pro"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestActivateTrialEndToEnd(t *testing.T) {
	ts := setupTestServer(t, Config{})
	client := testClient(t)

	resp := postJSON(t, client, ts.URL+"/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"name":     "Alice",
	})
	resp.Body.Close()

	resp = postJSON(t, client, ts.URL+"/api/activate-trial", map[string]string{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate trial status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A second activation is rejected.
	resp = postJSON(t, client, ts.URL+"/api/activate-trial", map[string]string{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("second activation status = %d, want 400", resp.StatusCode)
	}
}
