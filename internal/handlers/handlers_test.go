package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"ytgate/internal/cache"
	"ytgate/internal/config"
	"ytgate/internal/coordinator"
	"ytgate/internal/middleware"
	"ytgate/internal/quota"
	"ytgate/internal/store"
	"ytgate/internal/types"
	"ytgate/internal/user"
	"ytgate/internal/youtube"
)

const testChannel = "UCabcdefghijklmnopqrstuv"

type stubUpstream struct {
	resolveTo  string
	resolveErr error
	fetchErr   error
	perPage    int
}

func (s *stubUpstream) ResolveChannelID(ctx context.Context, input string) (string, error) {
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	return s.resolveTo, nil
}

func (s *stubUpstream) FetchPage(ctx context.Context, channelID, pageToken string) (*youtube.Page, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	videos := make([]types.VideoRecord, s.perPage)
	for i := range videos {
		videos[i] = types.VideoRecord{VideoID: fmt.Sprintf("vid%d", i), Title: fmt.Sprintf("Video %d", i)}
	}
	return &youtube.Page{Videos: videos}, nil
}

func newTestRouter(t *testing.T, upstream *stubUpstream) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	settings, err := config.NewManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("Failed to create settings manager: %v", err)
	}
	t.Cleanup(func() { settings.Close() })

	ledger := quota.NewLedger(st, settings, time.UTC)
	ch := cache.New(st, settings.IsPriorityChannel)
	users := user.NewManager(st, settings, time.UTC)
	co := coordinator.New(ledger, ch, users, upstream)

	videoHandler := NewVideoHandler(co, ledger, upstream)
	userHandler := NewUserHandler(users)
	adminHandler := NewAdminHandler(settings, ledger, ch)

	r := gin.New()
	r.GET("/health", HealthCheck())
	api := r.Group("/api")
	{
		api.GET("/quota", videoHandler.GetQuota)
		api.POST("/search", videoHandler.Search)
		api.POST("/videos", videoHandler.GetVideos)
		api.GET("/history", userHandler.GetHistory)
		api.GET("/favorites", userHandler.GetFavorites)
		api.POST("/favorites", userHandler.AddFavorite)
		api.DELETE("/favorites/:channelId", userHandler.RemoveFavorite)
	}
	admin := r.Group("/api/admin", middleware.AdminAuthMiddleware("test-admin-key"))
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.PATCH("/config", adminHandler.PatchConfig)
		admin.PUT("/priority/:channelId", adminHandler.AddPriority)
		admin.PUT("/users/:identityId/block", adminHandler.BlockUser)
		admin.DELETE("/users/:identityId/block", adminHandler.UnblockUser)
		admin.POST("/reset", adminHandler.ResetQuota)
		admin.POST("/cache/clear", adminHandler.ClearCache)
	}
	return r
}

func doRequest(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Instance-ID", "user_test")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})

	w := doRequest(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if gjson.Get(w.Body.String(), "status").String() != "ok" {
		t.Errorf("Unexpected health body: %s", w.Body.String())
	}
}

func TestQuotaEndpoint(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})

	w := doRequest(r, http.MethodGet, "/api/quota", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if gjson.Get(body, "quota.limit").Int() != 5 || !gjson.Get(body, "quota.canRequest").Bool() {
		t.Errorf("Unexpected quota body: %s", body)
	}
}

func TestVideosEndpoint_FetchAndCacheFlow(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 3})

	payload := fmt.Sprintf(`{"channelId": %q, "channelName": "Test Channel"}`, testChannel)

	w := doRequest(r, http.MethodPost, "/api/videos", payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if gjson.Get(body, "totalCount").Int() != 3 || gjson.Get(body, "fromCache").Bool() {
		t.Errorf("Unexpected first response: %s", body)
	}
	if gjson.Get(body, "quota.used").Int() != 1 {
		t.Errorf("Fetch should cost one request: %s", body)
	}

	w = doRequest(r, http.MethodPost, "/api/videos", payload, nil)
	body = w.Body.String()
	if !gjson.Get(body, "fromCache").Bool() {
		t.Errorf("Second request should come from cache: %s", body)
	}

	// History reflects the fetch
	w = doRequest(r, http.MethodGet, "/api/history", "", nil)
	if gjson.Get(w.Body.String(), "history.#").Int() != 1 {
		t.Errorf("Expected one history entry: %s", w.Body.String())
	}
}

func TestVideosEndpoint_QuotaExhausted(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})

	// Five distinct channels burn the default limit
	for i := 0; i < 5; i++ {
		channelID := fmt.Sprintf("UCabcdefghijklmnopqrst%02d", i)
		payload := fmt.Sprintf(`{"channelId": %q}`, channelID)
		if w := doRequest(r, http.MethodPost, "/api/videos", payload, nil); w.Code != http.StatusOK {
			t.Fatalf("Request %d failed: %d %s", i, w.Code, w.Body.String())
		}
	}

	payload := fmt.Sprintf(`{"channelId": %q}`, testChannel)
	w := doRequest(r, http.MethodPost, "/api/videos", payload, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if gjson.Get(body, "kind").String() != "quota_exceeded" {
		t.Errorf("Unexpected error kind: %s", body)
	}
	if gjson.Get(body, "quota.remaining").Int() != 0 {
		t.Errorf("Quota context missing from refusal: %s", body)
	}
}

func TestVideosEndpoint_UpstreamQuotaError(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{
		fetchErr: &youtube.UpstreamError{Code: youtube.CodeQuotaExceeded, StatusCode: 403, Message: "quotaExceeded"},
	})

	payload := fmt.Sprintf(`{"channelId": %q}`, testChannel)
	w := doRequest(r, http.MethodPost, "/api/videos", payload, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if gjson.Get(w.Body.String(), "kind").String() != "upstream_quota_exceeded" {
		t.Errorf("Unexpected error kind: %s", w.Body.String())
	}
}

func TestVideosEndpoint_MissingChannelID(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})

	w := doRequest(r, http.MethodPost, "/api/videos", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestSearchEndpoint_CostsQuota(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{resolveTo: testChannel, perPage: 1})

	w := doRequest(r, http.MethodPost, "/api/search", `{"channelInput": "@somehandle"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gjson.Get(w.Body.String(), "channelId").String() != testChannel {
		t.Errorf("Unexpected search response: %s", w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/api/quota", "", nil)
	if gjson.Get(w.Body.String(), "quota.used").Int() != 1 {
		t.Errorf("Search should cost one request: %s", w.Body.String())
	}
}

func TestSearchEndpoint_InvalidInput(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{resolveErr: fmt.Errorf("%w: bad", youtube.ErrInvalidChannel)})

	w := doRequest(r, http.MethodPost, "/api/search", `{"channelInput": "https://example.com/x"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFavoritesEndpoints(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})

	w := doRequest(r, http.MethodPost, "/api/favorites",
		fmt.Sprintf(`{"channelId": %q, "channelName": "Test Channel"}`, testChannel), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("AddFavorite failed: %d %s", w.Code, w.Body.String())
	}
	if gjson.Get(w.Body.String(), "favorites.#").Int() != 1 {
		t.Errorf("Unexpected favorites: %s", w.Body.String())
	}

	w = doRequest(r, http.MethodDelete, "/api/favorites/"+testChannel, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("RemoveFavorite failed: %d", w.Code)
	}
	if gjson.Get(w.Body.String(), "favorites.#").Int() != 0 {
		t.Errorf("Favorite should be gone: %s", w.Body.String())
	}
}

func TestAdminEndpoints_RequireKey(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})

	w := doRequest(r, http.MethodGet, "/api/admin/stats", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/api/admin/stats", "", map[string]string{"X-Admin-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/api/admin/stats", "", map[string]string{"X-Admin-Key": "test-admin-key"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with correct key, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminPatchConfig(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})
	adminKey := map[string]string{"X-Admin-Key": "test-admin-key"}

	w := doRequest(r, http.MethodPatch, "/api/admin/config",
		`{"dailyQuotaTotal": 2000, "userLimits": {"default": 8}}`, adminKey)
	if w.Code != http.StatusOK {
		t.Fatalf("Patch failed: %d %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if gjson.Get(body, "config.dailyQuotaTotal").Int() != 2000 {
		t.Errorf("Total not applied: %s", body)
	}
	if gjson.Get(body, "config.userLimits.default").Int() != 8 {
		t.Errorf("Default limit not applied: %s", body)
	}
	// Untouched fields keep their values
	if gjson.Get(body, "config.userLimits.vip").Int() != 10 {
		t.Errorf("VIP limit should be untouched: %s", body)
	}

	// The raised limit is live immediately
	w = doRequest(r, http.MethodGet, "/api/quota", "", nil)
	if gjson.Get(w.Body.String(), "quota.limit").Int() != 8 {
		t.Errorf("Patched limit should apply to quota checks: %s", w.Body.String())
	}
}

func TestAdminPatchConfig_RejectsUnknownFields(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})
	adminKey := map[string]string{"X-Admin-Key": "test-admin-key"}

	w := doRequest(r, http.MethodPatch, "/api/admin/config", `{"somethingElse": true}`, adminKey)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown fields, got %d", w.Code)
	}
}

func TestAdminReset(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})
	adminKey := map[string]string{"X-Admin-Key": "test-admin-key"}

	payload := fmt.Sprintf(`{"channelId": %q}`, testChannel)
	if w := doRequest(r, http.MethodPost, "/api/videos", payload, nil); w.Code != http.StatusOK {
		t.Fatalf("Priming request failed: %d", w.Code)
	}

	if w := doRequest(r, http.MethodPost, "/api/admin/reset", "", adminKey); w.Code != http.StatusOK {
		t.Fatalf("Reset failed: %d", w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/quota", "", nil)
	if gjson.Get(w.Body.String(), "quota.used").Int() != 0 {
		t.Errorf("Reset should zero usage: %s", w.Body.String())
	}
}

func TestAdminCacheClear(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})
	adminKey := map[string]string{"X-Admin-Key": "test-admin-key"}

	payload := fmt.Sprintf(`{"channelId": %q}`, testChannel)
	if w := doRequest(r, http.MethodPost, "/api/videos", payload, nil); w.Code != http.StatusOK {
		t.Fatalf("Priming request failed: %d", w.Code)
	}

	if w := doRequest(r, http.MethodPost, "/api/admin/cache/clear", "", adminKey); w.Code != http.StatusOK {
		t.Fatalf("Cache clear failed: %d", w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/admin/stats", "", adminKey)
	if gjson.Get(w.Body.String(), "cache.count").Int() != 0 {
		t.Errorf("Cache should be empty after clear: %s", w.Body.String())
	}
}

func TestAdminBlockUnblock(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})
	adminKey := map[string]string{"X-Admin-Key": "test-admin-key"}

	w := doRequest(r, http.MethodPut, "/api/admin/users/user_test/block", "", adminKey)
	if w.Code != http.StatusOK {
		t.Fatalf("Block failed: %d %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if gjson.Get(body, `users.#(identityId=="user_test").blocked`).Bool() != true {
		t.Errorf("Identity should be blocked: %s", body)
	}

	// Blocked is bookkeeping, not enforcement: requests still go through
	payload := fmt.Sprintf(`{"channelId": %q}`, testChannel)
	if w := doRequest(r, http.MethodPost, "/api/videos", payload, nil); w.Code != http.StatusOK {
		t.Errorf("Blocked identity should still pass the quota gate: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodDelete, "/api/admin/users/user_test/block", "", adminKey)
	if w.Code != http.StatusOK {
		t.Fatalf("Unblock failed: %d %s", w.Code, w.Body.String())
	}
	body = w.Body.String()
	if gjson.Get(body, `users.#(identityId=="user_test").blocked`).Bool() {
		t.Errorf("Identity should be unblocked: %s", body)
	}
}

func TestAdminAddPriority(t *testing.T) {
	r := newTestRouter(t, &stubUpstream{perPage: 1})
	adminKey := map[string]string{"X-Admin-Key": "test-admin-key"}

	w := doRequest(r, http.MethodPut, "/api/admin/priority/"+testChannel, "", adminKey)
	if w.Code != http.StatusOK {
		t.Fatalf("AddPriority failed: %d %s", w.Code, w.Body.String())
	}
	if gjson.Get(w.Body.String(), "priority.0").String() != testChannel {
		t.Errorf("Unexpected priority list: %s", w.Body.String())
	}
}
