package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-insights-backend/internal/analytics"
	"github.com/tbourn/go-insights-backend/internal/cache"
	"github.com/tbourn/go-insights-backend/internal/config"
	"github.com/tbourn/go-insights-backend/internal/domain"
	"github.com/tbourn/go-insights-backend/internal/http/middleware"
	"github.com/tbourn/go-insights-backend/internal/repo"
	"github.com/tbourn/go-insights-backend/internal/services"
)

const modelReply = `{"monthlySummary":"Steady month.","categoryInsights":[],"recommendations":["Cook at home"]}`

// cannedModel always answers with modelReply.
type cannedModel struct{ calls int }

func (m *cannedModel) Complete(_ context.Context, _, _ string, accept func(string) error) (string, error) {
	m.calls++
	return modelReply, accept(modelReply)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newServer(t *testing.T, cfg config.Config) (*gin.Engine, *cannedModel, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	store := repo.NewStore(db)
	model := &cannedModel{}
	svc := services.NewInsightService(store, analytics.New(store), model, cache.New(time.Hour))

	r := gin.New()
	RegisterRoutes(r, Deps{Insights: svc, Store: store}, cfg)
	return r, model, db
}

func call(r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var asU1 = map[string]string{middleware.HeaderUserID: "u1"}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	r, _, _ := newServer(t, baseConfig())

	w := call(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("global middleware missing: %v", w.Header())
	}
	if w := call(r, http.MethodGet, "/metrics", "", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	if w := call(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d", w.Code)
	}
	if w := call(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health = %d", w.Code)
	}
	if w := call(r, http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORS(t *testing.T) {
	r, _, _ := newServer(t, baseConfig())
	w := call(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://any.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-all expected '*', got %q", got)
	}

	cfg := baseConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r2, _, _ := newServer(t, cfg)
	w = call(r2, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestAPI_GenerateLatestListExportClear(t *testing.T) {
	r, model, db := newServer(t, baseConfig())
	ctx := context.Background()
	if err := repo.CreateTransaction(ctx, db, &domain.Transaction{
		UserID: "u1", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(42), Category: "Food",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if w := call(r, http.MethodGet, "/api/v1/insights/latest", "", asU1); w.Code != http.StatusNotFound {
		t.Fatalf("latest before generation = %d", w.Code)
	}

	body := `{"start_date":"2024-01-01","end_date":"2024-01-31"}`
	w := call(r, http.MethodPost, "/api/v1/insights/generate", body, asU1)
	if w.Code != http.StatusOK {
		t.Fatalf("generate = %d %s", w.Code, w.Body.String())
	}
	var in domain.Insight
	if err := json.Unmarshal(w.Body.Bytes(), &in); err != nil || in.ID == "" || in.MonthlySummary != "Steady month." {
		t.Fatalf("generate body: %s (%v)", w.Body.String(), err)
	}

	if w := call(r, http.MethodPost, "/api/v1/insights/generate", body, asU1); w.Code != http.StatusOK || model.calls != 1 {
		t.Fatalf("second generate should be served from cache: %d, %d model calls", w.Code, model.calls)
	}

	w = call(r, http.MethodGet, "/api/v1/insights/latest", "", asU1)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), in.ID) {
		t.Fatalf("latest = %d %s", w.Code, w.Body.String())
	}

	w = call(r, http.MethodGet, "/api/v1/insights", "", asU1)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" || !strings.Contains(w.Body.String(), `"total":1`) {
		t.Fatalf("list = %d %s etag=%q", w.Code, w.Body.String(), etag)
	}
	if w := call(r, http.MethodGet, "/api/v1/insights", "", map[string]string{middleware.HeaderUserID: "u1", "If-None-Match": etag}); w.Code != http.StatusNotModified {
		t.Fatalf("conditional list = %d", w.Code)
	}

	w = call(r, http.MethodGet, "/api/v1/insights/"+in.ID+"/export", "", asU1)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Steady month.") {
		t.Fatalf("export = %d %s", w.Code, w.Body.String())
	}
	if w := call(r, http.MethodGet, "/api/v1/insights/"+in.ID+"/export?format=pdf", "", asU1); w.Code != http.StatusNotImplemented {
		t.Fatalf("pdf export = %d", w.Code)
	}
	if w := call(r, http.MethodGet, "/api/v1/insights/"+in.ID+"/export", "", map[string]string{middleware.HeaderUserID: "u2"}); w.Code != http.StatusNotFound {
		t.Fatalf("other user's export = %d", w.Code)
	}

	w = call(r, http.MethodDelete, "/api/v1/insights/cache", "", asU1)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cleared":1`) {
		t.Fatalf("clear cache = %d %s", w.Code, w.Body.String())
	}

	if w := call(r, http.MethodDelete, "/api/v1/insights/"+in.ID, "", asU1); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d %s", w.Code, w.Body.String())
	}
	if w := call(r, http.MethodDelete, "/api/v1/insights/"+in.ID, "", asU1); w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", w.Code)
	}
}

func TestAPI_ValidationAndAuth(t *testing.T) {
	r, model, _ := newServer(t, baseConfig())

	if w := call(r, http.MethodPost, "/api/v1/insights/generate", `{"start_date":"2024-01-01","end_date":"2024-01-31"}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no identity = %d", w.Code)
	}
	w := call(r, http.MethodPost, "/api/v1/insights/generate", `{"start_date":"2024-13-01","end_date":"2024-01-31"}`, asU1)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "invalid_date") {
		t.Fatalf("bad date = %d %s", w.Code, w.Body.String())
	}
	w = call(r, http.MethodPost, "/api/v1/insights/generate", `{"start_date":"2024-02-01","end_date":"2024-01-31"}`, asU1)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "invalid_range") {
		t.Fatalf("bad range = %d %s", w.Code, w.Body.String())
	}
	if model.calls != 0 {
		t.Fatalf("validation errors must not reach the model")
	}
}

func TestAPI_JWTMode(t *testing.T) {
	cfg := baseConfig()
	cfg.JWTSecret = "topsecret"
	r, _, _ := newServer(t, cfg)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "jwt-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if w := call(r, http.MethodGet, "/api/v1/insights", "", asU1); w.Code != http.StatusUnauthorized {
		t.Fatalf("header identity must be ignored in JWT mode, got %d", w.Code)
	}
	w := call(r, http.MethodGet, "/api/v1/insights", "", map[string]string{"Authorization": "Bearer " + tok})
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("ETag"), "jwt-user") {
		t.Fatalf("bearer = %d etag=%q", w.Code, w.Header().Get("ETag"))
	}
}

func TestAPI_IdempotencyAndRateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, model, _ := newServer(t, cfg)

	hdr := map[string]string{middleware.HeaderUserID: "u1", middleware.HeaderIdempotencyKey: "gen-jan"}
	body := `{"start_date":"2024-01-01","end_date":"2024-01-31"}`

	w1 := call(r, http.MethodPost, "/api/v1/insights/generate", body, hdr)
	if w1.Code != http.StatusOK {
		t.Fatalf("first = %d %s", w1.Code, w1.Body.String())
	}
	// The bucket is now empty, but a replay is served without a token.
	w2 := call(r, http.MethodPost, "/api/v1/insights/generate", body, hdr)
	if w2.Code != http.StatusOK || w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d replayed=%q", w2.Code, w2.Header().Get("Idempotency-Replayed"))
	}
	if model.calls != 1 {
		t.Fatalf("model calls = %d", model.calls)
	}

	w3 := call(r, http.MethodPost, "/api/v1/insights/generate", body, asU1)
	if w3.Code != http.StatusTooManyRequests || w3.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", w3.Code)
	}
	if w := call(r, http.MethodPost, "/api/v1/insights/generate", body, map[string]string{middleware.HeaderUserID: "u1", middleware.HeaderIdempotencyKey: "bad key"}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key = %d", w.Code)
	}
	if w := call(r, http.MethodGet, "/api/v1/insights/latest", "", asU1); w.Code != http.StatusOK {
		t.Fatalf("reads are not rate limited, got %d", w.Code)
	}
}

func Test_limitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
