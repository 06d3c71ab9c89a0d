package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-insights-backend/internal/llm"
	"github.com/tbourn/go-insights-backend/internal/services"
)

func Test_fail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) { fail(c, http.StatusInternalServerError, ErrCodeInternal, "kaboom") })
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusInternalServerError || resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal || resp.Message != "kaboom" {
		t.Fatalf("unexpected: %d %+v", w.Code, resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound || buf.Len() != 0 {
		t.Fatalf("4xx should not be logged: %d %s", w.Code, buf.String())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrInvalidDate, http.StatusBadRequest, ErrCodeInvalidDate},
		{services.ErrInvalidRange, http.StatusBadRequest, ErrCodeInvalidRange},
		{services.ErrInsightNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrUnsupportedFormat, http.StatusBadRequest, ErrCodeUnsupportedFormat},
		{services.ErrNotImplemented, http.StatusNotImplemented, ErrCodeNotImplemented},
		{fmt.Errorf("%w: %w", services.ErrInsightGenerationFailed, &llm.Error{Kind: llm.KindAuth, Status: 401}), http.StatusServiceUnavailable, ErrCodeModelAuth},
		{fmt.Errorf("%w: boom", services.ErrInsightGenerationFailed), http.StatusServiceUnavailable, ErrCodeGenerationFailed},
		{fmt.Errorf("%w: disk", services.ErrPersistence), http.StatusInternalServerError, ErrCodePersistence},
		{errors.New("secret detail"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code, msg := classify(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("classify(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
		if strings.Contains(msg, "secret") {
			t.Fatalf("internal error text leaked: %q", msg)
		}
	}
}

func TestNewPagination(t *testing.T) {
	p := newPagination(2, 10, 25)
	if p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("unexpected: %+v", p)
	}
	if p := newPagination(1, 20, 0); p.TotalPages != 0 || p.HasNext {
		t.Fatalf("empty: %+v", p)
	}
}
