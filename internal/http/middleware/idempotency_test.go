package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func idemRouter(lookup IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Auth(AuthOptions{}), Idempotency(IdempotencyOptions{MaxLen: 16}, lookup))
	r.POST("/gen", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		id, replay := ReplayInsightID(c)
		c.JSON(http.StatusOK, gin.H{"key": key, "replay": replay, "id": id, "bypass": c.GetBool(ctxKeyRateBypass)})
	})
	return r
}

func postGen(r *gin.Engine, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/gen", nil)
	req.Header.Set(HeaderUserID, "u1")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_NoHeaderIsNoop(t *testing.T) {
	called := false
	r := idemRouter(func(context.Context, string, string, time.Time) (string, bool) { called = true; return "", false })
	w := postGen(r, "")
	if w.Code != http.StatusOK || called || !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("unexpected: %d %s called=%v", w.Code, w.Body.String(), called)
	}
}

func TestIdempotency_InvalidKey(t *testing.T) {
	r := idemRouter(nil)
	for _, k := range []string{"has space", "way-too-long-key-value", "semi;colon"} {
		w := postGen(r, k)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: %d %s", k, w.Code, w.Body.String())
		}
	}
}

func TestIdempotency_ReplayMarksContext(t *testing.T) {
	var gotUser, gotKey string
	r := idemRouter(func(_ context.Context, userID, key string, _ time.Time) (string, bool) {
		gotUser, gotKey = userID, key
		return "insight-1", key == "k1"
	})

	w := postGen(r, "k1")
	body := w.Body.String()
	if w.Code != http.StatusOK || !strings.Contains(body, `"replay":true`) || !strings.Contains(body, `"id":"insight-1"`) || !strings.Contains(body, `"bypass":true`) {
		t.Fatalf("replay not marked: %s", body)
	}
	if gotUser != "u1" || gotKey != "k1" {
		t.Fatalf("lookup got (%q, %q)", gotUser, gotKey)
	}

	w = postGen(r, "k2")
	if !strings.Contains(w.Body.String(), `"replay":false`) || !strings.Contains(w.Body.String(), `"key":"k2"`) {
		t.Fatalf("fresh key should not replay: %s", w.Body.String())
	}
}
