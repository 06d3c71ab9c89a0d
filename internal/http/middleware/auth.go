// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. With a JWT secret configured the
// request must carry "Authorization: Bearer <HS256 token>" and the token's
// subject becomes the user id. Without a secret the X-User-ID header is
// trusted, which is only suitable for development and tests.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// HeaderUserID carries the caller id when JWT auth is disabled.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is the Gin context key holding the authenticated user id.
const ctxKeyUserID = "userID"

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret is the HMAC key for bearer tokens. Empty enables header mode.
	Secret string
	// Issuer, when set, must match the token's iss claim.
	Issuer string
}

// Auth authenticates the request and stores the user id in the context.
// Failures abort with 401.
func Auth(opts AuthOptions) gin.HandlerFunc {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)
	key := []byte(opts.Secret)

	return func(c *gin.Context) {
		var uid string
		if opts.Secret == "" {
			uid = strings.TrimSpace(c.GetHeader(HeaderUserID))
			if uid == "" {
				unauthorized(c, "missing "+HeaderUserID+" header")
				return
			}
		} else {
			raw, ok := bearerToken(c.GetHeader("Authorization"))
			if !ok {
				unauthorized(c, "missing bearer token")
				return
			}
			tok, err := parser.Parse(raw, func(*jwt.Token) (interface{}, error) { return key, nil })
			if err != nil || !tok.Valid {
				unauthorized(c, "invalid token")
				return
			}
			sub, err := tok.Claims.GetSubject()
			if err != nil || strings.TrimSpace(sub) == "" {
				unauthorized(c, "token has no subject")
				return
			}
			uid = sub
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// UserID returns the id stored by Auth, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func bearerToken(h string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func unauthorized(c *gin.Context, msg string) {
	authRejected.Inc()
	c.Header("WWW-Authenticate", `Bearer realm="insights"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
