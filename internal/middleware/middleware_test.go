package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestValidateReadsBackendClaims(t *testing.T) {
	v := NewTokenValidator(secret)
	raw := sign(t, Claims{ID: "doc-1", HospitalID: "h-9"}, jwt.SigningMethodHS256, []byte(secret))

	id, err := v.Validate(raw)

	require.NoError(t, err)
	assert.Equal(t, "doc-1", id.UserID)
	assert.Equal(t, "h-9", id.HospitalID)
}

func TestValidateFallsBackToSubject(t *testing.T) {
	v := NewTokenValidator(secret)
	raw := sign(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "nurse-2"}}, jwt.SigningMethodHS256, []byte(secret))

	id, err := v.Validate(raw)

	require.NoError(t, err)
	assert.Equal(t, "nurse-2", id.UserID)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	v := NewTokenValidator(secret)

	cases := map[string]string{
		"empty":      "",
		"garbage":    "not.a.token",
		"wrong key":  sign(t, Claims{ID: "doc-1"}, jwt.SigningMethodHS256, []byte("other")),
		"no subject": sign(t, Claims{HospitalID: "h"}, jwt.SigningMethodHS256, []byte(secret)),
		"expired":    sign(t, Claims{ID: "doc-1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}, jwt.SigningMethodHS256, []byte(secret)),
		"wrong alg":  sign(t, Claims{ID: "doc-1"}, jwt.SigningMethodHS512, []byte(secret)),
	}
	for name, raw := range cases {
		_, err := v.Validate(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/session?token=q", nil)
	assert.Equal(t, "q", TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: "access_token", Value: "c"})
	assert.Equal(t, "c", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", TokenFromRequest(req))

	req.Header.Set("Authorization", "Basic h")
	assert.Equal(t, "", TokenFromRequest(req))
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(NewTokenValidator(secret)))
	router.GET("/me", func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": id.UserID, "token": TokenFrom(c) != ""})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, Claims{UserID: "doc-3"}, jwt.SigningMethodHS256, []byte(secret)))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"doc-3","token":true}`, w.Body.String())
}

func TestRateLimitPerKey(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(NewRateLimiter(1, time.Minute)))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSweepForgetsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Millisecond)
	rl.Allow("a")
	time.Sleep(20 * time.Millisecond)

	rl.Sweep()

	assert.Empty(t, rl.limiters)
}
