package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lotflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_jwt_secret_32_chars_minimum!"

// ── Helpers ───────────────────────────────────────────────────────────────────

func signToken(t *testing.T, secret string, method jwt.SigningMethod, dur time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := service.Claims{
		Username: "atelier",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "atelier",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(dur)),
		},
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuth(testSecret))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": GetClaims(c).Username})
	})
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

// ── Tests: JWT ────────────────────────────────────────────────────────────────

func TestProtectedEndpoint_NoToken(t *testing.T) {
	w := get(protectedRouter(), "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"detail"`)
}

func TestProtectedEndpoint_ValidToken(t *testing.T) {
	w := get(protectedRouter(), "/protected", signToken(t, testSecret, jwt.SigningMethodHS256, time.Hour))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "atelier")
}

func TestProtectedEndpoint_ExpiredToken(t *testing.T) {
	w := get(protectedRouter(), "/protected", signToken(t, testSecret, jwt.SigningMethodHS256, -time.Second))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedEndpoint_WrongSecret(t *testing.T) {
	w := get(protectedRouter(), "/protected", signToken(t, "another_secret", jwt.SigningMethodHS256, time.Hour))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedEndpoint_NoneAlgorithmRejected(t *testing.T) {
	claims := jwt.MapClaims{"username": "atelier", "exp": time.Now().Add(time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	w := get(protectedRouter(), "/protected", tok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ── Tests: request id, recovery, CORS ─────────────────────────────────────────

func TestRequestIDIsGeneratedOrEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := get(r, "/", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())

	w = httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "station-42")
	r.ServeHTTP(w, req)
	assert.Equal(t, "station-42", w.Header().Get("X-Request-ID"))
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := get(r, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(zerolog.Nop()))
	r.GET("/fail", func(c *gin.Context) { _ = c.Error(assert.AnError) })

	w := get(r, "/fail", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS())
	r.PATCH("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/x", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

// ── Tests: rate limiting ──────────────────────────────────────────────────────

func TestRateLimiterBlocksAfterLimitAndResets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	lim := NewRateLimiter(2, time.Minute, "trop")
	lim.now = func() time.Time { return now }

	r := gin.New()
	r.Use(lim.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/", "").Code)

	now = now.Add(61 * time.Second)
	assert.Equal(t, 1, lim.purge())
	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
}
