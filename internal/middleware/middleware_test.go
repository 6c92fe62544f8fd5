package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/pitch-booking/internal/config"
	"github.com/iliyamo/pitch-booking/internal/scheduling"
	"github.com/iliyamo/pitch-booking/internal/utils"
)

const secret = "test-secret"

func bearer(t *testing.T, uid uint64, role string, admin bool) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, role, admin, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

// newServer mounts mw in front of a handler that echoes the identity.
func newServer(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/who", func(c echo.Context) error {
		id, err := CurrentIdentity(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, id)
	}, mw...)
	return e
}

func do(e *echo.Echo, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := newServer(JWTAuth(secret))

	rec := do(e, bearer(t, 10, "CUSTOMER", false))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"UserID":10,"IsAdmin":false}`, rec.Body.String())

	rec = do(e, bearer(t, 1, "ADMIN", false))
	assert.JSONEq(t, `{"UserID":1,"IsAdmin":true}`, rec.Body.String())

	rec = do(e, bearer(t, 2, "OWNER", true))
	assert.JSONEq(t, `{"UserID":2,"IsAdmin":true}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "Bearer garbage").Code)

	other, err := utils.NewAccessToken("another-secret", 10, "CUSTOMER", false, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, "Bearer "+other.Token).Code)

	expired, err := utils.NewAccessToken(secret, 10, "CUSTOMER", false, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, "Bearer "+expired.Token).Code)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "CUSTOMER"}).SignedString([]byte(secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, "Bearer "+noSub).Code)

	strSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "15", "role": "customer"}).SignedString([]byte(secret))
	require.NoError(t, err)
	rec = do(e, "Bearer "+strSub)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"UserID":15,"IsAdmin":false}`, rec.Body.String())
}

func TestCurrentIdentityWithoutAuth(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := CurrentIdentity(c)
	assert.ErrorIs(t, err, ErrNoIdentity)

	c.Set(CtxUserID, uint64(3))
	id, err := CurrentIdentity(c)
	require.NoError(t, err)
	assert.Equal(t, scheduling.Identity{UserID: 3}, id)
}

func TestRequireRole(t *testing.T) {
	e := newServer(JWTAuth(secret), RequireRole(RoleCustomer, RoleOwner, RoleAdmin))

	assert.Equal(t, http.StatusOK, do(e, bearer(t, 10, "OWNER", false)).Code)
	assert.Equal(t, http.StatusForbidden, do(e, bearer(t, 10, "", false)).Code)
	assert.Equal(t, http.StatusForbidden, do(e, bearer(t, 10, "GUEST", false)).Code)
}

func TestTokenBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "user",
		Prefix:         "rl",
	}
	e := newServer(JWTAuth(secret), NewTokenBucket(cfg, rdb, nil))
	alice := bearer(t, 10, "CUSTOMER", false)

	rec := do(e, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do(e, alice).Code)

	rec = do(e, alice)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Buckets are per user.
	assert.Equal(t, http.StatusOK, do(e, bearer(t, 11, "CUSTOMER", false)).Code)
	assert.True(t, mr.Exists("rl:user:10"))

	// Redis outage fails open.
	mr.Close()
	assert.Equal(t, http.StatusOK, do(e, alice).Code)
}

func TestTokenBucketDisabled(t *testing.T) {
	e := newServer(JWTAuth(secret), NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, bearer(t, 10, "CUSTOMER", false)).Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/appointments", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/appointments")
	c.Set(CtxUserID, uint64(7))

	cfg := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:ip:10.0.0.1:user:7:route:POST /v1/appointments", buildRateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(cfg, c))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "boom") })

	for _, path := range []string{"/ok", "/boom", "/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusNoContent), entries[0].ContextMap()["status"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}
