package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/gym-roster/internal/config"
	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/utils"
)

const secret = "mw-secret"

func bearer(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func whoami(c echo.Context) error {
	id := IdentityFrom(c)
	return c.String(http.StatusOK, strconv.FormatUint(id.UserID, 10)+"/"+id.Role)
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))
	e.GET("/admin", whoami, JWTAuth(secret), RequireRole(model.RoleAdmin))

	rec := serve(e, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"unauthorized"`)

	rec = serve(e, http.MethodGet, "/me", "Bearer nonsense")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", bearer(t, 7, model.RoleMember))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7/MEMBER", rec.Body.String())

	rec = serve(e, http.MethodGet, "/admin", bearer(t, 7, model.RoleMember))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(e, http.MethodGet, "/admin", bearer(t, 1, model.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityFromAnonymous(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.False(t, IdentityFrom(c).Authenticated())
	assert.Equal(t, "anon", callerKey(c))
}

func TestLocalTokenBucket(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "test:rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, nil, nil))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/", "").Code)
	rec := serve(e, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{}, nil, nil))
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true}, nil, nil))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	rec := serve(e, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCachePayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}

func TestCacheKeyIncludesQuery(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "gym:cache", KeyStrategy: "route_query"}
	e := echo.New()
	key := func(target string) string {
		return cacheKeyFrom(cfg, e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder()))
	}
	a, b := key("/v1/activities?day=monday"), key("/v1/activities?day=tuesday")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, key("/v1/activities?day=monday"))
	assert.Regexp(t, `^gym:cache:[0-9a-f]{40}$`, a)
}
