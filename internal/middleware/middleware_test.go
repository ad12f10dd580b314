package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/config"
	"github.com/iliyamo/ambulance-dispatch/internal/model"
	"github.com/iliyamo/ambulance-dispatch/internal/utils"
)

const secret = "test-secret"

func whoami(c echo.Context) error {
	id, _ := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
}

func serve(t *testing.T, h echo.HandlerFunc, mw []echo.MiddlewareFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/x", h, mw...)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, id uint64, role model.Role) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, string(role), 5)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuthBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 42, model.RoleDriver))

	rec := serve(t, whoami, []echo.MiddlewareFunc{JWTAuth(secret)}, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"role":"driver"}`, rec.Body.String())
}

func TestJWTAuthCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token(t, 7, model.RolePatient)})

	rec := serve(t, whoami, []echo.MiddlewareFunc{JWTAuth(secret)}, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"patient"}`, rec.Body.String())
}

func TestJWTAuthRejects(t *testing.T) {
	rec := serve(t, whoami, []echo.MiddlewareFunc{JWTAuth(secret)}, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = serve(t, whoami, []echo.MiddlewareFunc{JWTAuth(secret)}, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := utils.NewAccessToken("other-secret", 1, "patient", 5)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+other.Token)
	rec = serve(t, whoami, []echo.MiddlewareFunc{JWTAuth(secret)}, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuth(t *testing.T) {
	rec := serve(t, whoami, []echo.MiddlewareFunc{OptionalAuth(secret)}, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":0,"role":""}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	mw := []echo.MiddlewareFunc{JWTAuth(secret), RequireRole(model.RoleDriver)}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 1, model.RolePatient))
	assert.Equal(t, http.StatusForbidden, serve(t, whoami, mw, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 2, model.RoleDriver))
	assert.Equal(t, http.StatusOK, serve(t, whoami, mw, req).Code)
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil)
	for i := 0; i < 3; i++ {
		rec := serve(t, whoami, []echo.MiddlewareFunc{mw}, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/login")

	cfg := config.RateLimitConfig{Prefix: "rl:auth", KeyStrategy: "ip_route"}
	assert.Equal(t, "rl:auth:ip:10.0.0.1:route:POST /login", buildRateKey(cfg, c))

	SetIdentity(c, 9, model.RolePatient)
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:auth:user:9", buildRateKey(cfg, c))
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	rec := serve(t, whoami, []echo.MiddlewareFunc{RequestLogger(zap.NewNop())}, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestRecover(t *testing.T) {
	boom := func(echo.Context) error { panic("boom") }
	rec := serve(t, boom, []echo.MiddlewareFunc{Recover(zap.NewNop())}, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
