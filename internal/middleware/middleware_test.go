package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/damoang/angple-market/pkg/jwt"
	"github.com/damoang/angple-market/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-32-bytes-long"

func init() {
	gin.SetMode(gin.TestMode)
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func protectedRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": GetUserID(c), "email": GetEmail(c)})
	})
	return r
}

func do(r http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	manager := jwt.NewManager(testSecret, time.Hour).WithClock(clock)
	token, _, err := manager.Issue(42, "a@x.com")
	require.NoError(t, err)

	expiredIssuer := jwt.NewManager(testSecret, time.Hour).WithClock(func() time.Time { return now.Add(-2 * time.Hour) })
	expired, _, err := expiredIssuer.Issue(42, "a@x.com")
	require.NoError(t, err)

	forged, _, err := jwt.NewManager("some-other-secret-of-enough-length!", time.Hour).WithClock(clock).Issue(42, "a@x.com")
	require.NoError(t, err)

	r := protectedRouter(JWTAuth(manager))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage token", "Bearer not.a.token", http.StatusForbidden, "FORBIDDEN"},
		{"wrong secret", "Bearer " + forged, http.StatusForbidden, "FORBIDDEN"},
		{"expired", "Bearer " + expired, http.StatusForbidden, "FORBIDDEN"},
		{"valid", "Bearer " + token, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + token, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, "/me", tt.header)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				var body errorBody
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.False(t, body.Success)
				assert.Equal(t, tt.wantCode, body.Error.Code)
				return
			}
			assert.JSONEq(t, `{"userId":42,"email":"a@x.com"}`, w.Body.String())
		})
	}
}

func TestJWTAuthWS_QueryToken(t *testing.T) {
	manager := jwt.NewManager(testSecret, time.Hour)
	token, _, err := manager.Issue(7, "ws@x.com")
	require.NoError(t, err)

	r := protectedRouter(JWTAuthWS(manager))

	assert.Equal(t, http.StatusOK, do(r, "/me?token="+token, "").Code)
	assert.Equal(t, http.StatusOK, do(r, "/me", "Bearer "+token).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/me?token=bogus", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
}

func TestGetUserID_Absent(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Zero(t, GetUserID(c))
	assert.Empty(t, GetEmail(c))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	r := gin.New()
	r.Use(RequestLogger(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := do(r, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "kaboom")
	assert.Contains(t, buf.String(), "kaboom")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestLogger_EchoesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc123")
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc123", w.Body.String())
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := do(r, "/x", "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRateLimit_LocalFallback(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(nil, RateLimitConfig{RequestsPerMinute: 6}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	// burst of perMinute/6 = 1
	assert.Equal(t, http.StatusOK, do(r, "/x", "").Code)
	w := do(r, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimit_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(nil, RateLimitConfig{}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, do(r, "/x", "").Code)
	}
}

func TestLocalLimiter_EvictsIdleVisitors(t *testing.T) {
	l := newLocalLimiter(60)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("1.1.1.1"))
	now = now.Add(localVisitorTTL + time.Second)
	assert.True(t, l.allow("2.2.2.2"))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.visitors, "1.1.1.1")
	assert.Contains(t, l.visitors, "2.2.2.2")
}
