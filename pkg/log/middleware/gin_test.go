package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/walletconnect/pkg/log"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestRecoveredHTTPLog(t *testing.T) {
	t.Setenv("DEBUG", "1")
	out := captureLog(t)
	router := gin.New()
	router.Use(RecoveredHTTPLog())
	router.GET("/ok", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, map[string]interface{}{"code": 0, "msg": "fine"})
	})
	router.GET("/panic", func(*gin.Context) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Request-Id", "abc")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get("request-id"))
	assert.Contains(t, out.String(), `"request_api":"/ok"`)
	assert.NotContains(t, out.String(), "secret")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, out.String(), "boom")
}

func TestTimeoutHTTP(t *testing.T) {
	router := gin.New()
	router.Use(TimeoutHTTP(50 * time.Millisecond))
	var deadline time.Time
	router.GET("/", func(ctx *gin.Context) {
		var ok bool
		deadline, ok = ctx.Request.Context().Deadline()
		require.True(t, ok)
		ctx.Status(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
}
