package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"estatebot_backend/platform/logger"
)

func captureLogger(buf *bytes.Buffer) *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(buf, nil))}
}

func TestSlowRequestLogWarnsPastThreshold(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	engine := gin.New()
	engine.Use(SlowRequestLog(captureLogger(&buf), time.Millisecond))
	engine.GET("/slow", func(c *gin.Context) {
		time.Sleep(20 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))

	if !strings.Contains(buf.String(), "slow request") {
		t.Fatalf("expected a slow-request warning, got log %q", buf.String())
	}
	if !strings.Contains(buf.String(), "/slow") {
		t.Fatalf("warning must name the path, got %q", buf.String())
	}
}

func TestSlowRequestLogStaysQuietUnderThreshold(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	engine := gin.New()
	engine.Use(SlowRequestLog(captureLogger(&buf), time.Second))
	engine.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fast", nil))

	if strings.Contains(buf.String(), "slow request") {
		t.Fatalf("fast request must not warn, got %q", buf.String())
	}
}
