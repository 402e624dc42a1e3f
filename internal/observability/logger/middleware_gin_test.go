package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/duesledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "req-123", w.Body.String())
}

func TestDescribeSQL(t *testing.T) {
	kind, table := describeSQL("SELECT id FROM union_ledger_entries ORDER BY seq DESC LIMIT 1")
	assert.Equal(t, "SELECT", kind)
	assert.Equal(t, "union_ledger_entries", table)

	kind, table = describeSQL("INSERT INTO payments (id) VALUES (?)")
	assert.Equal(t, "INSERT", kind)
	assert.Equal(t, "payments", table)

	kind, table = describeSQL("UPDATE maintenance_invoices SET status = ?")
	assert.Equal(t, "UPDATE", kind)
	assert.Equal(t, "maintenance_invoices", table)
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/invoices", http.StatusCreated))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/payments/collect", http.StatusBadRequest))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/settlements", http.StatusInternalServerError))
}

func TestWithContextOmitsMissingCorrelation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("plain")
	ctx := obscontext.WithActor(obscontext.WithRequestID(context.Background(), "req-9"), "TREASURER", "42")
	WithContext(ctx, base).Info("scoped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Context)
	fields := entries[1].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "TREASURER", fields["actor_role"])
	assert.Equal(t, "42", fields["actor_id"])
}
