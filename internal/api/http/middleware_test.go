package http

import (
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/coopdesk/internal/observability"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

func newMiddlewareApp(t *testing.T) (*fiber.App, *observer.ObservedLogs, *observability.Metrics) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, zap.New(core), metrics, time.Second)
	app.Get("/tickets/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "boom" {
			panic("exploded")
		}
		return apperrors.NewConflict("ticket changed", map[string]any{"ticket_id": c.Params("id")})
	})
	return app, logs, metrics
}

func decodeBody(t *testing.T, resp *stdhttp.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	payload := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func TestPanicRendersInternalError(t *testing.T) {
	app, logs, metrics := newMiddlewareApp(t)

	resp, err := app.Test(httptest.NewRequest(stdhttp.MethodGet, "/tickets/boom", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, stdhttp.StatusInternalServerError, resp.StatusCode)
	requestID := resp.Header.Get(headerRequestID)
	require.NotEmpty(t, requestID)
	errObj := decodeBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
	assert.Equal(t, requestID, errObj["request_id"])

	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	access := logs.FilterMessage("request").All()
	require.Len(t, access, 1)
	assert.Equal(t, zapcore.ErrorLevel, access[0].Level)
	assert.EqualValues(t, stdhttp.StatusInternalServerError, access[0].ContextMap()["status"])
	assert.Equal(t, "/tickets/:id", access[0].ContextMap()["route"])

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Errors["/tickets/:id|GET|INTERNAL_ERROR"])
}

func TestAccessLogSeesRenderedStatus(t *testing.T) {
	app, logs, _ := newMiddlewareApp(t)

	req := httptest.NewRequest(stdhttp.MethodGet, "/tickets/t-1", nil)
	req.Header.Set(headerRequestID, "caller-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, stdhttp.StatusConflict, resp.StatusCode)
	assert.Equal(t, "caller-123", resp.Header.Get(headerRequestID))
	errObj := decodeBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "CONFLICT", errObj["code"])
	assert.Equal(t, "caller-123", errObj["request_id"])
	assert.Equal(t, "t-1", errObj["details"].(map[string]any)["ticket_id"])

	access := logs.FilterMessage("request").All()
	require.Len(t, access, 1)
	assert.Equal(t, zapcore.WarnLevel, access[0].Level)
	assert.EqualValues(t, stdhttp.StatusConflict, access[0].ContextMap()["status"])
	assert.Equal(t, "caller-123", access[0].ContextMap()["request_id"])
}
