package http

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/coopdesk/internal/auth"
	"github.com/spec-kit/coopdesk/internal/observability"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

const (
	headerRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
	maxRequestIDLen = 64
)

// RegisterMiddlewares installs, outermost first: request tagging, the access
// log, error rendering and the per-request deadline. The access log sits
// outside error rendering so it records the status the client actually got.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(requestIDMiddleware())
	app.Use(accessLogMiddleware(logger, metrics))
	app.Use(errorMiddleware(logger, metrics))
	if timeout > 0 {
		app.Use(deadlineMiddleware(timeout))
	}
}

// requestIDMiddleware reuses a caller-supplied X-Request-ID or mints one.
func requestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(headerRequestID))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Locals(requestIDKey, id)
		c.Set(headerRequestID, id)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

// routeOf prefers the registered pattern so ticket ids do not explode metric keys.
func routeOf(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	return c.Path()
}

func accessLogMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()
		route := routeOf(c)
		metrics.RecordRequest(route, c.Method(), status, duration)

		level := zapcore.InfoLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= fiber.StatusBadRequest:
			level = zapcore.WarnLevel
		case strings.HasPrefix(route, "/health") || route == "/metrics":
			level = zapcore.DebugLevel
		}
		if ce := logger.Check(level, "request"); ce != nil {
			fields := []zap.Field{
				zap.String("request_id", requestID(c)),
				zap.String("method", c.Method()),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", duration),
			}
			if p, ok := auth.PrincipalFromContext(c); ok {
				fields = append(fields,
					zap.String("actor", p.Email),
					zap.String("role", string(p.Role)),
					zap.String("org_id", p.OrganizationID))
			}
			ce.Write(fields...)
		}
		return err
	}
}

// errorMiddleware turns returned errors and panics into the JSON error
// envelope, tagged with the request id.
func errorMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.String("request_id", requestID(c)),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}
			domainErr := apperrors.ToDomainError(err)
			metrics.RecordError(routeOf(c), c.Method(), domainErr.Code)
			body := fiber.Map{
				"code":       domainErr.Code,
				"message":    domainErr.Message,
				"request_id": requestID(c),
			}
			if len(domainErr.Details) > 0 {
				body["details"] = domainErr.Details
			}
			if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
				logger.Error("request failed", zap.String("request_id", requestID(c)), zap.Error(domainErr))
			}
			err = c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
		}()
		return c.Next()
	}
}

// deadlineMiddleware bounds the handler's context. Long-running work such as
// the on-demand sweep detaches from it explicitly.
func deadlineMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
