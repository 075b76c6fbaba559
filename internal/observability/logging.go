package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/coopdesk/internal/config"
)

// NewLogger builds the process logger. Production environments get zap's
// production preset with sampling and JSON output; anything else gets the
// development preset. Every entry carries the service name, version and env.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return loggerConfig(cfg).Build()
}

func loggerConfig(cfg *config.Config) zap.Config {
	var zapCfg zap.Config
	if cfg.App.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Logger.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(cfg.Logger.Encoding) {
	case "json", "console":
		zapCfg.Encoding = strings.ToLower(cfg.Logger.Encoding)
	}
	zapCfg.EncoderConfig.MessageKey = "message"
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg.InitialFields = map[string]any{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"env":     cfg.App.Env,
	}
	return zapCfg
}
