package config

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger builds the zap logger described by the logging section. Errors and
// above go to stderr, everything else enabled goes to stdout.
func (c *Config) Logger() *zap.Logger {
	var min zapcore.Level
	switch c.Logging.Level {
	case "none":
		return zap.NewNop()
	case "debug":
		min = zapcore.DebugLevel
	case "warn":
		min = zapcore.WarnLevel
	case "error":
		min = zapcore.ErrorLevel
	default:
		min = zapcore.InfoLevel
	}

	var enc zapcore.Encoder
	if c.Logging.Format == "json" {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeCaller = nil
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}

	low := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return min <= lvl && lvl < zapcore.ErrorLevel
	})
	high := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return min <= lvl && lvl >= zapcore.ErrorLevel
	})
	return zap.New(zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), low),
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), high),
	))
}
