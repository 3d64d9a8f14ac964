// Package logging sets up the process-wide structured logger: a
// zap.SugaredLogger writing through lumberjack for rotation, called
// with the small Info/Warn/Error(msg, kv...) shape the rest of this
// codebase uses at call sites.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how logs are written.
type Config struct {
	Level      string // debug, info, warn, error
	FilePath   string // empty means stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	JSON       bool
}

// New builds a *zap.SugaredLogger from cfg. A non-empty FilePath adds a
// lumberjack-backed rotating file sink alongside stderr.
func New(cfg Config) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil && cfg.Level != "" {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	logger := zap.New(core, zap.AddCaller())
	return logger.Sugar(), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// NewNop returns a logger that discards everything, for tests that
// need a *zap.SugaredLogger but don't care about its output.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
