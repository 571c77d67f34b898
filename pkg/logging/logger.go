// Package logging builds the exporter's zap logger from the -v verbosity count.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MaxVerbosity is the largest meaningful -v count.
const MaxVerbosity = 4

// LevelFor maps a verbosity count to a zap level. Zero logs critical events only.
func LevelFor(verbosity int) zapcore.Level {
	switch {
	case verbosity <= 0:
		return zapcore.DPanicLevel
	case verbosity == 1:
		return zapcore.ErrorLevel
	case verbosity == 2:
		return zapcore.WarnLevel
	case verbosity == 3:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// New returns a JSON logger on stdout.
func New(verbosity int) *zap.Logger {
	return NewWithWriter(verbosity, os.Stdout)
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(verbosity int, w io.Writer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		LevelFor(verbosity),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Flush syncs buffered entries. Sync errors on non-file writers are ignored.
func Flush(l *zap.Logger) {
	_ = l.Sync()
}
