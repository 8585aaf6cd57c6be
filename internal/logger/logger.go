// Public domain.

// Package logger builds the zap loggers used by chronostar.
//
// There is no global logger.  The program builds one logger at startup and
// passes it down to the fit orchestrator, the EM driver and the sampler,
// which name it for their own use.  Library code that is handed a nil
// logger uses Nop.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// LogFile is the name of the JSON log written in the results directory.
const LogFile = "chronostar.log"

// Options select where and how much a logger writes.
type Options struct {
	Level   string    // debug, info, warn, error
	Console io.Writer // human readable output; nil means os.Stderr
	Dir     string    // if not empty, JSON lines are also written to Dir/LogFile
}

// New builds a logger from opt.  The console core is always present; the
// file core is added when opt.Dir is set, rotated by lumberjack.
func New(opt Options) (*zap.Logger, error) {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return nil, err
	}
	console := opt.Console
	if console == nil {
		console = os.Stderr
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(console), level),
	}
	if opt.Dir != "" {
		if err := os.MkdirAll(opt.Dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating log directory")
		}
		w := &lumberjack.Logger{
			Filename:   filepath.Join(opt.Dir, LogFile),
			MaxSize:    50, // megabytes
			MaxBackups: 3,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(w), level))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

// ParseLevel maps a level name to a zap level.  The empty string is info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, errors.Configf("unknown log level %q", s)
}

// VerbosityLevel raises a configured level name by the count of -v flags.
// One -v turns warn into info, two or more give debug.
func VerbosityLevel(configured string, verbosity int) string {
	if verbosity <= 0 {
		return configured
	}
	if verbosity == 1 && strings.EqualFold(configured, "warn") {
		return "info"
	}
	if verbosity == 1 {
		if configured == "" {
			return "info"
		}
		if !strings.EqualFold(configured, "info") {
			return configured
		}
	}
	return "debug"
}

// Nop returns l, or a no-op logger if l is nil.
func Nop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
