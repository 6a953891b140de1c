package debuglog

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level uint8

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelVerbose
	LevelTrace

	UseGlobal Level = 255
)

const envKey = "PROXYRULES_DEBUG"

var (
	GlobalLevel = parseEnvLevel(os.Getenv(envKey))

	sink atomic.Pointer[zap.SugaredLogger]
)

func init() {
	sink.Store(newDefaultLogger())
}

func newDefaultLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// SetLogger replaces the zap logger that receives every message. A nil logger
// silences output. Level filtering still happens here, so the logger should be
// built with its own level at debug.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sink.Store(logger.Sugar())
}

// Sync flushes the underlying zap logger.
func Sync() error {
	return sink.Load().Sync()
}

func parseEnvLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace
	case "verbose", "debug":
		return LevelVerbose
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "off":
		return LevelOff
	default:
		return LevelInfo
	}
}

// ParseLevel maps a user-facing level name to a Level. Unknown names map to LevelInfo.
func ParseLevel(raw string) Level {
	return parseEnvLevel(raw)
}

func Log(prefix string, level Level, local Level, format string, args ...interface{}) {
	if !ShouldLog(level, local) {
		return
	}
	message := fmt.Sprintf(format, args...)
	if prefix != "" {
		message = prefix + ": " + message
	}
	logger := sink.Load()
	switch level {
	case LevelError:
		logger.Error(message)
	case LevelWarn:
		logger.Warn(message)
	case LevelInfo:
		logger.Info(message)
	default:
		logger.Debug(message)
	}
}

func ShouldLog(level Level, local Level) bool {
	if level == LevelOff {
		return false
	}
	effective := GlobalLevel
	if local != UseGlobal {
		effective = local
	}
	return level <= effective
}

// LogTextFragment logs a piece of generated text, trimming long text to its
// first and last maxChars characters.
func LogTextFragment(prefix string, level Level, local Level, description, text string, maxChars int) {
	if !ShouldLog(level, local) {
		return
	}

	textLen := len(text)
	if textLen <= maxChars*2 {
		Log(prefix, level, local, "%s (len=%d): %s", description, textLen, text)
		return
	}

	Log(prefix, level, local, "%s (len=%d): first %d chars: %s",
		description, textLen, maxChars, text[:maxChars])
	Log(prefix, level, local, "%s (len=%d): last %d chars: %s",
		description, textLen, maxChars, text[textLen-maxChars:])
}
