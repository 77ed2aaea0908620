package logger

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// fatalHandler is invoked instead of os.Exit when Fatalf is called.
// Tests can swap it out with SetFatalHandler to avoid killing the test binary.
//
//nolint:gochecknoglobals // Mutable by design; see SetFatalHandler.
var fatalHandler atomic.Value

//nolint:gochecknoglobals // Guards the package-level logger/level singletons below.
var (
	mu            sync.RWMutex
	currentLogger *zap.SugaredLogger
	currentLevel  = zap.NewAtomicLevel()
)

//nolint:gochecknoinits // A ready-to-use package logger must exist at import time.
func init() {
	fatalHandler.Store(fatalHandlerFunc(func() { os.Exit(1) }))
	currentLevel.SetLevel(zapcore.InfoLevel)
	currentLogger = New(currentLevel).Sugar()
}

type fatalHandlerFunc func()

// New builds a zap.Logger writing to stderr at the given level.
// A nil level defaults to info.
func New(level zapcore.LevelEnabler) *zap.Logger {
	if level == nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)

	return zap.New(core)
}

// ParseLogLevel parses a case-insensitive, trimmed log level name.
// It returns (zapcore.InfoLevel, false) when the name is not recognized.
func ParseLogLevel(name string) (zapcore.Level, bool) {
	var level zapcore.Level

	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return zapcore.InfoLevel, false
	}

	err := level.UnmarshalText([]byte(normalized))
	if err != nil {
		return zapcore.InfoLevel, false
	}

	return level, true
}

// Logger returns the current package-level sugared logger.
func Logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()

	return currentLogger
}

// SetLogger replaces the package-level logger. Mostly useful in tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	currentLogger = l.Sugar()
}

// SetLevel adjusts the verbosity of the package-level logger without replacing it.
func SetLevel(level zapcore.Level) {
	currentLevel.SetLevel(level)
}

// Level returns the currently configured log level.
func Level() zapcore.Level {
	return currentLevel.Level()
}

// IsDebugLevel reports whether debug-level logs are currently enabled.
func IsDebugLevel() bool {
	return Level() <= zapcore.DebugLevel
}

// SetFatalHandler overrides the action Fatalf takes after logging.
// Tests use this to assert a fatal log happened without exiting the process.
func SetFatalHandler(handler func()) {
	if handler == nil {
		handler = func() { os.Exit(1) }
	}

	fatalHandler.Store(fatalHandlerFunc(handler))
}

func withContext(_ context.Context, args ...any) []any {
	return args
}

func Debug(ctx context.Context, args ...any)  { Logger().Debug(withContext(ctx, args...)...) }
func Info(ctx context.Context, args ...any)   { Logger().Info(withContext(ctx, args...)...) }
func Warn(ctx context.Context, args ...any)   { Logger().Warn(withContext(ctx, args...)...) }
func Error(ctx context.Context, args ...any)  { Logger().Error(withContext(ctx, args...)...) }

func Debugf(ctx context.Context, format string, args ...any) {
	Logger().Debugf(format, withContext(ctx, args...)...)
}

func Infof(ctx context.Context, format string, args ...any) {
	Logger().Infof(format, withContext(ctx, args...)...)
}

func Warnf(ctx context.Context, format string, args ...any) {
	Logger().Warnf(format, withContext(ctx, args...)...)
}

func Errorf(ctx context.Context, format string, args ...any) {
	Logger().Errorf(format, withContext(ctx, args...)...)
}

// Fatalf logs at error level, then invokes the fatal handler (os.Exit(1) by default).
func Fatalf(ctx context.Context, format string, args ...any) {
	Logger().Errorf(format, withContext(ctx, args...)...)

	if handler, ok := fatalHandler.Load().(fatalHandlerFunc); ok {
		handler()
	}
}

// DebugKV logs a message plus structured key/value pairs.
func DebugKV(ctx context.Context, msg string, keysAndValues ...any) {
	Logger().Debugw(msg, withContext(ctx, keysAndValues...)...)
}

// InfoKV logs a message plus structured key/value pairs.
func InfoKV(ctx context.Context, msg string, keysAndValues ...any) {
	Logger().Infow(msg, withContext(ctx, keysAndValues...)...)
}

// WarnKV logs a message plus structured key/value pairs.
func WarnKV(ctx context.Context, msg string, keysAndValues ...any) {
	Logger().Warnw(msg, withContext(ctx, keysAndValues...)...)
}

// ErrorKV logs a message plus structured key/value pairs.
func ErrorKV(ctx context.Context, msg string, keysAndValues ...any) {
	Logger().Errorw(msg, withContext(ctx, keysAndValues...)...)
}
