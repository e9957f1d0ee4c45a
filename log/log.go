// Package log provides a leveled, structured logger for the whole project,
// built on top of zap. It is initialized once with Init and used through
// package-level functions.
package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel values accepted by Init.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"
)

// logTestWriterName is a reserved output name which sends the log output to
// logTestWriter. Used by tests and benchmarks.
const logTestWriterName = "logtestwriter"

var (
	log   *zap.SugaredLogger
	level string

	// logTestWriter is the writer used when Init is called with
	// logTestWriterName as output.
	logTestWriter io.Writer = io.Discard

	// panicOnInvalidChars is set based on env LOG_PANIC_ON_INVALIDCHARS
	// (parsed as bool).
	panicOnInvalidChars bool
)

func init() {
	// Always initialize the logger, to avoid nil panics when logging before
	// Init is called. $LOG_LEVEL allows overriding the default level
	// globally, which is handy when running tests.
	l := LogLevelError
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		l = s
	}
	Init(l, "stderr", nil)
}

// Logger returns the underlying zap logger.
func Logger() *zap.SugaredLogger { return log }

// Level returns the level the logger was initialized with.
func Level() string { return level }

// Init initializes the logger at the given level. Output can be "stdout",
// "stderr" or a file path. If errorOutput is not nil, warning and error
// messages are duplicated to it.
func Init(logLevel, output string, errorOutput io.Writer) {
	var syncer zapcore.WriteSyncer
	switch output {
	case "stdout":
		syncer = zapcore.AddSync(os.Stdout)
	case "stderr":
		syncer = zapcore.AddSync(os.Stderr)
	case logTestWriterName:
		syncer = zapcore.AddSync(zapcore.AddSync(writerFunc(func(p []byte) (int, error) {
			return logTestWriter.Write(p)
		})))
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot open log output %q: %v", output, err))
		}
		syncer = zapcore.AddSync(f)
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalColorLevelEncoder,
		EncodeTime: func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
			encoder.AppendString(ts.Local().Format(time.RFC3339))
		},
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), syncer, levelFromString(logLevel))
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if errorOutput != nil {
		errCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.AddSync(writerFunc(errorOutput.Write)), zap.WarnLevel)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, errCore)
		}))
	}
	log = logger.Sugar()
	level = logLevel

	if s := os.Getenv("LOG_PANIC_ON_INVALIDCHARS"); s != "" {
		// ignore ParseBool errors; on failure panicOnInvalidChars stays false
		b, _ := strconv.ParseBool(s)
		panicOnInvalidChars = b
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func levelFromString(logLevel string) zapcore.Level {
	switch logLevel {
	case LogLevelDebug:
		return zap.DebugLevel
	case LogLevelInfo:
		return zap.InfoLevel
	case LogLevelWarn:
		return zap.WarnLevel
	case LogLevelError:
		return zap.ErrorLevel
	case LogLevelFatal:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// checkInvalidChars panics if the formatted string contains the Unicode
// replacement char (U+FFFD) and LOG_PANIC_ON_INVALIDCHARS is true. Such a
// character most likely means a format mismatch in the caller.
func checkInvalidChars(args ...any) {
	if panicOnInvalidChars {
		s := fmt.Sprint(args...)
		if strings.ContainsRune(s, '�') {
			panic(fmt.Sprintf("log line with invalid chars: %s", s))
		}
	}
}

// Debug sends a debug level log message
func Debug(args ...any) {
	log.Debug(args...)
	checkInvalidChars(args...)
}

// Info sends an info level log message
func Info(args ...any) {
	log.Info(args...)
	checkInvalidChars(args...)
}

// Warn sends a warn level log message
func Warn(args ...any) {
	log.Warn(args...)
	checkInvalidChars(args...)
}

// Error sends an error level log message
func Error(args ...any) {
	log.Error(args...)
	checkInvalidChars(args...)
}

// Fatal sends a fatal level log message
func Fatal(args ...any) {
	log.Fatal(args...)
	checkInvalidChars(args...)
	// We don't support log levels lower than "fatal". Help analyzers see
	// that, in this package, Fatal always exits the program.
	panic("unreachable")
}

// Debugf sends a formatted debug level log message
func Debugf(template string, args ...any) {
	log.Debugf(template, args...)
	checkInvalidChars(fmt.Sprintf(template, args...))
}

// Infof sends a formatted info level log message
func Infof(template string, args ...any) {
	log.Infof(template, args...)
	checkInvalidChars(fmt.Sprintf(template, args...))
}

// Warnf sends a formatted warn level log message
func Warnf(template string, args ...any) {
	log.Warnf(template, args...)
	checkInvalidChars(fmt.Sprintf(template, args...))
}

// Errorf sends a formatted error level log message
func Errorf(template string, args ...any) {
	log.Errorf(template, args...)
	checkInvalidChars(fmt.Sprintf(template, args...))
}

// Fatalf sends a formatted fatal level log message
func Fatalf(template string, args ...any) {
	log.Fatalf(template, args...)
	checkInvalidChars(fmt.Sprintf(template, args...))
}

// Debugw sends a key-value formatted debug level log message
func Debugw(msg string, keysAndValues ...any) {
	log.Debugw(msg, keysAndValues...)
}

// Infow sends a key-value formatted info level log message
func Infow(msg string, keysAndValues ...any) {
	log.Infow(msg, keysAndValues...)
}

// Warnw sends a key-value formatted warn level log message
func Warnw(msg string, keysAndValues ...any) {
	log.Warnw(msg, keysAndValues...)
}

// Errorw sends a key-value formatted error level log message
func Errorw(msg string, keysAndValues ...any) {
	log.Errorw(msg, keysAndValues...)
}

// Fatalw sends a key-value formatted fatal level log message
func Fatalw(msg string, keysAndValues ...any) {
	log.Fatalw(msg, keysAndValues...)
}
