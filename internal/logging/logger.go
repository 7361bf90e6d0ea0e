package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled logging with redaction support.
//
// Console loggers write human readable lines to stderr. JSON loggers are
// backed by zap and emit one object per line, which is what CloudWatch
// expects from a Lambda function.
type Logger struct {
	debug   bool
	noColor bool
	out     io.Writer
	fields  []interface{}
	zl      *zap.SugaredLogger
}

// New creates a console logger writing to stderr
func New(debug, noColor bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
		out:     os.Stderr,
	}
}

// NewJSON creates a structured JSON logger writing to stdout
func NewJSON(debug bool) *Logger {
	return NewJSONWriter(debug, os.Stdout)
}

// NewJSONWriter creates a structured JSON logger writing to w
func NewJSONWriter(debug bool, w io.Writer) *Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), level)
	return &Logger{
		debug: debug,
		out:   w,
		zl:    zap.New(core).Sugar(),
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{noColor: true, out: io.Discard}
}

// With returns a child logger that attaches the given key/value pairs to
// every message.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	child := *l
	child.fields = append(append([]interface{}{}, l.fields...), keysAndValues...)
	return &child
}

// Sync flushes buffered JSON output. It is a no-op for console loggers.
func (l *Logger) Sync() error {
	if l.zl != nil {
		return l.zl.Sync()
	}
	return nil
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.zl != nil {
		l.zl.Infow(msg, l.fields...)
		return
	}
	l.print("\033[32m✓\033[0m ", "✓ ", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.zl != nil {
		l.zl.Warnw(msg, l.fields...)
		return
	}
	l.print("\033[33m⚠\033[0m ", "⚠ ", msg)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.zl != nil {
		l.zl.Errorw(msg, l.fields...)
		return
	}
	l.print("\033[31m✗\033[0m ", "✗ ", msg)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.zl != nil {
		l.zl.Debugw(msg, l.fields...)
		return
	}
	l.print("\033[36m[DEBUG]\033[0m ", "[DEBUG] ", msg)
}

func (l *Logger) print(colorPrefix, plainPrefix, msg string) {
	prefix := colorPrefix
	if l.noColor {
		prefix = plainPrefix
	}
	fmt.Fprintf(l.out, "%s%s%s\n", prefix, msg, formatFields(l.fields))
}

func formatFields(fields []interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
		} else {
			fmt.Fprintf(&b, " %v", fields[i])
		}
	}
	return b.String()
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// MarshalText keeps secrets redacted in structured (JSON) output
func (s Secret) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
