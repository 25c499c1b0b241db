package log

// Two-sink zap logging for the PartyServer client
// File sink receives every level with JSON-encoded fields
// Console sink shows only success and error lines for CLI users
// Loggers are no-ops until Init is called, importing the package has no side effects

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger = zap.NewNop()
var consoleLogger = zap.NewNop()

var mu sync.RWMutex

// Options controls where and how much Init logs
type Options struct {
	Dir     string // directory for client.log, empty disables the file sink
	Level   string // debug, info, warn, error
	Console bool   // print success/error lines to stderr
}

// Init builds the file and console loggers
// Calling it again replaces the previous loggers
func Init(opts Options) error {
	level := zapcore.DebugLevel
	if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	fileLog := zap.NewNop()
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		core := zapcore.NewCore(
			newFileEncoder(),
			getLogFileWriter(filepath.Join(opts.Dir, "client.log")),
			level,
		)
		fileLog = zap.New(core)
	}

	console := zap.NewNop()
	if opts.Console {
		consoleConfig := zap.NewDevelopmentConfig()
		consoleConfig.EncoderConfig.EncodeLevel = customLevelEncoder
		consoleConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		consoleConfig.EncoderConfig.EncodeCaller = nil
		consoleConfig.Development = false
		consoleConfig.DisableStacktrace = true
		consoleConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

		var err error
		console, err = consoleConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to build console logger: %w", err)
		}
	}

	mu.Lock()
	Logger = fileLog
	consoleLogger = console
	mu.Unlock()
	return nil
}

// SetLogger swaps the file logger, used by tests with zaptest/observer
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	Logger = l
}

// Sync flushes both sinks
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = Logger.Sync()
	_ = consoleLogger.Sync()
}

func loggers() (*zap.Logger, *zap.Logger) {
	mu.RLock()
	defer mu.RUnlock()
	return Logger, consoleLogger
}

// GenerateRequestID returns a correlation id for one outbound call
func GenerateRequestID() string {
	return uuid.NewString()
}

// RequestLogger returns the file logger bound to request_id
func RequestLogger(requestID string) *zap.Logger {
	l, _ := loggers()
	return l.With(zap.String("request_id", requestID))
}

// LogRequest records an outbound HTTP request (file only)
func LogRequest(requestID, method, endpoint string, fields ...zap.Field) {
	l, _ := loggers()
	allFields := append([]zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("endpoint", endpoint),
	}, fields...)
	l.Info("HTTP request", allFields...)
}

// LogResponse records an HTTP exchange result
// Non-2xx and transport failures (status 0) also reach the console
func LogResponse(requestID string, statusCode int, durationMs int64, fields ...zap.Field) {
	l, console := loggers()
	allFields := append([]zap.Field{
		zap.String("request_id", requestID),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", durationMs),
	}, fields...)

	if statusCode >= 200 && statusCode < 300 {
		l.Info("HTTP response", allFields...)
		return
	}

	l.Error("HTTP response", allFields...)
	if endpoint := fieldsToString(fields); endpoint != "" {
		console.Error(fmt.Sprintf("✗ HTTP request failed [%d] %s", statusCode, endpoint))
	} else {
		console.Error(fmt.Sprintf("✗ HTTP request failed [%d]", statusCode))
	}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

func customLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(colorCyan + "DEBUG" + colorReset)
	case zapcore.InfoLevel:
		enc.AppendString(colorGreen + "SUCCESS" + colorReset) // console INFO is only used by LogSuccess
	case zapcore.WarnLevel:
		enc.AppendString(colorYellow + "WARN" + colorReset)
	case zapcore.ErrorLevel, zapcore.FatalLevel, zapcore.PanicLevel:
		enc.AppendString(colorRed + level.CapitalString() + colorReset)
	default:
		enc.AppendString(colorWhite + level.String() + colorReset)
	}
}

func LogInfo(message string, fields ...zap.Field) {
	l, _ := loggers()
	l.Info(message, fields...)
}

// LogSuccess writes to the file and prints a check line to the console
func LogSuccess(message string, fields ...zap.Field) {
	l, console := loggers()
	l.Info(message, fields...)

	if durationMs := extractDuration(fields); durationMs > 0 {
		console.Info(fmt.Sprintf("✓ %s (%dms)", message, durationMs))
	} else {
		console.Info("✓ " + message)
	}
}

// LogError writes to the file and prints a cross line to the console
func LogError(message string, fields ...zap.Field) {
	l, console := loggers()
	l.Error(message, fields...)

	if durationMs := extractDuration(fields); durationMs > 0 {
		console.Error(fmt.Sprintf("✗ %s (%dms)", message, durationMs))
	} else {
		console.Error("✗ " + message)
	}
}

func LogWarn(message string, fields ...zap.Field) {
	l, _ := loggers()
	l.Warn(message, fields...)
}

func LogDebug(message string, fields ...zap.Field) {
	l, _ := loggers()
	l.Debug(message, fields...)
}

// LogJSON logs an API payload, indented when it is valid JSON
func LogJSON(data []byte, label string) {
	l, _ := loggers()
	var pretty interface{}
	if err := json.Unmarshal(data, &pretty); err != nil {
		l.Debug(label, zap.String("payload", string(data)))
		return
	}
	formatted, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		l.Debug(label, zap.String("payload", string(data)))
		return
	}
	l.Debug(label, zap.String("payload", string(formatted)))
}

func extractDuration(fields []zap.Field) int64 {
	for _, field := range fields {
		if field.Key == "duration_ms" && field.Type == zapcore.Int64Type {
			return field.Integer
		}
	}
	return 0
}

func fieldsToString(fields []zap.Field) string {
	for _, field := range fields {
		if field.Key == "endpoint" {
			return field.String
		}
	}
	return ""
}
