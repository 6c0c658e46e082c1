package logger

import (
	"context"
	"os"

	"github.com/KretovDmitry/ordergate/internal/config"
	sqldblogger "github.com/simukti/sqldb-logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a logger that supports log levels, context and structured logging.
type Logger interface {
	// With returns a logger based off the root logger and decorates it with
	// the given context and arguments.
	With(ctx context.Context, args ...any) Logger

	// Debug uses fmt.Sprint to construct and log a message at DEBUG level
	Debug(args ...any)
	// Info uses fmt.Sprint to construct and log a message at INFO level
	Info(args ...any)
	// Warn uses fmt.Sprint to construct and log a message at WARN level
	Warn(args ...any)
	// Error uses fmt.Sprint to construct and log a message at ERROR level
	Error(args ...any)

	// Debugf uses fmt.Sprintf to construct and log a message at DEBUG level
	Debugf(format string, args ...any)
	// Infof uses fmt.Sprintf to construct and log a message at INFO level
	Infof(format string, args ...any)
	// Warnf uses fmt.Sprintf to construct and log a message at WARN level
	Warnf(format string, args ...any)
	// Errorf uses fmt.Sprintf to construct and log a message at ERROR level
	Errorf(format string, args ...any)

	// Sync flushes any buffered log entries.
	Sync() error

	// Every query through database/sql is logged with the same logger.
	sqldblogger.Logger
}

type logger struct {
	*zap.SugaredLogger
}

type contextKey int

const (
	requestIDKey contextKey = iota
	correlationIDKey
)

var _ Logger = (*logger)(nil)

// New creates a new logger using the application configuration.
// Entries go to stdout and, when a path is configured, to a rotated file.
func New(cfg *config.Config) Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Logger.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	if cfg.Logger.Path != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Logger.Path,
			MaxSize:    cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAge:     cfg.Logger.MaxAgeDays,
		}))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.NewMultiWriteSyncer(sinks...),
		level,
	)

	return NewWithZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
}

// NewWithZap creates a new logger using the preconfigured zap logger.
func NewWithZap(l *zap.Logger) Logger {
	return &logger{l.Sugar()}
}

// NewForTest returns a new logger and the corresponding observed logs
// which can be used in unit tests to verify log entries.
func NewForTest() (Logger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewWithZap(zap.New(core)), recorded
}

// With returns a logger based off the root logger and decorates it with
// the given context and arguments.
//
// If the context contains request ID and/or correlation ID information
// (recorded via WithRequestID()), they will be added to every log message
// generated by the new logger.
//
// The arguments should be specified as a sequence of name, value pairs
// with names being strings.
// The arguments will also be added to every log message generated by the logger.
func (l *logger) With(ctx context.Context, args ...any) Logger {
	if ctx != nil {
		if id, ok := ctx.Value(requestIDKey).(string); ok {
			args = append(args, zap.String("request_id", id))
		}
		if id, ok := ctx.Value(correlationIDKey).(string); ok {
			args = append(args, zap.String("correlation_id", id))
		}
	}
	if len(args) > 0 {
		return &logger{l.SugaredLogger.With(args...)}
	}
	return l
}

// Log implements sqldblogger.Logger.
func (l *logger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	fields := make([]any, 0, len(data)*2)
	for k, v := range data {
		fields = append(fields, k, v)
	}

	switch level {
	case sqldblogger.LevelError:
		l.Errorw(msg, fields...)
	case sqldblogger.LevelInfo:
		l.Infow(msg, fields...)
	default:
		l.Debugw(msg, fields...)
	}
}

// WithRequestID returns a context which knows the request ID and correlation ID
// in the given request.
func WithRequestID(ctx context.Context, requestID, correlationID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	if correlationID != "" {
		ctx = context.WithValue(ctx, correlationIDKey, correlationID)
	}
	return ctx
}

// RequestIDFromContext returns the request ID stored by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
