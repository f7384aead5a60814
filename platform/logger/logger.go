// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// LeadIDKey is the context key for the lead being processed
	LeadIDKey contextKey = "lead_id"
	// CycleIDKey is the context key for the batch cycle identifier
	CycleIDKey contextKey = "cycle_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, lead_id, and cycle_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if leadID, ok := ctx.Value(LeadIDKey).(string); ok && leadID != "" {
		newLogger = newLogger.WithLeadID(leadID)
	}

	if cycleID, ok := ctx.Value(CycleIDKey).(string); ok && cycleID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("cycle_id", cycleID))}
	}

	return newLogger
}

// WithLeadID returns a logger with the lead ID attached.
func (l *Logger) WithLeadID(leadID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("lead_id", leadID)),
	}
}

// PolicyRejection logs a hard-rule validation failure. These are expected
// outcomes, not errors, so they log at info level.
func (l *Logger) PolicyRejection(leadID, action string, reasons []string) {
	l.Info("policy_rejection",
		slog.String("lead_id", leadID),
		slog.String("action", action),
		slog.Any("reasons", reasons),
	)
}

// QualityWarning logs soft-rule hits for an action that still proceeds.
func (l *Logger) QualityWarning(leadID, action string, warnings []string) {
	l.Warn("quality_warning",
		slog.String("lead_id", leadID),
		slog.String("action", action),
		slog.Any("warnings", warnings),
	)
}

// ChannelError logs a delivery failure on an outbound channel.
func (l *Logger) ChannelError(channel, leadID string, err error) {
	l.Error("channel_error",
		slog.String("channel", channel),
		slog.String("lead_id", leadID),
		slog.String("error", err.Error()),
	)
}

// OracleCall logs a decision-oracle invocation result.
func (l *Logger) OracleCall(leadID, action string, latencyMs float64) {
	l.Info("oracle_call",
		slog.String("lead_id", leadID),
		slog.String("action", action),
		slog.Float64("latency_ms", latencyMs),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit violations
func (l *Logger) RateLimitExceeded(ip, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("ip", ip),
		slog.String("path", path),
	)
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}
