package logger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// LogRequest logs an upstream HTTP exchange
func LogRequest(log Logger, method, url string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		log.DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		log.WarnWithFields("HTTP request client error", fields)
	default:
		log.ErrorWithFields("HTTP request server error", fields)
	}
}

// LogPageFailure records a page that was skipped by the crawl loop. The
// account comes from the logger's context.
func LogPageFailure(log Logger, page int, err error) {
	log.WithField("page", page).WithError(err).Error("Page skipped")
}

// LogMediaFailure records an asset that could not be mirrored
func LogMediaFailure(log Logger, postID, url, kind string, err error) {
	log.WithFields(map[string]interface{}{
		"post_id": postID,
		"url":     url,
		"kind":    kind,
	}).WithError(err).Error("Media mirror failed")
}

// LogCrawlProgress logs page progress for one account
func LogCrawlProgress(log Logger, screenName string, page, pageCount, posts int) {
	percentage := 0.0
	if pageCount > 0 {
		percentage = float64(page) / float64(pageCount) * 100
	}

	log.WithFields(map[string]interface{}{
		"screen_name": screenName,
		"page":        page,
		"page_count":  pageCount,
		"posts":       posts,
		"percentage":  fmt.Sprintf("%.1f%%", percentage),
	}).Info("Crawl progress")
}

// LogComponentStart logs when a component starts
func LogComponentStart(log Logger, component string, config map[string]interface{}) {
	l := log.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// OrGlobal returns log, or the global logger when log is nil
func OrGlobal(log Logger) Logger {
	if log == nil {
		return GetLogger()
	}
	return log
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
