// Package logger provides the structured logging interface used across the
// crawler. It wraps zerolog with a small field-oriented API.
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//	log := logger.GetLogger().WithField("user_id", "1669879400")
//	log.InfoWithFields("Page fetched", map[string]interface{}{"page": 3})
//
// Components take a Logger at construction; a nil Logger falls back to the
// global instance. NewNopLogger and NewTestLogger serve tests.
package logger
