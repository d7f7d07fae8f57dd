package sink

import (
	"context"

	"weibocrawler/pkg/logger"
)

// WithRunID tags ctx with the id of the crawl session doing the write. The
// same id shows up as session_id on loggers derived with WithContext.
func WithRunID(ctx context.Context, id string) context.Context {
	return logger.ContextWithSession(ctx, id)
}

// RunID returns the session id carried by ctx, if any
func RunID(ctx context.Context) string {
	return logger.SessionFromContext(ctx)
}
