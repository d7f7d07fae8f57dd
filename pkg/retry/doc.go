// Package retry runs an operation until it succeeds, a non-retryable error
// is returned, or the attempt budget is spent.
//
//	cfg := retry.FromSettings(ctx, settings.Remote.FolderRetry, log)
//	id, err := retry.DoWithResult(func() (string, error) {
//		return store.CreateFolder(ctx, parent, title)
//	}, cfg)
//
// There is no unlimited mode; a MaxAttempts below one runs the operation once.
package retry
