// Package remote mirrors a hierarchical folder tree onto an object store.
//
// Store is the capability the media mirror uploads through. LocalStore
// keeps the tree on disk and GCSStore keeps it in a Cloud Storage bucket
// using "/"-terminated prefixes as folders.
//
// DirectoryCache sits in front of a Store and answers folder lookups from
// memory after the first resolution. Failed lookups are retried with
// exponential backoff up to a fixed number of attempts, after which
// ErrRetriesExhausted is returned:
//
//	dirs := remote.NewDirectoryCache(store, cfg.Remote.FolderRetry, log)
//	folderID, err := dirs.ResolvePath(ctx, "weibo", screenName, "img")
package remote
