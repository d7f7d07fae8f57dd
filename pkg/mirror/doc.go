// Package mirror copies the images and videos attached to posts into a
// remote store without uploading the same file twice.
//
// Files land in root/{screen_name}/{img|video}/ under deterministic names
// (see FileNames). Each destination folder is listed once per Run and the
// listing is consulted before every download, so re-running over the same
// posts uploads nothing new. Assets that fail to download or upload are
// appended to a per-category Sidecar log and the crawl carries on.
package mirror
