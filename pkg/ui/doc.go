// Package ui prints colored status lines, a per-account crawl progress bar
// and desktop notifications.
package ui
