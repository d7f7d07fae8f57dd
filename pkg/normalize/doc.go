// Package normalize converts raw statuses into canonical records.
//
// Truncated statuses are expanded through the detail page, reposts carry a
// resolved copy of their original, counters are converted to integers and
// every free-text field passes through the Sanitizer.
package normalize
