// Package ratelimit paces upstream traffic.
//
// TokenBucket caps raw request throughput for the HTTP client. PagePacer
// inserts the randomized pauses between pages that keep a long crawl from
// being throttled.
package ratelimit
