package downloader

import (
	"context"
	"sync"
	"time"

	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/ratelimit"
)

// Job is one asset of a post, identified by its position
type Job struct {
	Index int
	URL   string
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Data     []byte
	Err      error
	Duration time.Duration
}

// Pool fetches the assets of one post with a bounded number of workers.
// Results come back in job order regardless of completion order.
type Pool struct {
	numWorkers  int
	fetcher     Fetcher
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewPool creates a pool. A nil limiter disables rate limiting.
func NewPool(numWorkers int, fetcher Fetcher, rateLimiter ratelimit.Limiter, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers:  numWorkers,
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		logger:      logger.OrGlobal(log),
	}
}

// FetchAll downloads every url and returns one result per url
func (p *Pool) FetchAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))
	if len(urls) == 0 {
		return results
	}

	workers := p.numWorkers
	if workers > len(urls) {
		workers = len(urls)
	}

	jobQueue := make(chan Job, len(urls))
	for i, u := range urls {
		jobQueue <- Job{Index: i, URL: u}
	}
	close(jobQueue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for job := range jobQueue {
				results[job.Index] = p.processJob(ctx, job, id)
			}
		}(i)
	}
	wg.Wait()

	return results
}

// processJob handles a single download job
func (p *Pool) processJob(ctx context.Context, job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	if p.rateLimiter != nil && !p.rateLimiter.Allow() {
		p.logger.DebugWithFields("Worker waiting for rate limit", map[string]interface{}{
			"worker_id": workerID,
			"url":       job.URL,
		})
		if err := p.rateLimiter.Wait(ctx); err != nil {
			result.Err = err
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Data, result.Err = p.fetcher.Fetch(ctx, job.URL)
	result.Duration = time.Since(start)

	if result.Err == nil {
		p.logger.DebugWithFields("Worker completed job successfully", map[string]interface{}{
			"worker_id": workerID,
			"url":       job.URL,
			"size":      len(result.Data),
			"duration":  result.Duration,
		})
	}
	return result
}
