package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	errs "weibocrawler/pkg/errors"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/retry"
)

// Fetcher downloads one asset into memory
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options tunes the HTTP side of a Downloader
type Options struct {
	// Retries is the number of extra attempts after a connection failure
	Retries        int
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for headers and for each body read
	ReadTimeout time.Duration
	UserAgent   string
	// Cookie is sent as the Cookie header when set
	Cookie string
}

// Downloader fetches media with short timeouts and a fixed retry budget
// that only covers transport failures. HTTP error statuses are returned
// as they are.
type Downloader struct {
	client      *http.Client
	readTimeout time.Duration
	retries     int
	userAgent   string
	cookie      string
	sleep       retry.SleepFunc
	logger      logger.Logger
}

// Option customizes a Downloader
type Option func(*Downloader)

// WithSleep replaces the wait between attempts
func WithSleep(sleep retry.SleepFunc) Option {
	return func(d *Downloader) { d.sleep = sleep }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) { d.client = client }
}

// New creates a downloader
func New(opts Options, log logger.Logger, extra ...Option) *Downloader {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout
	transport.ResponseHeaderTimeout = opts.ReadTimeout

	d := &Downloader{
		client:      &http.Client{Transport: transport},
		readTimeout: opts.ReadTimeout,
		retries:     opts.Retries,
		userAgent:   opts.UserAgent,
		cookie:      opts.Cookie,
		sleep:       retry.Wait,
		logger:      logger.OrGlobal(log),
	}
	for _, opt := range extra {
		opt(d)
	}
	return d
}

// Fetch downloads url into memory
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	cfg := &retry.Config{
		MaxAttempts: d.retries + 1,
		Backoff:     &retry.ExponentialBackoff{BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2},
		RetryIf: func(err error) bool {
			return errs.Is(err, errs.ErrorTypeNetwork)
		},
		Context: ctx,
		Sleep:   d.sleep,
		Logger:  d.logger,
	}
	return retry.DoWithResult(func() ([]byte, error) {
		return d.fetchOnce(ctx, url)
	}, cfg)
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if d.cookie != "" {
		req.Header.Set("Cookie", d.cookie)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "download "+url)
	}
	defer resp.Body.Close()

	logger.LogRequest(d.logger, http.MethodGet, url, resp.StatusCode, float64(time.Since(start).Milliseconds()))

	if resp.StatusCode >= 400 {
		return nil, errs.FromStatusCode(resp.StatusCode, "download "+url)
	}

	// A stalled body cancels the request once no byte arrives for readTimeout
	timer := time.AfterFunc(d.readTimeout, cancel)
	defer timer.Stop()

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(chunk)
		buf.Write(chunk[:n])
		timer.Reset(d.readTimeout)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "read "+url)
		}
	}
	return buf.Bytes(), nil
}
