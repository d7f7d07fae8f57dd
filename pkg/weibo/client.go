package weibo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "weibocrawler/pkg/errors"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/ratelimit"
)

// maxBodyPreview bounds how much of an unparseable body is logged
const maxBodyPreview = 200

// Client talks to the upstream container API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter throttles every request through l
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithCookie sends the given session cookie with every request
func WithCookie(cookie string) Option {
	return func(c *Client) {
		if cookie != "" {
			c.headers["Cookie"] = cookie
		}
	}
}

// WithUserAgent overrides the default user agent
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.headers["User-Agent"] = ua
		}
	}
}

// NewClient creates a new API client
func NewClient(timeout time.Duration, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":       "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
			"Accept":           "application/json, text/plain, */*",
			"Accept-Language":  "zh-CN,zh;q=0.9,en;q=0.8",
			"Referer":          "https://m.weibo.cn/",
			"X-Requested-With": "XMLHttpRequest",
			"MWeibo-Pwa":       "1",
		},
		baseURL: BaseURL,
		logger:  logger.OrGlobal(log),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// BaseURL returns the host the client talks to
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "network error")
	}

	logger.LogRequest(c.logger, req.Method, url, resp.StatusCode, float64(duration.Microseconds())/1000)

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, errs.FromStatusCode(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

// GetText performs a GET request and returns the body as a string
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}
	return string(body), nil
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) error {
	body, err := c.GetText(ctx, url)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(body), target); err != nil {
		preview := body
		if len(preview) > maxBodyPreview {
			preview = preview[:maxBodyPreview] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse JSON")
	}
	return nil
}

// FetchProfile fetches the profile card of a user
func (c *Client) FetchProfile(ctx context.Context, userID string) (*ProfileResponse, error) {
	var response ProfileResponse
	if err := c.GetJSON(ctx, ProfileURL(c.baseURL, userID), &response); err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", userID, err)
	}
	if !response.OK {
		return nil, errs.New(errs.ErrorTypeAPINotOK, fmt.Sprintf("profile %s not ok: %s", userID, response.Msg))
	}
	return &response, nil
}

// FetchPage fetches one page of a user's timeline
func (c *Client) FetchPage(ctx context.Context, userID string, page int) (*PageResponse, error) {
	var response PageResponse
	if err := c.GetJSON(ctx, PageURL(c.baseURL, userID, page), &response); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	if !response.OK {
		return nil, errs.New(errs.ErrorTypeAPINotOK, fmt.Sprintf("page %d not ok: %s", page, response.Msg))
	}
	return &response, nil
}

// FetchDetail fetches the raw detail page of a status
func (c *Client) FetchDetail(ctx context.Context, statusID string) (string, error) {
	body, err := c.GetText(ctx, DetailURL(c.baseURL, statusID))
	if err != nil {
		return "", fmt.Errorf("fetch detail %s: %w", statusID, err)
	}
	return body, nil
}
