package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const DefaultTimeout = 8 * time.Second

// Fetcher downloads a url straight to a file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) error
}

type Options struct {
	Timeout time.Duration
	// RequestsPerSecond paces all fetches of this client. 0 disables pacing.
	RequestsPerSecond float64
	Retries           uint64
	Backoff           time.Duration
}

// HTTP fetches over plain http with retries on transport errors and 5xx.
// It is safe for concurrent use.
type HTTP struct {
	client  *resty.Client
	limiter *rate.Limiter
	st      *storage.Storage
	opts    Options
}

func NewHTTP(st *storage.Storage, opts Options) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &HTTP{
		client:  resty.New().SetTimeout(opts.Timeout),
		limiter: rate.NewLimiter(limit, 1),
		st:      st,
		opts:    opts,
	}
}

func (h *HTTP) Fetch(ctx context.Context, url, dst string) error {
	backoff := retry.WithMaxRetries(h.opts.Retries, retry.NewExponential(h.opts.Backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := h.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("get %s: %w", url, err))
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("get %s: status %d", url, resp.StatusCode()))
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("get %s: status %d", url, resp.StatusCode())
		}
		return h.st.WriteFile(dst, resp.Body())
	})
}
