// Package parser fetches product snapshots from the shop: one price
// request per batch and one item page per product.
package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Houeta/price-flow/internal/metrics"
	"github.com/Houeta/price-flow/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const maxBodySize = 8 << 20

// SnapshotFetcher returns the current state of a batch of products.
// Results are correlated by product id; an error means the whole batch failed.
type SnapshotFetcher interface {
	FetchBatch(ctx context.Context, ids []string) ([]models.FetchResult, error)
}

// Options configures the Parser.
type Options struct {
	ItemURL         string
	PriceURL        string
	UserAgent       string
	Timeout         time.Duration
	RateLimit       float64
	Burst           int
	Workers         int
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
}

type Parser struct {
	log     *slog.Logger
	client  *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	opts    Options
}

var _ SnapshotFetcher = (*Parser)(nil)

func NewParser(log *slog.Logger, opts Options, m *metrics.Metrics) *Parser {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if !strings.HasSuffix(opts.ItemURL, "/") {
		opts.ItemURL += "/"
	}

	return &Parser{
		log:     log,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, opts.Burst),
		metrics: m,
		opts:    opts,
	}
}

// FetchBatch fetches prices for ids in one request, then every item page.
// A failed price request fails the batch; a failed page only fails its id.
func (p *Parser) FetchBatch(ctx context.Context, ids []string) ([]models.FetchResult, error) {
	const opn = "parser.FetchBatch"

	if len(ids) == 0 {
		return nil, nil
	}

	prices, err := p.fetchPrices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	results := make([]models.FetchResult, len(ids))

	var group errgroup.Group
	group.SetLimit(p.opts.Workers)

	for i, id := range ids {
		group.Go(func() error {
			snapshot, fetchErr := p.fetchItem(ctx, id)
			if fetchErr != nil {
				p.log.WarnContext(ctx, "Failed to fetch item page", "op", opn, "product_id", id, "error", fetchErr)
				results[i] = models.FetchResult{ProductID: id, Err: fetchErr}
				return nil
			}

			snapshot.Price = prices[id]
			results[i] = models.FetchResult{ProductID: id, Snapshot: snapshot}

			return nil
		})
	}
	_ = group.Wait()

	return results, nil
}

// get issues a rate limited GET and retries transient failures.
func (p *Parser) get(ctx context.Context, endpoint, reqURL, referer string) ([]byte, string, error) {
	op := "parser.get." + endpoint

	for attempt := 0; ; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, "", transportError(op, err)
		}

		body, contentType, ferr := p.do(ctx, op, reqURL, referer)
		if ferr == nil {
			p.metrics.IncFetch(endpoint, metrics.ResultOK)
			return body, contentType, nil
		}

		if !ferr.Retryable() || attempt >= p.opts.MaxRetries || ctx.Err() != nil {
			p.metrics.IncFetch(endpoint, string(ferr.Kind))
			return nil, "", ferr
		}

		p.metrics.IncFetch(endpoint, metrics.ResultRetry)
		delay := p.backoff(attempt + 1)
		p.log.DebugContext(ctx, "Retrying request", "op", op, "URL", reqURL, "attempt", attempt+1, "delay", delay, "error", ferr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, "", transportError(op, ctx.Err())
		case <-timer.C:
		}
	}
}

func (p *Parser) do(ctx context.Context, op, reqURL, referer string) ([]byte, string, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", &FetchError{Op: op, Kind: KindConnection, Err: fmt.Errorf("failed to create new request %s: %w", reqURL, err)}
	}

	req.Header.Add("User-Agent", p.opts.UserAgent)
	req.Header.Add("Referer", referer)

	p.log.DebugContext(ctx, "Send request", "method", req.Method, "URL", req.URL)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, "", transportError(op, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, "", statusError(op, res)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, "", transportError(op, err)
	}

	return body, res.Header.Get("Content-Type"), nil
}

// backoff doubles RetryBackoff per attempt, capped at RetryBackoffMax.
func (p *Parser) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := p.opts.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if maxDelay := p.opts.RetryBackoffMax; maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	return delay
}
