package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"reconciliation-service/config"
	"reconciliation-service/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrFetchIncomplete means the transaction window could not be fetched in
// full. A partial transaction set is never safe to reconcile against, so
// callers must abort the whole pass when they see this.
var ErrFetchIncomplete = errors.New("gateway fetch incomplete")

const (
	// maxWindowDays is the provider's maximum query window; wider
	// intervals are chunked and concatenated.
	maxWindowDays = 31

	maxAttempts  = 5
	backoffBase  = 500 * time.Millisecond
	requestDelay = 200 * time.Millisecond
)

// Client talks to the payment provider's transaction query API.
type Client struct {
	baseURL     string
	secretKey   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	pageLimit   int
	concurrency int
	logger      *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	concurrency := cfg.FetchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Client{
		baseURL:     cfg.GatewayBaseURL,
		secretKey:   cfg.GatewaySecretKey,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(requestDelay), 1),
		pageLimit:   cfg.FetchPageLimit,
		concurrency: concurrency,
		logger:      log,
	}
}

// FetchTransactions returns every transaction the provider settled in the
// half-open interval [start, end). The interval is split into
// provider-sized windows fetched by a bounded set of workers; any window
// failing fails the whole fetch.
func (c *Client) FetchTransactions(ctx context.Context, start, end time.Time) ([]models.GatewayTransaction, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid interval: start %s is not before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	windows := splitWindows(start, end)
	results := make([][]models.GatewayTransaction, len(windows))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, c.concurrency)

	for i, w := range windows {
		wg.Add(1)
		go func(i int, w window) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			txs, err := c.fetchWindow(ctx, w.start, w.end)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
				return
			}
			results[i] = txs
		}(i, w)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchIncomplete, err)
	}

	var all []models.GatewayTransaction
	for _, txs := range results {
		all = append(all, txs...)
	}
	return all, nil
}

// GetPayment looks up the provider's detail view of a single payment.
func (c *Client) GetPayment(ctx context.Context, paymentKey string) (*models.PaymentDetails, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, url.PathEscape(paymentKey))
	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var details models.PaymentDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("decode payment details: %w", err)
	}
	return &details, nil
}

type window struct {
	start, end time.Time
}

func splitWindows(start, end time.Time) []window {
	maxSpan := maxWindowDays * 24 * time.Hour
	var windows []window
	for s := start; s.Before(end); s = s.Add(maxSpan) {
		e := s.Add(maxSpan)
		if e.After(end) {
			e = end
		}
		windows = append(windows, window{start: s, end: e})
	}
	return windows
}

// fetchWindow follows continuation cursors until the provider reports a
// short page. Anything less than the full window is a hard failure.
func (c *Client) fetchWindow(ctx context.Context, start, end time.Time) ([]models.GatewayTransaction, error) {
	var all []models.GatewayTransaction
	cursor := ""

	for {
		page, err := c.fetchPage(ctx, start, end, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) < c.pageLimit {
			return all, nil
		}

		next := page[len(page)-1].TransactionKey
		if next == "" || next == cursor {
			return nil, fmt.Errorf("%w: pagination cursor did not advance", ErrFetchIncomplete)
		}
		cursor = next
	}
}

func (c *Client) fetchPage(ctx context.Context, start, end time.Time, cursor string) ([]models.GatewayTransaction, error) {
	// The provider query is inclusive on both bounds; the caller speaks
	// half-open intervals.
	q := url.Values{}
	q.Set("startDate", start.Format("2006-01-02T15:04:05"))
	q.Set("endDate", end.Add(-time.Second).Format("2006-01-02T15:04:05"))
	q.Set("limit", fmt.Sprintf("%d", c.pageLimit))
	if cursor != "" {
		q.Set("lastCursor", cursor)
	}

	body, err := c.doRequest(ctx, fmt.Sprintf("%s/v1/transactions?%s", c.baseURL, q.Encode()))
	if err != nil {
		return nil, err
	}

	var page []models.GatewayTransaction
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: decode transactions page: %v", ErrFetchIncomplete, err)
	}
	return page, nil
}

// doRequest performs one rate-limited GET with exponential backoff on
// throttling and server errors, up to the attempt ceiling.
func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchIncomplete, err)
		}

		body, retryable, err := c.doOnce(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, fmt.Errorf("%w: %v", ErrFetchIncomplete, err)
		}

		if attempt < maxAttempts {
			delay := backoffBase << (attempt - 1)
			c.logger.Warn("gateway request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrFetchIncomplete, ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("%w: giving up after %d attempts: %v", ErrFetchIncomplete, maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, endpoint string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.secretKey+":")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors are retryable unless the context is done.
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("gateway returned %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(data))
	}
}
