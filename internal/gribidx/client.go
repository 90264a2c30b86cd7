package gribidx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ctessum/sparse"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrIndexStalled is returned when the remote index stops advancing for
	// longer than the configured wait. A stalled index means the model run
	// was aborted upstream; retrying further is pointless.
	ErrIndexStalled = errors.New("gribidx: index stopped advancing")

	// ErrMissingSelector marks a requested selector that matches no line of
	// an accepted index. The index is only accepted once every selector
	// matches, so a selector that never appears ends in ErrIndexStalled or
	// a context error instead.
	ErrMissingSelector = errors.New("gribidx: selector not found in index")
)

// Decoder unpacks the bit stream of a single GRIB2 message into a dense
// (ny, nx) frame. Bit-unpacking is pluggable; the bundled implementation
// handles simple packing.
type Decoder interface {
	Decode(data []byte, ny, nx int) (*sparse.DenseArray, error)
}

// Message is one decoded field handed back to the scheduler.
type Message struct {
	Selector   string
	Frame      *sparse.DenseArray
	Attributes Attributes
}

// Client fetches indexed GRIB messages with retry. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	decoder    Decoder
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates an index client. The decoder is invoked once per matched
// message.
func NewClient(decoder Decoder, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		decoder:    decoder,
		clock:      clock,
		logger:     logger,
	}
}

// DownloadIndexed fetches url+".idx", matches each selector against the index
// lines, and issues one ranged GET per match. Messages are returned in
// selector order; several lines matching one selector follow index order.
// It keeps polling a missing or incomplete index until the context
// deadline, and fails with ErrIndexStalled when the index body has not
// changed for waitAfterLastModified.
func (c *Client) DownloadIndexed(ctx context.Context, url string, selectors []string, ny, nx int, waitAfterLastModified time.Duration) ([]Message, error) {
	entries, err := c.awaitIndex(ctx, url+".idx", selectors, waitAfterLastModified)
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, sel := range selectors {
		matched := Match(entries, sel)
		if len(matched) == 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrMissingSelector, sel, url)
		}
		for _, e := range matched {
			body, err := c.fetchRange(ctx, url, e.Offset, e.End)
			if err != nil {
				return nil, fmt.Errorf("gribidx: fetch %q from %s: %w", sel, url, err)
			}
			frame, err := c.decoder.Decode(body, ny, nx)
			if err != nil {
				return nil, fmt.Errorf("gribidx: decode %q from %s: %w", sel, url, err)
			}
			messages = append(messages, Message{
				Selector:   sel,
				Frame:      frame,
				Attributes: ParseAttributes(e),
			})
		}
	}
	return messages, nil
}

// awaitIndex polls the index until every selector matches, the index stalls,
// or the context expires.
func (c *Client) awaitIndex(ctx context.Context, idxURL string, selectors []string, wait time.Duration) ([]Entry, error) {
	var (
		lastBody     string
		lastProgress = c.clock.Now()
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0 // bounded by ctx

	var entries []Entry
	operation := func() error {
		body, status, err := c.fetch(ctx, idxURL)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			return fmt.Errorf("gribidx: index not published yet: %s", idxURL)
		}
		if status != http.StatusOK {
			return fmt.Errorf("gribidx: index fetch status %d: %s", status, idxURL)
		}

		if body != lastBody {
			lastBody = body
			lastProgress = c.clock.Now()
		} else if c.clock.Since(lastProgress) > wait {
			return backoff.Permanent(fmt.Errorf("%w: no change for %s at %s", ErrIndexStalled, wait, idxURL))
		}

		parsed, err := ParseIndex(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		for _, sel := range selectors {
			if len(Match(parsed, sel)) == 0 {
				// The index grows as the writer appends records; an absent
				// selector is retryable until the index stalls.
				return fmt.Errorf("gribidx: index incomplete, waiting for %q", sel)
			}
		}
		entries = parsed
		return nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.Debug("index retry", "url", idxURL, "error", err, "next_attempt_in", next)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		if errors.Is(err, ErrIndexStalled) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gribidx: waiting for index %s (%v): %w", idxURL, err, ctx.Err())
		}
		return nil, err
	}
	return entries, nil
}

func (c *Client) fetch(ctx context.Context, url string) (body string, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("gribidx: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(b), resp.StatusCode, nil
}

// fetchRange issues a ranged GET for [start, end). end < 0 requests to EOF.
func (c *Client) fetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	var data []byte
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if end >= 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return data, nil
}
