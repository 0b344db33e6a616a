// Package webhook posts decoded UADP events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pithecene-io/uadp/adapter"
)

const (
	// DefaultTimeout bounds a single POST.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 3
	// DefaultBackoff is the delay before the first retry; it doubles on
	// each further retry.
	DefaultBackoff = 500 * time.Millisecond

	maxRetryAfter = 30 * time.Second
)

// Identity headers sent with every event so receivers can route without
// decoding the body.
const (
	HeaderKind        = "X-Uadp-Kind"
	HeaderPublisherID = "X-Uadp-Publisher-Id"
	HeaderWriterID    = "X-Uadp-Writer-Id"
	HeaderContract    = "X-Uadp-Contract-Version"
)

// Config configures the webhook adapter.
type Config struct {
	URL string
	// Headers are added to each request after the identity headers.
	Headers map[string]string
	// Codec is "json" (default) or "msgpack".
	Codec   string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Adapter publishes decoded events via HTTP POST.
type Adapter struct {
	config Config
	codec  adapter.Codec
	client *http.Client
}

// New validates cfg and fills its defaults.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	codec, err := adapter.NewCodec(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Adapter{
		config: cfg,
		codec:  codec,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	// RetryAfter is the delay the server asked for, if any.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Temporary reports whether the request may succeed if repeated: 5xx,
// 408 and 429.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// Publish posts the encoded event. Network errors and temporary statuses
// are retried with doubling backoff, or after the server's Retry-After
// when that is longer; any other status fails at once.
func (a *Adapter) Publish(ctx context.Context, event *adapter.DecodedEvent) error {
	body, err := a.codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	delay := a.config.Backoff
	for attempt := 0; ; attempt++ {
		err = a.post(ctx, event, body)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return fmt.Errorf("webhook: %s %d: %w", event.Kind, event.WriterID, err)
		}
		if attempt == a.config.Retries {
			return fmt.Errorf("webhook: failed after %d attempts: %w", attempt+1, err)
		}

		wait := delay
		if se != nil && se.RetryAfter > wait {
			wait = se.RetryAfter
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("webhook: %w", ctx.Err())
		case <-time.After(wait):
		}
		delay *= 2
	}
}

func (a *Adapter) post(ctx context.Context, event *adapter.DecodedEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", a.codec.ContentType())
	req.Header.Set(HeaderKind, event.Kind)
	req.Header.Set(HeaderWriterID, strconv.Itoa(int(event.WriterID)))
	if event.PublisherID != "" {
		req.Header.Set(HeaderPublisherID, event.PublisherID)
	}
	if event.ContractVersion != "" {
		req.Header.Set(HeaderContract, event.ContractVersion)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 == 2 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
}

// retryAfter parses a delay-seconds Retry-After value, capped at
// maxRetryAfter. HTTP dates are ignored.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
