// Package apiclient implements the process-wide, rate-limited HTTP/JSON
// client the upload engine uses to talk to the backend (spec.md §4.3, §6).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tonimelisma/chunkupload/internal/config"
)

const defaultRetryAfter = 1 * time.Second

// Client is a queueing HTTP/JSON client enforcing the documented rate
// quota. A single Client is shared by every UploadEngine session so the
// limit is honored across all endpoints and all in-flight chunks.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	logger          *slog.Logger
	limiter         *slidingWindowLimiter
	testEnvironment bool

	// sleepFunc waits out a Retry-After on 429. Defaults to timeSleep;
	// tests override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a RateLimitedClient from client configuration.
func NewClient(cfg config.ClientConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	requests := cfg.RateLimitRequests
	if requests <= 0 {
		requests = 10
	}

	return &Client{
		baseURL:         cfg.BaseURL,
		httpClient:      httpClient,
		logger:          logger,
		limiter:         newSlidingWindowLimiter(requests, cfg.RateLimitWindowDuration()),
		testEnvironment: cfg.TestEnvironment,
		sleepFunc:       timeSleep,
	}
}

// Initiate starts an upload session.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	var resp InitiateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/upload/initiate", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// UploadChunk transfers one base64-encoded chunk. ctx is the caller's
// per-chunk abort token: cancelling it aborts in-flight I/O and yields
// ErrCancelled, which is never retried by the engine.
func (c *Client) UploadChunk(ctx context.Context, req UploadChunkRequest) (*UploadChunkResponse, error) {
	var resp UploadChunkResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/upload/chunk", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Finalize requests server-side assembly once all chunks have landed.
func (c *Client) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResponse, error) {
	var resp FinalizeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/upload/finalize", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Status queries server-side session progress. The upload engine does not
// call it; session restoration works from the locally persisted state.
func (c *Client) Status(ctx context.Context, uploadID string) (*StatusResponse, error) {
	var resp StatusResponse
	path := "/api/upload/status/" + uploadID

	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// doJSON performs one rate-limited, JSON-in/JSON-out round trip. A literal
// 429 from the backend is retried once, honoring Retry-After, before
// surfacing as ServerError — the engine's own MAX_RETRIES policy governs
// everything else.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	if !c.testEnvironment {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.classifyContextErr(err)
		}
	}

	resp, err := c.doOnce(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := retryAfterDuration(resp)

		c.logger.Warn("retrying after server throttle",
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("retry_after", wait),
		)

		resp.Body.Close()

		if err := c.sleepFunc(ctx, wait); err != nil {
			return c.classifyContextErr(err)
		}

		resp, err = c.doOnce(ctx, method, path, reqBody)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
	}

	return c.decodeResponse(resp, method, path, out)
}

// doOnce executes a single HTTP request with no retry/backoff of its own.
func (c *Client) doOnce(ctx context.Context, method, path string, reqBody any) (*http.Response, error) {
	var body io.Reader

	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encoding request: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: building request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("dispatching request", slog.String("method", method), slog.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrCancelled, method, path, ctx.Err())
		}

		return nil, fmt.Errorf("%w: %s %s%s: %w", ErrNetworkUnavailable, method, c.baseURL, path, err)
	}

	return resp, nil
}

// decodeResponse classifies non-2xx responses and decodes 2xx bodies.
func (c *Client) decodeResponse(resp *http.Response, method, path string, out any) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if out == nil {
			return nil
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("apiclient: decoding %s %s response: %w", method, path, err)
		}

		return nil
	}

	raw, _ := io.ReadAll(resp.Body)

	var envelope errorEnvelope

	message := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		message = envelope.Error
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    message,
		Err:        ErrServerError,
	}

	c.logger.Warn("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", apiErr.RequestID),
	)

	return apiErr
}

// classifyContextErr maps a cancelled/expired context into ErrCancelled;
// any other limiter error (there are none today) passes through unwrapped.
func (c *Client) classifyContextErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	return err
}

// retryAfterDuration reads Retry-After as seconds, falling back to a
// default when absent or unparseable.
func retryAfterDuration(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return defaultRetryAfter
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}

	return time.Duration(seconds) * time.Second
}
