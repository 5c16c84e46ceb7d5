package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// retryPolicy is shared by the HTTP-backed searchers.
type retryPolicy struct {
	Retries int
	Backoff time.Duration
}

func (r retryPolicy) attempts() int {
	if r.Retries < 0 {
		return 1
	}
	return r.Retries + 1
}

func (r retryPolicy) delay(attempt int) time.Duration {
	base := r.Backoff
	if base <= 0 {
		base = 400 * time.Millisecond
	}
	shift := attempt
	if shift > 5 {
		shift = 5
	}
	return base * time.Duration(1<<shift)
}

func fetchJSONWithRetry(ctx context.Context, client *http.Client, endpoint, label string, policy retryPolicy, out any) error {
	attempts := policy.attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		err := fetchJSONOnce(ctx, client, endpoint, label, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
		case <-time.After(policy.delay(attempt)):
		}
	}
	return fmt.Errorf("%w: exhausted retries", ErrTransient)
}

func fetchJSONOnce(ctx context.Context, client *http.Client, endpoint, label string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s request canceled: %w", label, ctx.Err())
		}
		if isNetworkTransient(err) {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return fmt.Errorf("%s request failed: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(body))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s request failed: %s: %s", ErrAuthRequired, label, resp.Status, msg)
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s request failed: %s: %s", ErrRateLimited, label, resp.Status, msg)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %s request failed: %s: %s", ErrTransient, label, resp.Status, msg)
		default:
			return fmt.Errorf("%s request failed: %s: %s", label, resp.Status, msg)
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", label, err)
	}
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

func isNetworkTransient(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
