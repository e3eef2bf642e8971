package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rmax-ai/ontoma/pkg/lookup"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAttempts = 3
	maxErrorBody    = 512
)

// Transport performs JSON requests against a remote service, retrying
// transport failures, 429 and 5xx responses.
type Transport struct {
	Service     ServiceID
	Client      *http.Client
	Backoff     BackoffStrategy
	MaxAttempts int
}

// NewTransport returns a transport with a per-request timeout and attempt budget.
// Zero values fall back to 10s and 3 attempts.
func NewTransport(service ServiceID, timeout time.Duration, attempts int) *Transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &Transport{
		Service:     service,
		Client:      &http.Client{Timeout: timeout},
		Backoff:     DefaultBackoff(),
		MaxAttempts: attempts,
	}
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// DoJSON sends the request built by newReq and decodes a 200 response into out.
// Every failure is returned as a *lookup.ServiceError.
func (t *Transport) DoJSON(ctx context.Context, op string, newReq RequestFunc, out any) error {
	attempts := t.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := t.Backoff
	if backoff == nil {
		backoff = ConstantBackoff(0)
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr *lookup.ServiceError
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff.Next(attempt-1)); err != nil {
				return t.fail(op, 0, err)
			}
		}

		start := time.Now()
		status, retry, err := t.once(ctx, client, newReq, out)
		observe(t.Service, status, err, time.Since(start))
		if err == nil {
			return nil
		}

		lastErr = t.fail(op, status, err)
		if !retry || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (t *Transport) once(ctx context.Context, client *http.Client, newReq RequestFunc, out any) (status int, retry bool, err error) {
	req, err := newReq(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retry = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return resp.StatusCode, retry, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	if out == nil {
		return resp.StatusCode, false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, false, fmt.Errorf("malformed response: %w", err)
	}
	return resp.StatusCode, false, nil
}

func (t *Transport) fail(op string, status int, err error) *lookup.ServiceError {
	var se *lookup.ServiceError
	if errors.As(err, &se) {
		return se
	}
	return &lookup.ServiceError{Service: string(t.Service), Op: op, StatusCode: status, Err: err}
}

func statusLabel(status int, err error) string {
	if status == 0 {
		if err != nil {
			return "transport_error"
		}
		return "ok"
	}
	return strconv.Itoa(status)
}
