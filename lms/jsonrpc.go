package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dotside-studios/nfc-juke/buildinfo"
	"github.com/dotside-studios/nfc-juke/metrics"
)

const (
	defaultTimeout        = 5 * time.Second
	defaultRetries        = 1
	defaultBackoff        = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultRateLimit      = 10
	defaultRateLimitBurst = 20
)

// Options configures the JSON-RPC transport.
type Options struct {
	Timeout        time.Duration
	MaxRetries     int // -1 disables retries
	Backoff        time.Duration
	MaxBackoff     time.Duration
	Username       string
	Password       string
	RateLimit      rate.Limit
	RateLimitBurst int
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	return opts
}

// JSONRPC talks to the server's /jsonrpc.js endpoint.
type JSONRPC struct {
	endpoint   string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	username   string
	password   string
	nextID     atomic.Int64
}

// NewJSONRPC creates a transport for the server at host:port.
func NewJSONRPC(host string, port int, opts Options) *JSONRPC {
	return newJSONRPC("http://"+net.JoinHostPort(host, strconv.Itoa(port))+"/jsonrpc.js", opts)
}

func newJSONRPC(endpoint string, opts Options) *JSONRPC {
	nopts := normalizeOptions(opts)
	return &JSONRPC{
		endpoint:   endpoint,
		http:       &http.Client{Timeout: nopts.Timeout},
		limiter:    rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		username:   nopts.Username,
		password:   nopts.Password,
	}
}

type rpcRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params [2]any `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result Result          `json:"result"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Request implements Transport.
func (c *JSONRPC) Request(ctx context.Context, playerID string, command []string) (Result, error) {
	op := opName(command)
	if command == nil {
		command = []string{}
	}
	body, err := json.Marshal(rpcRequest{
		ID:     c.nextID.Add(1),
		Method: "slim.request",
		Params: [2]any{playerID, command},
	})
	if err != nil {
		return nil, &Error{Sentinel: ErrBadResponse, Op: op, Err: err}
	}

	start := time.Now()
	res, err := c.do(ctx, op, body)
	metrics.ObservePlayerRequest("jsonrpc", op, time.Since(start), err)
	return res, err
}

func (c *JSONRPC) do(ctx context.Context, op string, body []byte) (Result, error) {
	maxAttempts := c.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classify(op, 0, err)
		}

		res, retry, err := c.attempt(ctx, op, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retry || attempt == maxAttempts {
			break
		}
		if err := sleepWithContext(ctx, c.backoffFor(attempt-1)); err != nil {
			return nil, classify(op, 0, err)
		}
	}
	return nil, lastErr
}

func (c *JSONRPC) attempt(ctx context.Context, op string, body []byte) (Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, &Error{Sentinel: ErrUnavailable, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, classify(op, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, true, &Error{Sentinel: ErrUnavailable, Op: op, Status: resp.StatusCode}
		}
		return nil, false, &Error{Sentinel: ErrRejected, Op: op, Status: resp.StatusCode}
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, &Error{Sentinel: ErrBadResponse, Op: op, Err: err}
	}
	if len(out.Error) > 0 && string(out.Error) != "null" {
		return nil, false, &Error{Sentinel: ErrRejected, Op: op, Err: errors.New(string(out.Error))}
	}
	if out.Result == nil {
		out.Result = Result{}
	}
	return out.Result, false, nil
}

func (c *JSONRPC) backoffFor(retry int) time.Duration {
	d := c.backoff << retry
	if d > c.maxBackoff || d <= 0 {
		d = c.maxBackoff
	}
	return d
}

func classify(op string, status int, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Sentinel: ErrTimeout, Op: op, Status: status, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Sentinel: ErrTimeout, Op: op, Status: status, Err: err}
	default:
		return &Error{Sentinel: ErrUnavailable, Op: op, Status: status, Err: err}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// opName is the first command token, used for errors and metric labels.
func opName(command []string) string {
	if len(command) == 0 {
		return "request"
	}
	return fmt.Sprintf("%.32s", command[0])
}
