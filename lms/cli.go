package lms

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/metrics"
)

// loopStarts maps the key that opens a new loop record to the loop name the
// JSON-RPC interface uses for the same data.
var loopStarts = map[string]string{
	"playerindex":    "players_loop",
	"playlist index": "playlist_loop",
}

// CLI speaks the line based command-line protocol (default port 9090).
// A single connection is kept open and requests are serialized on it.
type CLI struct {
	addr     string
	timeout  time.Duration
	username string
	password string
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	logger   zerolog.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewCLI creates a CLI transport for the device configuration.
func NewCLI(cfg DeviceConfig, opts Options) *CLI {
	nopts := normalizeOptions(opts)
	var d net.Dialer
	return &CLI{
		addr:     cfg.Address(),
		timeout:  nopts.Timeout,
		username: nopts.Username,
		password: nopts.Password,
		dial:     d.DialContext,
		logger:   logging.WithComponent("lms-cli"),
	}
}

// Request implements Transport.
func (c *CLI) Request(ctx context.Context, playerID string, command []string) (Result, error) {
	op := opName(command)
	start := time.Now()
	res, err := c.request(ctx, op, playerID, command)
	metrics.ObservePlayerRequest("cli", op, time.Since(start), err)
	return res, err
}

func (c *CLI) request(ctx context.Context, op, playerID string, command []string) (Result, error) {
	tokens := make([]string, 0, len(command)+1)
	if playerID != "" {
		tokens = append(tokens, playerID)
	}
	tokens = append(tokens, command...)

	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.roundTrip(ctx, tokens)
	if err != nil && isStale(err) && ctx.Err() == nil {
		// The server drops idle connections; redial once.
		c.resetLocked()
		reply, err = c.roundTrip(ctx, tokens)
	}
	if err != nil {
		c.resetLocked()
		return nil, classify(op, 0, err)
	}
	return parseReply(reply, len(tokens)), nil
}

func (c *CLI) roundTrip(ctx context.Context, tokens []string) ([]string, error) {
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	c.applyDeadline(ctx)

	if _, err := io.WriteString(c.conn, EncodeLine(tokens)); err != nil {
		return nil, err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return DecodeLine(line), nil
}

func (c *CLI) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dial(dialCtx, "tcp", c.addr)
	if err != nil {
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.logger.Info().Str("addr", c.addr).Msg("connected to LMS CLI")

	if c.username != "" {
		c.applyDeadline(ctx)
		if _, err := io.WriteString(conn, EncodeLine([]string{"login", c.username, c.password})); err != nil {
			c.resetLocked()
			return err
		}
		if _, err := c.reader.ReadString('\n'); err != nil {
			c.resetLocked()
			return fmt.Errorf("login: %w", err)
		}
	}
	return nil
}

func (c *CLI) applyDeadline(ctx context.Context) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)
}

func (c *CLI) resetLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.logger.Debug().Str("addr", c.addr).Msg("LMS CLI connection closed")
	}
	c.conn = nil
	c.reader = nil
}

// Close drops the connection. The next request reconnects.
func (c *CLI) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return nil
}

func isStale(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// EncodeLine percent-encodes each token and joins them into one request line.
func EncodeLine(tokens []string) string {
	escaped := make([]string, len(tokens))
	for i, tok := range tokens {
		escaped[i] = strings.ReplaceAll(url.QueryEscape(tok), "+", "%20")
	}
	return strings.Join(escaped, " ") + "\n"
}

// DecodeLine splits a reply line into decoded tokens. '+' decodes to a space;
// a token with a malformed escape is kept verbatim.
func DecodeLine(line string) []string {
	fields := strings.Fields(strings.TrimRight(line, "\r\n"))
	out := make([]string, len(fields))
	for i, f := range fields {
		if dec, err := url.QueryUnescape(f); err == nil {
			out[i] = dec
		} else {
			out[i] = f
		}
	}
	return out
}

// parseReply folds the tagged tokens after the echoed request into a Result.
// Keys that open a loop record ("playerindex", "playlist index") start a new
// object in the matching *_loop field; later keys land in that object.
func parseReply(tokens []string, echoed int) Result {
	res := Result{}
	if echoed > len(tokens) {
		echoed = len(tokens)
	}

	var (
		loopName string
		current  Result
	)
	for _, tok := range tokens[echoed:] {
		key, value, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}
		if name, starts := loopStarts[key]; starts {
			flushLoop(res, loopName, current)
			loopName = name
			current = Result{key: value}
			continue
		}
		if current != nil {
			current[key] = value
			continue
		}
		res[key] = value
	}
	flushLoop(res, loopName, current)
	return res
}

func flushLoop(res Result, name string, record Result) {
	if record == nil {
		return
	}
	loop, _ := res[name].([]any)
	res[name] = append(loop, map[string]any(record))
}
