package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const (
	streamPath = "/generate/stream"
	uploadPath = "/upload"

	defaultTimeout  = 60 * time.Second
	defaultMaxTries = 4
	maxLineSize     = 1 << 20
	maxErrorBody    = 4 << 10
)

// Request is a single completion request.
type Request struct {
	Prompt         string
	Temperature    float64
	TopProbability float64
}

type streamRequest struct {
	Shell          string  `json:"shell"`
	OS             string  `json:"os"`
	Prompt         string  `json:"prompt"`
	Temperature    float64 `json:"temperature"`
	TopProbability float64 `json:"top_probability"`
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("completion service error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("completion service error (status %d): %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the remote completion service.
type Client struct {
	baseURL      string
	http         *http.Client
	timeout      time.Duration
	logger       zerolog.Logger
	maxTries     uint
	retryInitial time.Duration
	system       func() (shell, os string)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds how long the service may take to start answering, and
// the whole of an upload.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for retries and upload failures.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetry sets the total number of attempts and the first backoff interval.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.retryInitial = initial
	}
}

// WithSystemInfo overrides how the shell and OS names are detected.
func WithSystemInfo(fn func() (shell, os string)) Option {
	return func(c *Client) { c.system = fn }
}

// New creates a Client for the service at apiHost.
func New(apiHost string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(apiHost, "/"),
		timeout:      defaultTimeout,
		logger:       zerolog.Nop(),
		maxTries:     defaultMaxTries,
		retryInitial: 500 * time.Millisecond,
		system:       SystemInfo,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		// The timeout must not cover the body: a completion may stream for
		// longer than it takes the service to start answering.
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = c.timeout
		c.http = &http.Client{Transport: transport}
	}
	return c
}

// Stream sends req and yields completion chunks as the service produces them.
// A transport, status or decoding failure is yielded as the final element.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		shell, osName := c.system()
		payload, err := json.Marshal(streamRequest{
			Shell:          shell,
			OS:             osName,
			Prompt:         req.Prompt,
			Temperature:    req.Temperature,
			TopProbability: req.TopProbability,
		})
		if err != nil {
			yield("", fmt.Errorf("marshaling request: %w", err))
			return
		}

		resp, err := c.open(ctx, payload)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
		for scanner.Scan() {
			chunk, ok, done, err := parseLine(scanner.Text())
			if err != nil {
				yield("", err)
				return
			}
			if done {
				return
			}
			if !ok {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("reading stream: %w", err))
		}
	}
}

// open posts the request, retrying throttling and server errors. Once a 2xx
// response arrives no further retries happen.
func (c *Client) open(ctx context.Context, payload []byte) (*http.Response, error) {
	op := func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("sending request: %w", err))
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		serr := statusError(resp)
		if serr.Temporary() {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn().Err(err).Dur("retry_in", next).Msg("completion request failed, retrying")
		}),
	)
}

func statusError(resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// parseLine decodes one line of the response body. ok is false for lines that
// carry no chunk; done is true for the end-of-stream marker.
func parseLine(line string) (chunk string, ok, done bool, err error) {
	data := strings.TrimPrefix(line, "data:")
	if len(data) != len(line) {
		data = strings.TrimPrefix(data, " ")
	}
	data = strings.TrimRight(data, "\r")
	if strings.TrimSpace(data) == "" {
		return "", false, false, nil
	}
	if data == "[DONE]" {
		return "", false, true, nil
	}
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, false, fmt.Errorf("decoding chunk %q: %w", truncate(data, 80), err)
	}
	return chunk, true, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == code
}
