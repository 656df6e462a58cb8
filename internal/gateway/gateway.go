package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/oauth2"
)

// RequestTimeout bounds every backend request.
const RequestTimeout = 30 * time.Second

// Client is the single outbound pipeline to the admin backend. Every feature module goes
// through it, so token attachment and eviction behave the same everywhere.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

type Options struct {
	// Evictor is invoked on the invalid admin token signal
	Evictor Evictor

	// Transport is the underlying RoundTripper, http.DefaultTransport when nil
	Transport http.RoundTripper

	Logger *log.Logger
}

func New(baseURL string, tokens oauth2.TokenSource, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.New("gateway")
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	transport := &authTransport{
		base: &evictTransport{
			base:    base,
			evictor: opts.Evictor,
			logger:  logger,
		},
		tokens: tokens,
		logger: logger,
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   RequestTimeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// Do sends in (JSON encoded, may be nil) and decodes a 2xx response into out (may be nil).
func (c *Client) Do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		c.logger.Debugf("%s %s failed: %v", method, path, err)
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxInspectedBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
			Body:       respBody,
			Evicted:    resp.Header.Get(evictedHeader) != "",
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in any, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// errorMessage pulls a human-readable message out of the backend's usual error shapes.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
