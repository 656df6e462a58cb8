package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"golang.org/x/oauth2"
)

// InvalidTokenMessage is the exact error string the backend sends for a dead admin token.
const InvalidTokenMessage = "Forbidden: Invalid admin token."

// Largest error body inspected for the eviction signal.
const maxInspectedBody = 64 << 10

// Evictor is told when the backend has invalidated the session. It must be safe to call
// concurrently and repeatedly.
type Evictor interface {
	Evict()
}

type EvictorFunc func()

func (f EvictorFunc) Evict() { f() }

type credentialReader interface {
	Token() string
}

type storeTokenSource struct {
	store credentialReader
}

// TokenSourceFromStore exposes the credential store's bearer token as an oauth2.TokenSource.
// It is read on every request, never cached.
func TokenSourceFromStore(store credentialReader) oauth2.TokenSource {
	return storeTokenSource{store: store}
}

func (s storeTokenSource) Token() (*oauth2.Token, error) {
	tok := s.store.Token()
	if tok == "" {
		return nil, errNoToken
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

type noTokenError struct{}

func (noTokenError) Error() string { return "no bearer token stored" }

var errNoToken error = noTokenError{}

// authTransport attaches the stored bearer token and a request ID. Without a token the
// request goes out unauthenticated.
type authTransport struct {
	base   http.RoundTripper
	tokens oauth2.TokenSource
	logger *log.Logger
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())

	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	if t.tokens != nil {
		tok, err := t.tokens.Token()
		if err == nil {
			tok.SetAuthHeader(req)
		} else if err != errNoToken {
			t.logger.Warnf("Couldn't read bearer token, sending %s %s unauthenticated: %v", req.Method, req.URL.Path, err)
		}
	}

	return t.base.RoundTrip(req)
}

// evictTransport watches every response for the invalid admin token signal.
type evictTransport struct {
	base    http.RoundTripper
	evictor Evictor
	logger  *log.Logger
}

func (t *evictTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusForbidden {
		return resp, err
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxInspectedBody))
	resp.Body.Close()
	// Hand the caller a body it can still read
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if readErr != nil {
		return resp, nil
	}

	if isInvalidTokenBody(body) {
		t.logger.Warnf("Backend rejected the admin token on %s %s (request %s), evicting session",
			req.Method, req.URL.Path, req.Header.Get("X-Request-ID"))

		if t.evictor != nil {
			t.evictor.Evict()
		}
		resp.Header.Set(evictedHeader, "1")
	}

	return resp, nil
}

// Internal marker so Client.Do can tell the response triggered eviction.
const evictedHeader = "X-Gatekeep-Evicted"

func isInvalidTokenBody(body []byte) bool {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Error == InvalidTokenMessage
}
