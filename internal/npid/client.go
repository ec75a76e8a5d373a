package npid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Doer dispatches one wire request. *http.Client satisfies it; tests
// substitute recorded fixtures.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client orchestrates one backend operation end to end: token
// acquisition, translation, rate-limited dispatch, failure-signature
// detection, a single bounded retry, and normalization.
type Client struct {
	baseURL   string
	transport Doer
	tokens    *TokenManager
	limiter   *rate.Limiter
	apiKey    string
	logger    *slog.Logger
}

// NewClient creates an operation client. requestsPerMinute throttles
// calls against the legacy backend with a token bucket.
func NewClient(baseURL string, transport Doer, tokens *TokenManager, requestsPerMinute int, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		tokens:    tokens,
		limiter:   rate.NewLimiter(rate.Limit(rps), requestsPerMinute/6+1),
		apiKey:    apiKey,
		logger:    logger,
	}
}

// Execute runs one registered operation. On a detected failure signature
// it invalidates the context's token and retries exactly once; a
// signature that survives the retry becomes LegacyProtocolFailure.
//
// A timeout after dispatching a write is Indeterminate, never retried:
// the server-side effect is unknown, and resubmitting a non-idempotent
// form without caller confirmation could double-apply it.
func (c *Client) Execute(ctx context.Context, name string, params map[string]string, contextKey string) (*Result, error) {
	op, ok := Lookup(name)
	if !ok {
		return nil, &Error{Kind: KindUnknownOperation, Op: name, Err: fmt.Errorf("operation not registered")}
	}
	if contextKey == "" {
		contextKey = ContextGlobal
	}

	for attempt := 0; ; attempt++ {
		token := ""
		if op.RequiresToken {
			t, err := c.tokens.Token(ctx, contextKey)
			if err != nil {
				return nil, err
			}
			token = t
		}

		wr, err := translateOp(op, params, token, c.apiKey)
		if err != nil {
			return nil, err
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindLegacyProtocolFailure, Op: name, Err: fmt.Errorf("rate limit wait: %w", err)}
		}

		status, header, body, err := c.dispatch(ctx, wr)
		if err != nil {
			return nil, c.classifyTransport(op, err)
		}

		sig := FailureSignature(op, status, header, body)
		if sig == "" {
			return Normalize(op, header, body)
		}

		if attempt == 0 {
			// One refresh resolves legacy token mismatches empirically;
			// anything beyond that would mask genuine outages.
			c.logger.Warn("Failure signature detected, refreshing token",
				"op", name, "context", contextKey, "signature", sig)
			c.tokens.Invalidate(contextKey)
			continue
		}

		return nil, &Error{
			Kind:      KindLegacyProtocolFailure,
			Op:        name,
			Signature: sig,
			Raw:       truncate(body, 500),
		}
	}
}

func (c *Client) dispatch(ctx context.Context, wr *WireRequest) (int, http.Header, []byte, error) {
	var reqBody io.Reader
	if len(wr.Form) > 0 {
		reqBody = strings.NewReader(wr.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, wr.Method, wr.URL(c.baseURL), reqBody)
	if err != nil {
		return 0, nil, nil, err
	}
	for key, vals := range wr.Header {
		for _, v := range vals {
			req.Header.Set(key, v)
		}
	}

	start := time.Now()
	resp, err := c.transport.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	c.logger.Debug("Dispatched legacy request",
		"method", wr.Method, "path", wr.Path,
		"status", resp.StatusCode, "elapsed", time.Since(start).Round(time.Millisecond))
	return resp.StatusCode, resp.Header, body, nil
}

// classifyTransport reclassifies raw transport errors into the adapter
// taxonomy. The backend has no cancellation protocol: once a write is on
// the wire, a timeout means its effect is indeterminate.
func (c *Client) classifyTransport(op Operation, err error) error {
	timedOut := errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err)
	if timedOut && op.Method == http.MethodPost {
		return &Error{Kind: KindIndeterminate, Op: op.Name, Err: err}
	}
	return &Error{Kind: KindLegacyProtocolFailure, Op: op.Name, Signature: "transport", Err: err}
}

func isClientTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// FailureSignature is the pure failure-detection predicate over
// (status, headers, body prefix). A non-empty return names the detected
// session/token problem; business-logic errors do not match.
func FailureSignature(op Operation, status int, header http.Header, body []byte) string {
	if status >= http.StatusMultipleChoices && status < http.StatusBadRequest {
		if strings.Contains(header.Get("Location"), "/auth/login") {
			return "login-redirect"
		}
	}
	// Laravel answers a CSRF mismatch with 419 Page Expired.
	if status == 419 {
		return "token-mismatch"
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 && op.Hint != HintEmptyOK {
		return "empty-body"
	}
	if (op.Hint == HintJSON || op.Hint == HintNestedJSON) && len(trimmed) > 0 && trimmed[0] == '<' {
		return "html-where-json-expected"
	}
	return ""
}
