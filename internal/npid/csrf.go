package npid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// Token context keys. A token fetched for one context is not valid for
// another: the assignment modal and the reply composer each embed their
// own token, and the login page carries the session-global one.
//
//	global
//	assign:<messageID>:<itemCode>
//	reply:<messageID>:<itemCode>
const (
	ContextGlobal = "global"
	contextAssign = "assign"
	contextReply  = "reply"
)

// AssignContext builds the token context key for an assignment modal.
func AssignContext(messageID, itemCode string) string {
	return fmt.Sprintf("%s:%s:%s", contextAssign, messageID, itemCode)
}

// ReplyContext builds the token context key for a reply composer.
func ReplyContext(messageID, itemCode string) string {
	return fmt.Sprintf("%s:%s:%s", contextReply, messageID, itemCode)
}

// tokenEntry caches one context's token. Each entry has its own mutex so
// staleness in one context never blocks fetches in another, while two
// operations against the same context serialize.
type tokenEntry struct {
	mu        sync.Mutex
	value     string
	fetchedAt time.Time
	stale     bool
}

// TokenManager fetches, caches, and invalidates the backend's
// anti-forgery tokens, one per context.
type TokenManager struct {
	store  *SessionStore
	logger *slog.Logger
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]*tokenEntry
}

// NewTokenManager creates a manager backed by the given session. Tokens
// older than ttl are refetched even when not explicitly invalidated;
// zero ttl disables age-based expiry.
func NewTokenManager(store *SessionStore, ttl time.Duration, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		store:   store,
		logger:  logger,
		ttl:     ttl,
		entries: make(map[string]*tokenEntry),
	}
}

// Token returns a cached non-stale token for the context, fetching the
// context's source page when needed.
func (m *TokenManager) Token(ctx context.Context, contextKey string) (string, error) {
	e := m.entry(contextKey)
	e.mu.Lock()
	defer e.mu.Unlock()

	expired := m.ttl > 0 && !e.fetchedAt.IsZero() && time.Since(e.fetchedAt) > m.ttl
	if e.value != "" && !e.stale && !expired {
		return e.value, nil
	}

	token, err := m.fetch(ctx, contextKey)
	if err != nil {
		return "", err
	}
	e.value = token
	e.fetchedAt = time.Now()
	e.stale = false
	m.logger.Debug("Fetched CSRF token", "context", contextKey)
	return token, nil
}

// Invalidate marks the context's cached token stale so the next Token
// call refetches it.
func (m *TokenManager) Invalidate(contextKey string) {
	e := m.entry(contextKey)
	e.mu.Lock()
	e.stale = true
	e.mu.Unlock()
	m.logger.Debug("Invalidated CSRF token", "context", contextKey)
}

func (m *TokenManager) entry(key string) *tokenEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &tokenEntry{}
		m.entries[key] = e
	}
	return e
}

// fetch retrieves the context's source page and extracts the embedded
// token.
func (m *TokenManager) fetch(ctx context.Context, contextKey string) (string, error) {
	path, query, err := tokenSource(contextKey)
	if err != nil {
		return "", err
	}
	u := m.store.BaseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	resp, err := m.store.Client().Do(req)
	if err != nil {
		return "", &Error{Kind: KindLegacyProtocolFailure, Signature: "token-fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices && strings.Contains(resp.Header.Get("Location"), "/auth/login") {
		return "", &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("token page redirected to login")}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindLegacyProtocolFailure, Signature: "token-fetch", Err: err}
	}
	token := extractToken(body)
	if token == "" {
		return "", &Error{
			Kind:      KindLegacyProtocolFailure,
			Signature: "token-missing",
			Raw:       truncate(body, 200),
			Err:       fmt.Errorf("no token on %s", path),
		}
	}
	return token, nil
}

// tokenSource maps a context key to the page that embeds its token.
func tokenSource(contextKey string) (string, url.Values, error) {
	parts := strings.SplitN(contextKey, ":", 3)
	switch parts[0] {
	case ContextGlobal:
		return "/auth/login", nil, nil
	case contextAssign:
		if len(parts) != 3 {
			return "", nil, fmt.Errorf("malformed assign context %q", contextKey)
		}
		return "/rulestemplates/template/assignemailtovideoteam", url.Values{
			"message_id": {parts[1]},
			"itemcode":   {parts[2]},
		}, nil
	case contextReply:
		if len(parts) != 3 {
			return "", nil, fmt.Errorf("malformed reply context %q", contextKey)
		}
		return "/rulestemplates/template/videoteam_msg_sendingto", url.Values{
			"id":       {parts[1]},
			"itemcode": {parts[2]},
			"tab":      {"inbox"},
		}, nil
	}
	return "", nil, fmt.Errorf("unknown token context %q", contextKey)
}

// extractToken pulls the anti-forgery token out of a page. The backend
// embeds it in one of two places: a hidden form input named "_token" or
// a page-level csrf-token meta tag.
func extractToken(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	var fromInput, fromMeta string
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "input":
			if attr(n, "name") == "_token" && fromInput == "" {
				fromInput = attr(n, "value")
			}
		case "meta":
			if attr(n, "name") == "csrf-token" && fromMeta == "" {
				fromMeta = attr(n, "content")
			}
		}
	})
	if fromInput != "" {
		return fromInput
	}
	return fromMeta
}
