package npid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Cookie names the backend sets on a successful login. Their presence is
// a cheap validity heuristic only — real validity is known after a live
// round trip succeeds.
const (
	cookieSession        = "laravel_session"
	cookieRememberPrefix = "remember_web_"
)

// SessionStore owns the authenticated HTTP state against the legacy
// backend: the cookie set, the login handshake, and its persistence to a
// single access-restricted file per installation.
//
// Concurrent re-authentication is serialized: two operations discovering
// a dead session at the same time produce one login, not two.
type SessionStore struct {
	baseURL string
	file    string
	client  *http.Client
	jar     *memoryJar
	logger  *slog.Logger

	mu              sync.Mutex
	csrfSeed        string
	lastValidatedAt time.Time
}

// NewSessionStore creates a store for the given backend. The HTTP client
// never follows redirects: a 302 to the login page is a failure signature
// the resilience layer must observe, not transparently chase.
func NewSessionStore(baseURL, file string, timeout time.Duration, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	jar := newMemoryJar()
	return &SessionStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		file:    file,
		jar:     jar,
		logger:  logger,
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Client returns the HTTP client carrying the session cookies.
func (s *SessionStore) Client() *http.Client { return s.client }

// BaseURL returns the backend base URL without a trailing slash.
func (s *SessionStore) BaseURL() string { return s.baseURL }

// sessionFile is the on-disk session record.
type sessionFile struct {
	Cookies         []sessionCookie `json:"cookies"`
	CSRFSeed        string          `json:"csrf_seed"`
	LastValidatedAt time.Time       `json:"last_validated_at"`
	SavedAt         time.Time       `json:"saved_at"`
}

type sessionCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// Load reads the persisted session record. A missing or corrupt file
// yields KindAuthenticationRequired; the caller decides whether to run
// the login handshake.
func (s *SessionStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.file)
	if err != nil {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("read session file: %w", err)}
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("corrupt session file: %w", err)}
	}
	if len(f.Cookies) == 0 {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("session file holds no cookies")}
	}
	s.jar.restore(f.Cookies)
	s.csrfSeed = f.CSRFSeed
	s.lastValidatedAt = f.LastValidatedAt
	s.logger.Info("Loaded session", "file", s.file, "cookies", len(f.Cookies))
	return nil
}

// LikelyValid reports whether the expected auth cookies are present. It
// is a heuristic only and never a substitute for Validate.
func (s *SessionStore) LikelyValid() bool {
	hasSession, hasRemember := false, false
	for _, c := range s.jar.snapshot() {
		switch {
		case c.Name == cookieSession:
			hasSession = true
		case strings.HasPrefix(c.Name, cookieRememberPrefix):
			hasRemember = true
		}
	}
	return hasSession || hasRemember
}

// Validate performs a live round trip against the backend's login-check
// endpoint. Only a true result confirms the session.
func (s *SessionStore) Validate(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/external/logincheck", nil)
	if err != nil {
		return false, fmt.Errorf("create logincheck request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("logincheck: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read logincheck body: %w", err)
	}
	var check struct {
		Success any `json:"success"`
	}
	if err := json.Unmarshal(body, &check); err != nil {
		return false, nil
	}
	ok := check.Success == "true" || check.Success == true
	if ok {
		s.mu.Lock()
		s.lastValidatedAt = time.Now()
		s.mu.Unlock()
	}
	return ok, nil
}

// Authenticate performs the login handshake: fetch the login page,
// extract the CSRF seed token, post the credential form, and expect a
// 302 away from the login page. The resulting cookie set is persisted.
func (s *SessionStore) Authenticate(ctx context.Context, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if email == "" || password == "" {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("no credentials configured")}
	}

	loginURL := s.baseURL + "/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return fmt.Errorf("create login page request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("fetch login page: %w", err)}
	}
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("read login page: %w", err)}
	}
	token := extractToken(page)
	if token == "" {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("no CSRF token on login page")}
	}

	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	form.Set("_token", token)
	form.Set("remember", "on") // long-lived remember cookie
	post, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	post.Header.Set("Referer", loginURL)

	resp, err = s.client.Do(post)
	if err != nil {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("login post: %w", err)}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("login failed with status %d", resp.StatusCode)}
	}

	s.csrfSeed = token
	s.lastValidatedAt = time.Now()
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.logger.Info("Authenticated against legacy backend", "base_url", s.baseURL)
	return nil
}

// Save persists the current cookie state. Called after refreshes that
// rotate cookies mid-session.
func (s *SessionStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *SessionStore) saveLocked() error {
	f := sessionFile{
		Cookies:         s.jar.snapshot(),
		CSRFSeed:        s.csrfSeed,
		LastValidatedAt: s.lastValidatedAt,
		SavedAt:         time.Now(),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if dir := filepath.Dir(s.file); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	// 0600: the file holds live session secrets.
	if err := os.WriteFile(s.file, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Serializable cookie jar
// --------------------------------------------------------------------------

// memoryJar is a minimal serializable cookie jar. All adapter traffic
// targets a single host, so cookies are keyed by name alone — the same
// model the backend's own session handling assumes.
type memoryJar struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
}

func newMemoryJar() *memoryJar {
	return &memoryJar{cookies: make(map[string]*http.Cookie)}
}

func (j *memoryJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(j.cookies, c.Name)
			continue
		}
		cc := *c
		j.cookies[c.Name] = &cc
	}
}

func (j *memoryJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, 0, len(j.cookies))
	now := time.Now()
	for _, c := range j.cookies {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

func (j *memoryJar) snapshot() []sessionCookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]sessionCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		out = append(out, sessionCookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Domain:  c.Domain,
			Expires: c.Expires,
		})
	}
	return out
}

func (j *memoryJar) restore(cookies []sessionCookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[string]*http.Cookie, len(cookies))
	for _, c := range cookies {
		j.cookies[c.Name] = &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Domain:  c.Domain,
			Expires: c.Expires,
		}
	}
}
