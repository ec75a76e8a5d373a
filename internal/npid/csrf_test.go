package npid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenTestServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var fetches int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&fetches, 1)
		fmt.Fprintf(w, `<html><head><meta name="csrf-token" content="global-%d"></head></html>`, n)
	})
	mux.HandleFunc("/rulestemplates/template/assignemailtovideoteam", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		fmt.Fprintf(w, `<form><input type="hidden" name="_token" value="assign-%s-%s"></form>`,
			r.URL.Query().Get("message_id"), r.URL.Query().Get("itemcode"))
	})
	mux.HandleFunc("/rulestemplates/template/videoteam_msg_sendingto", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		fmt.Fprintf(w, `<form><input type="hidden" name="_token" value="reply-%s"></form>`,
			r.URL.Query().Get("id"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func newTokenManager(t *testing.T, srv *httptest.Server, ttl time.Duration) *TokenManager {
	t.Helper()
	store := NewSessionStore(srv.URL, filepath.Join(t.TempDir(), "session.json"), 5*time.Second, nil)
	return NewTokenManager(store, ttl, nil)
}

func TestTokenCachedPerContext(t *testing.T) {
	srv, fetches := newTokenTestServer(t)
	m := newTokenManager(t, srv, 0)
	ctx := context.Background()

	tok1, err := m.Token(ctx, ContextGlobal)
	require.NoError(t, err)
	tok2, err := m.Token(ctx, ContextGlobal)
	require.NoError(t, err)

	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int32(1), atomic.LoadInt32(fetches), "second call must hit the cache")
}

func TestTokenContextsAreIndependent(t *testing.T) {
	srv, _ := newTokenTestServer(t)
	m := newTokenManager(t, srv, 0)
	ctx := context.Background()

	global, err := m.Token(ctx, ContextGlobal)
	require.NoError(t, err)
	assign, err := m.Token(ctx, AssignContext("123", "456"))
	require.NoError(t, err)
	reply, err := m.Token(ctx, ReplyContext("123", "456"))
	require.NoError(t, err)

	assert.Equal(t, "global-1", global)
	assert.Equal(t, "assign-123-456", assign)
	assert.Equal(t, "reply-123", reply)
}

func TestTokenInvalidateForcesRefetch(t *testing.T) {
	srv, fetches := newTokenTestServer(t)
	m := newTokenManager(t, srv, 0)
	ctx := context.Background()

	tok1, err := m.Token(ctx, ContextGlobal)
	require.NoError(t, err)

	m.Invalidate(ContextGlobal)

	tok2, err := m.Token(ctx, ContextGlobal)
	require.NoError(t, err)

	assert.NotEqual(t, tok1, tok2)
	assert.Equal(t, int32(2), atomic.LoadInt32(fetches))
}

func TestTokenInvalidateOneContextKeepsOthers(t *testing.T) {
	srv, fetches := newTokenTestServer(t)
	m := newTokenManager(t, srv, 0)
	ctx := context.Background()

	_, err := m.Token(ctx, ContextGlobal)
	require.NoError(t, err)
	_, err = m.Token(ctx, AssignContext("1", "2"))
	require.NoError(t, err)

	m.Invalidate(AssignContext("1", "2"))

	_, err = m.Token(ctx, ContextGlobal)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(fetches), "global token must survive another context's invalidation")
}

func TestTokenPageRedirectsToLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/auth/login")
		w.WriteHeader(http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	m := newTokenManager(t, srv, 0)

	_, err := m.Token(context.Background(), ContextGlobal)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthenticationRequired))
}

func TestTokenMissingFromPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>no token here</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	m := newTokenManager(t, srv, 0)

	_, err := m.Token(context.Background(), ContextGlobal)
	require.Error(t, err)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "token-missing", ae.Signature)
}

func TestExtractTokenPrefersHiddenInput(t *testing.T) {
	page := []byte(`<html><head><meta name="csrf-token" content="from-meta"></head>
		<body><form><input type="hidden" name="_token" value="from-input"></form></body></html>`)
	assert.Equal(t, "from-input", extractToken(page))
}

func TestExtractTokenFallsBackToMeta(t *testing.T) {
	page := []byte(`<html><head><meta name="csrf-token" content="from-meta"></head><body></body></html>`)
	assert.Equal(t, "from-meta", extractToken(page))
}

func TestTokenSourceUnknownContext(t *testing.T) {
	_, _, err := tokenSource("bogus:1:2")
	require.Error(t, err)
}
