package npid

import (
	"context"
	"encoding/json"
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

func newTestClient(t *testing.T, srv *httptest.Server) (*Client, *TokenManager) {
	t.Helper()
	store := NewSessionStore(srv.URL, filepath.Join(t.TempDir(), "session.json"), 5*time.Second, nil)
	tokens := NewTokenManager(store, 0, nil)
	return NewClient(srv.URL, store.Client(), tokens, 600, "key-123", nil), tokens
}

func TestExecuteUnknownOperation(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	client, _ := newTestClient(t, srv)

	_, err := client.Execute(context.Background(), "no_such_op", nil, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnknownOperation))
}

func TestExecuteSuccessSingleDispatch(t *testing.T) {
	var dispatches int32
	mux := http.NewServeMux()
	mux.HandleFunc("/rulestemplates/template/videoteammessagelist", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dispatches, 1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<div class="ImageProfile" itemid="m1" itemcode="c1"><span class="msg-sendr-name">Jane</span></div>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client, _ := newTestClient(t, srv)

	res, err := client.Execute(context.Background(), "list_inbox", nil, "")
	require.NoError(t, err)

	assert.Equal(t, FormatHTMLOptions, res.Format)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dispatches), "success must not trigger a retry")
}

func TestExecuteTokenMismatchRetriesOnce(t *testing.T) {
	var tokenFetches, posts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/rulestemplates/template/assignemailtovideoteam", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenFetches, 1)
		fmt.Fprintf(w, `<form><input type="hidden" name="_token" value="tok-%d"></form>`, n)
	})
	mux.HandleFunc("/videoteammsg/assignvideoteam", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		require.NoError(t, r.ParseForm())
		// The first token is mismatched; Laravel answers 419 Page Expired.
		if r.PostForm.Get("_token") == "tok-1" {
			w.WriteHeader(419)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client, _ := newTestClient(t, srv)

	res, err := client.Execute(context.Background(), "assign_thread", map[string]string{
		"message_id": "123",
		"owner_id":   "789",
	}, AssignContext("123", "456"))
	require.NoError(t, err)

	var ack struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(res.JSON, &ack))
	assert.True(t, ack.Success)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenFetches), "invalidation must force exactly one refetch")
	assert.Equal(t, int32(2), atomic.LoadInt32(&posts))
}

func TestExecutePersistentLoginRedirectFails(t *testing.T) {
	var dispatches int32
	mux := http.NewServeMux()
	mux.HandleFunc("/rulestemplates/template/videoteammessagelist", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dispatches, 1)
		w.Header().Set("Location", "/auth/login")
		w.WriteHeader(http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client, _ := newTestClient(t, srv)

	_, err := client.Execute(context.Background(), "list_inbox", nil, "")
	require.Error(t, err)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindLegacyProtocolFailure, ae.Kind)
	assert.Equal(t, "login-redirect", ae.Signature)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dispatches), "exactly one retry, never more")
}

func TestExecuteHTMLWhereJSONExpected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rulestemplates/template/videoteammessage_subject", func(w http.ResponseWriter, r *http.Request) {
		// Login page served with status 200 — the classic silent session
		// expiry.
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>Please log in</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client, _ := newTestClient(t, srv)

	_, err := client.Execute(context.Background(), "get_message_detail", map[string]string{
		"message_id": "123",
		"item_code":  "456",
	}, "")
	require.Error(t, err)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "html-where-json-expected", ae.Signature)
	assert.NotEmpty(t, ae.Raw, "raw body must be preserved for diagnosis")
}

// timeoutError mimics a net transport timeout.
type timeoutError struct{}

func (timeoutError) Error() string { return "request timed out" }
func (timeoutError) Timeout() bool { return true }

type erroringDoer struct{ err error }

func (d erroringDoer) Do(*http.Request) (*http.Response, error) { return nil, d.err }

func TestExecuteTimeoutOnWriteIsIndeterminate(t *testing.T) {
	// Token fetches go through the session client, which must still work.
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<input name="_token" value="tok">`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewSessionStore(srv.URL, filepath.Join(t.TempDir(), "session.json"), 5*time.Second, nil)
	tokens := NewTokenManager(store, 0, nil)
	client := NewClient(srv.URL, erroringDoer{err: timeoutError{}}, tokens, 600, "", nil)

	_, err := client.Execute(context.Background(), "update_stage", map[string]string{
		"video_msg_id": "123",
		"stage":        "Done",
	}, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIndeterminate),
		"a timed-out write has unknown effect and must never be auto-retried")
}

func TestExecuteTimeoutOnReadIsProtocolFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	store := NewSessionStore(srv.URL, filepath.Join(t.TempDir(), "session.json"), 5*time.Second, nil)
	tokens := NewTokenManager(store, 0, nil)
	client := NewClient(srv.URL, erroringDoer{err: timeoutError{}}, tokens, 600, "", nil)

	_, err := client.Execute(context.Background(), "list_inbox", nil, "")
	require.Error(t, err)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindLegacyProtocolFailure, ae.Kind)
	assert.Equal(t, "transport", ae.Signature)
}

func TestFailureSignatureTable(t *testing.T) {
	jsonOp := op("get_message_detail")
	emptyOK := op("update_stage")
	htmlOp := op("list_inbox")

	tests := []struct {
		name   string
		op     Operation
		status int
		header http.Header
		body   []byte
		want   string
	}{
		{"login redirect", htmlOp, 302, http.Header{"Location": {"/auth/login?next=x"}}, nil, "login-redirect"},
		{"redirect elsewhere", htmlOp, 302, http.Header{"Location": {"/dashboard"}}, []byte("x"), ""},
		{"csrf mismatch", emptyOK, 419, http.Header{}, []byte("Page Expired"), "token-mismatch"},
		{"empty where content expected", htmlOp, 200, http.Header{}, []byte("  "), "empty-body"},
		{"empty acknowledged write", emptyOK, 200, http.Header{}, nil, ""},
		{"html where json expected", jsonOp, 200, http.Header{}, []byte("<html>login</html>"), "html-where-json-expected"},
		{"json ok", jsonOp, 200, http.Header{}, []byte(`{"ok":1}`), ""},
		{"business error is not a signature", jsonOp, 200, http.Header{}, []byte(`{"success":"false"}`), ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FailureSignature(tc.op, tc.status, tc.header, tc.body))
		})
	}
}
