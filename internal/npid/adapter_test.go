package npid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	return New(Options{
		BaseURL:           srv.URL,
		SessionFile:       filepath.Join(t.TempDir(), "session.json"),
		Email:             "user@example.test",
		Password:          "secret",
		APIKey:            "key-123",
		RequestsPerMinute: 600,
		Timeout:           5 * time.Second,
	})
}

func TestGetMessageDetailStripsQuotedHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rulestemplates/template/videoteammessage_subject", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "111", r.URL.Query().Get("message_id"), "list prefix must be stripped")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"subject":"New film","message_plain":"Please edit this one.\nOn Mon Jan 6 at 9:00 AM Video Team wrote:\n> previous reply","from_name":"Jane","from_email":"jane@example.test","time_stamp":"Jan 6"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	detail, err := a.GetMessageDetail(context.Background(), "message_id111", "abc")
	require.NoError(t, err)

	assert.Equal(t, "111", detail.MessageID)
	assert.Equal(t, "New film", detail.Subject)
	assert.Equal(t, "Please edit this one.", detail.Content)
	assert.Equal(t, "Jane", detail.FromName)
}

func TestSendReplyQuotesOriginal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rulestemplates/template/videoteammessage_subject", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"subject":"New film","message_plain":"Original message","time_stamp":"Jan 6"}`)
	})
	mux.HandleFunc("/rulestemplates/template/videoteam_msg_sendingto", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<input name="_token" value="reply-token">`)
	})
	var posted bool
	mux.HandleFunc("/videoteammsg/sendmessage", func(w http.ResponseWriter, r *http.Request) {
		posted = true
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "reply-token", r.PostForm.Get("_token"))
		assert.Equal(t, "111", r.PostForm.Get("reply_message_id"))
		assert.Equal(t, "Re: New film", r.PostForm.Get("message_subject"))
		assert.Contains(t, r.PostForm.Get("message_message"), "On it!")
		assert.Contains(t, r.PostForm.Get("message_message"), "Original message")
		assert.Equal(t, "send", r.PostForm.Get("message_type"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	require.NoError(t, a.SendReply(context.Background(), "111", "abc", "On it!"))
	assert.True(t, posted)
}

func TestInboxThreadsFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rulestemplates/template/videoteammessagelist", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_start_number") != "1" {
			// Page 2 has no threads: paging must stop.
			fmt.Fprint(w, `<div class="msg-list"></div>`)
			return
		}
		fmt.Fprint(w, `
			<div class="ImageProfile" itemid="1" itemcode="a"><i class="fa-plus-circle"></i></div>
			<div class="ImageProfile" itemid="2" itemcode="b"></div>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	a := newTestAdapter(t, srv)
	ctx := context.Background()

	both, err := a.InboxThreads(ctx, 10, FilterBoth)
	require.NoError(t, err)
	assert.Len(t, both, 2)

	unassigned, err := a.InboxThreads(ctx, 10, FilterUnassigned)
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, "1", unassigned[0].ID)

	assigned, err := a.InboxThreads(ctx, 10, FilterAssigned)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "2", assigned[0].ID)
}

func TestSeasonsEmptyListIsNotAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<input name="_token" value="tok">`)
	})
	mux.HandleFunc("/API/scout-api/video-seasons-by-video-type", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "key-123", r.PostForm.Get("api_key"))
		// Placeholder-only list: the backend's answer to a partial
		// parameter set.
		fmt.Fprint(w, `<option value="">Select a season</option>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	seasons, err := a.Seasons(context.Background(), AthleteIdentity{PrimaryID: "100", MainID: "100"}, "")
	require.NoError(t, err)
	assert.Empty(t, seasons)
}

func TestEnsureSessionFallsBackToLogin(t *testing.T) {
	var loggedIn bool
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<input name="_token" value="seed">`)
			return
		}
		loggedIn = true
		http.SetCookie(w, &http.Cookie{Name: "laravel_session", Value: "sess"})
		w.Header().Set("Location", "/dashboard")
		w.WriteHeader(http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	require.NoError(t, a.EnsureSession(context.Background()))
	assert.True(t, loggedIn)
}

func TestEnsureSessionNoCredentials(t *testing.T) {
	a := New(Options{
		BaseURL:     "https://example.test",
		SessionFile: filepath.Join(t.TempDir(), "none.json"),
	})
	err := a.EnsureSession(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthenticationRequired))
}

func TestNormalizeStage(t *testing.T) {
	assert.Equal(t, "In Queue", normalizeStage("in_queue"))
	assert.Equal(t, "Awaiting Client", normalizeStage("awaiting_client"))
	assert.Equal(t, "On Hold", normalizeStage("on_hold"))
	assert.Equal(t, "Done", normalizeStage("done"))
	// Already-labelled values pass through untouched.
	assert.Equal(t, "In Queue", normalizeStage("In Queue"))
}

func TestSeasonValue(t *testing.T) {
	assert.Equal(t, "18249", seasonValue("highschool:18249"))
	assert.Equal(t, "18249", seasonValue("18249"))
	assert.Equal(t, "", seasonValue(""))
}

func TestJSONSuccess(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"top-level true", `{"success":true}`, true},
		{"top-level string true", `{"success":"true"}`, true},
		{"top-level false", `{"success":"false"}`, false},
		{"nested in data", `{"status":"ok","data":{"success":true}}`, true},
		{"nested response false", `{"data":{"response":{"success":"false","message":"bad link"}}}`, false},
		{"no success field", `{"html":"<div></div>"}`, true},
		{"empty", ``, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, _ := jsonSuccess(json.RawMessage(tc.raw))
			assert.Equal(t, tc.ok, ok)
		})
	}
}
