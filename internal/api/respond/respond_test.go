package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectid/npid-gateway/internal/npid"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestFromErrorKindMapping(t *testing.T) {
	tests := []struct {
		kind   npid.Kind
		status int
	}{
		{npid.KindAuthenticationRequired, http.StatusUnauthorized},
		{npid.KindUnknownOperation, http.StatusNotFound},
		{npid.KindLegacyProtocolFailure, http.StatusBadGateway},
		{npid.KindMalformedResponse, http.StatusBadGateway},
		{npid.KindIndeterminate, http.StatusGatewayTimeout},
		{npid.KindIdentityAmbiguous, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, &npid.Error{Kind: tc.kind, Op: "test_op"})

			assert.Equal(t, tc.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, string(tc.kind), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestFromErrorWrappedAdapterError(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := fmt.Errorf("handling request: %w", &npid.Error{Kind: npid.KindAuthenticationRequired})
	FromError(rec, wrapped)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFromErrorPlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INTERNAL", resp.Error.Code)
}

func TestWriteJSONSetsCacheHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, []byte(`{"a":1}`), `W/"abc"`, time.Minute, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `W/"abc"`, rec.Header().Get("ETag"))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=60")
}

func TestWriteNotModified(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNotModified(rec, `W/"abc"`)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, `W/"abc"`, rec.Header().Get("ETag"))
}
