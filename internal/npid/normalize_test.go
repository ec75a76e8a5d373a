package npid

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func op(name string) Operation {
	o, ok := Lookup(name)
	if !ok {
		panic("unregistered operation " + name)
	}
	return o
}

func TestNormalizePlainJSON(t *testing.T) {
	header := http.Header{"Content-Type": {"application/json"}}
	body := []byte(`{"subject":"New game film","message_plain":"Here you go"}`)

	res, err := Normalize(op("get_message_detail"), header, body)
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, res.Format)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(res.JSON, &payload))
	assert.Equal(t, "New game film", payload["subject"])
}

func TestNormalizeNestedJSON(t *testing.T) {
	// Double-encoded payload exactly as the backend sends it on video
	// submission.
	body := []byte(`{"status":"ok","data":{"success":true,"response":"\r\n{\"success\":\"false\",\"message\":\"invalid video link\"}"}}`)

	res, err := Normalize(op("submit_video"), http.Header{}, body)
	require.NoError(t, err)

	assert.Equal(t, FormatNestedJSON, res.Format)
	var payload struct {
		Data struct {
			Response struct {
				Success string `json:"success"`
				Message string `json:"message"`
			} `json:"response"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(res.JSON, &payload))
	assert.Equal(t, "false", payload.Data.Response.Success)
	assert.Equal(t, "invalid video link", payload.Data.Response.Message)
}

func TestNormalizeHTMLOptions(t *testing.T) {
	body := []byte(`<select name="season">
		<option value="">Select a season</option>
		<option value="highschool:18249" data-level="hs">Junior Year 2024</option>
		<option value="highschool:18250">Senior Year 2025</option>
	</select>`)

	res, err := Normalize(op("fetch_seasons"), http.Header{}, body)
	require.NoError(t, err)

	assert.Equal(t, FormatHTMLOptions, res.Format)
	require.Len(t, res.Records, 2) // placeholder skipped
	assert.Equal(t, "highschool:18249", res.Records[0].Value)
	assert.Equal(t, "Junior Year 2024", res.Records[0].Label)
	assert.Equal(t, "hs", res.Records[0].Attrs["data-level"])
	assert.NotEmpty(t, res.RawHTML)
}

func TestNormalizeHTMLNoOptions(t *testing.T) {
	res, err := Normalize(op("fetch_seasons"), http.Header{}, []byte(`<div>nothing here</div>`))
	require.NoError(t, err)

	assert.Equal(t, FormatHTMLOptions, res.Format)
	assert.Empty(t, res.Records)
}

func TestNormalizeEmptyBodyAcknowledgement(t *testing.T) {
	res, err := Normalize(op("update_stage"), http.Header{}, nil)
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, res.Format)
	var payload struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(res.JSON, &payload))
	assert.True(t, payload.Success)
}

func TestNormalizeEmptyBodyWhereContentExpected(t *testing.T) {
	_, err := Normalize(op("get_message_detail"), http.Header{}, []byte("  \n"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformedResponse))
}

func TestNormalizeUnclassifiableBodyPreservesRaw(t *testing.T) {
	_, err := Normalize(op("get_message_detail"), http.Header{}, []byte("ERR 0x1f garbage"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformedResponse))

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Raw, "garbage")
}

func TestNormalizeMalformedJSON(t *testing.T) {
	header := http.Header{"Content-Type": {"application/json"}}
	_, err := Normalize(op("get_message_detail"), header, []byte(`{"subject": "unterminated`))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformedResponse))
}

func TestParseOptionsSingle(t *testing.T) {
	records := ParseOptions([]byte(`<option value="x">Only</option>`))
	require.Len(t, records, 1)
	assert.Equal(t, "x", records[0].Value)
	assert.Equal(t, "Only", records[0].Label)
	assert.Nil(t, records[0].Attrs)
}
