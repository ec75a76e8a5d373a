package npid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// Format tags a normalized result with the shape the backend actually
// returned. Consumers pattern-match on the tag instead of assuming a
// schema.
type Format string

const (
	FormatJSON        Format = "json"
	FormatNestedJSON  Format = "nested-json"
	FormatHTMLOptions Format = "html-options"
)

// OptionRecord is one option-shaped element extracted from an HTML
// fragment: dropdown-sourced lists such as season choices arrive this
// way.
type OptionRecord struct {
	Value string            `json:"value"`
	Label string            `json:"label"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Result is the canonical outcome of a backend response. Exactly one
// shape is populated, indicated by Format.
type Result struct {
	Format  Format
	JSON    json.RawMessage
	Records []OptionRecord
	RawHTML string
}

// Normalize classifies a raw response body and extracts its canonical
// result.
//
// Decision procedure, in order: JSON by content-type or leading byte;
// double-encoded JSON strings reparsed; otherwise an HTML fragment with
// option extraction. An empty body is valid only for operations the
// registry marks empty-ok — elsewhere the resilience layer treats it as
// a failure signal before Normalize is reached.
func Normalize(op Operation, header http.Header, body []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) == 0 {
		if op.Hint == HintEmptyOK {
			// The backend acknowledges these writes with a bare 200.
			return &Result{Format: FormatJSON, JSON: json.RawMessage(`{"success":true}`)}, nil
		}
		return nil, &Error{Kind: KindMalformedResponse, Op: op.Name, Err: fmt.Errorf("empty body where content was expected")}
	}

	ct := header.Get("Content-Type")
	looksJSON := strings.Contains(ct, "application/json") || trimmed[0] == '{' || trimmed[0] == '['
	if looksJSON {
		decoded, nested, err := decodeNested(trimmed)
		if err != nil {
			return nil, &Error{Kind: KindMalformedResponse, Op: op.Name, Raw: truncate(body, 500), Err: err}
		}
		format := FormatJSON
		if nested {
			format = FormatNestedJSON
		}
		return &Result{Format: format, JSON: decoded}, nil
	}

	if bytes.ContainsRune(trimmed, '<') {
		return &Result{
			Format:  FormatHTMLOptions,
			Records: ParseOptions(body),
			RawHTML: string(body),
		}, nil
	}

	// Neither JSON nor HTML: preserve the raw body, never coerce to an
	// empty result.
	return nil, &Error{
		Kind: KindMalformedResponse,
		Op:   op.Name,
		Raw:  truncate(body, 500),
		Err:  fmt.Errorf("unclassifiable response body"),
	}
}

// decodeNested parses JSON and reparses any field whose value is itself
// a JSON-encoded string. The backend double-encodes some write
// responses, e.g.
//
//	{"status":"ok","data":{"success":true,"response":"\r\n{\"success\":\"false\"}"}}
//
// Top-level string fields and string fields one object deep are both
// covered, which matches every double-encoded shape observed in the
// wild.
func decodeNested(raw []byte) (json.RawMessage, bool, error) {
	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	obj, ok := top.(map[string]any)
	if !ok {
		return json.RawMessage(raw), false, nil
	}

	nested := false
	for key, val := range obj {
		switch v := val.(type) {
		case string:
			if inner, ok := tryParseJSON(v); ok {
				obj[key] = inner
				nested = true
			}
		case map[string]any:
			for innerKey, innerVal := range v {
				s, isString := innerVal.(string)
				if !isString {
					continue
				}
				if inner, ok := tryParseJSON(s); ok {
					v[innerKey] = inner
					nested = true
				}
			}
		}
	}
	if !nested {
		return json.RawMessage(raw), false, nil
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, false, fmt.Errorf("re-encode nested response: %w", err)
	}
	return out, true, nil
}

func tryParseJSON(s string) (any, bool) {
	t := strings.TrimSpace(s)
	if len(t) == 0 || (t[0] != '{' && t[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(t), &v); err != nil {
		return nil, false
	}
	return v, true
}

// ParseOptions extracts option-shaped elements from an HTML fragment.
// Options with an empty value are placeholders ("Select a season") and
// are skipped; all other attributes ride along in Attrs.
func ParseOptions(fragment []byte) []OptionRecord {
	doc, err := html.Parse(bytes.NewReader(fragment))
	if err != nil {
		return nil
	}
	records := []OptionRecord{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "option" {
			return
		}
		value := attr(n, "value")
		if value == "" {
			return
		}
		rec := OptionRecord{
			Value: value,
			Label: strings.TrimSpace(textContent(n)),
		}
		for _, a := range n.Attr {
			if a.Key == "value" {
				continue
			}
			if rec.Attrs == nil {
				rec.Attrs = make(map[string]string)
			}
			rec.Attrs[a.Key] = a.Val
		}
		records = append(records, rec)
	})
	return records
}
