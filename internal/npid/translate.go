package npid

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// WireRequest is a fully translated backend request: exact path, exact
// field names, and the encoding the backend insists on. State-changing
// operations are always form-encoded — the backend does not parse JSON
// request bodies for writes.
type WireRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

// URL assembles the absolute request URL against base.
func (w *WireRequest) URL(base string) string {
	u := strings.TrimRight(base, "/") + w.Path
	if len(w.Query) > 0 {
		u += "?" + w.Query.Encode()
	}
	return u
}

// Translate maps an operation name and caller parameters onto the
// backend's wire format. token is required for state-changing operations
// and is set under the designated field exactly once.
func Translate(name string, params map[string]string, token, apiKey string) (*WireRequest, error) {
	op, ok := Lookup(name)
	if !ok {
		return nil, &Error{Kind: KindUnknownOperation, Op: name, Err: fmt.Errorf("operation not registered")}
	}
	return translateOp(op, params, token, apiKey)
}

func translateOp(op Operation, params map[string]string, token, apiKey string) (*WireRequest, error) {
	path, err := fillPath(op, params)
	if err != nil {
		return nil, err
	}

	wr := &WireRequest{
		Method: op.Method,
		Path:   path,
		Query:  url.Values{},
		Form:   url.Values{},
		Header: http.Header{},
	}

	if err := applyFields(op, wr.Query, op.Query, params); err != nil {
		return nil, err
	}
	if err := applyFields(op, wr.Form, op.Form, params); err != nil {
		return nil, err
	}

	if op.RequiresToken {
		if token == "" {
			return nil, &Error{Kind: KindAuthenticationRequired, Op: op.Name, Err: fmt.Errorf("no CSRF token for state-changing operation")}
		}
		wr.Form.Set(csrfField, token)
	}
	if op.NeedsAPIKey && apiKey != "" {
		wr.Form.Set(apiKeyField, apiKey)
	}

	if len(wr.Form) > 0 {
		wr.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if op.XMLHTTPRequest {
		wr.Header.Set("X-Requested-With", "XMLHttpRequest")
		wr.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	}
	return wr, nil
}

// fillPath substitutes {param} segments in the operation's path template.
func fillPath(op Operation, params map[string]string) (string, error) {
	path := op.PathTemplate
	for {
		start := strings.Index(path, "{")
		if start < 0 {
			return path, nil
		}
		end := strings.Index(path[start:], "}")
		if end < 0 {
			return "", &Error{Kind: KindUnknownOperation, Op: op.Name, Err: fmt.Errorf("unterminated path template %q", op.PathTemplate)}
		}
		key := path[start+1 : start+end]
		v := params[key]
		if v == "" {
			return "", &Error{Kind: KindUnknownOperation, Op: op.Name, Err: fmt.Errorf("missing path parameter %q", key)}
		}
		path = path[:start] + url.PathEscape(v) + path[start+end+1:]
	}
}

func applyFields(op Operation, dst url.Values, fields []Field, params map[string]string) error {
	for _, f := range fields {
		value := f.Const
		if f.From != "" {
			if p, ok := params[f.From]; ok && p != "" {
				value = p
			}
		}
		if value == "" {
			if f.Required {
				return &Error{Kind: KindUnknownOperation, Op: op.Name, Err: fmt.Errorf("missing required parameter %q", f.From)}
			}
			if f.OmitEmpty {
				continue
			}
		}
		dst.Set(f.Name, value)
	}
	return nil
}
