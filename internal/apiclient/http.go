package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/citizen-docs/internal/common"
)

// HTTPError is a non-2xx response. Detail carries the server's message.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Is lets callers test 401/403 with errors.Is(err, common.ErrUnauthorized)
// and 404 with common.ErrNotFound.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case common.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case common.ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// ServerMessage returns the message to show the user for err: the server's
// detail when err is an HTTPError, the error text otherwise.
func ServerMessage(err error) string {
	var he *HTTPError
	if errors.As(err, &he) && he.Detail != "" {
		return he.Detail
	}
	return err.Error()
}

// request describes one backend call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	auth        bool
	client      *http.Client
}

// resource builds an endpoint path, escaping each id as a single segment.
func resource(collection string, ids ...string) string {
	p := collection
	for _, id := range ids {
		p += "/" + url.PathEscape(id)
	}
	return p
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.cfg.BaseURL + APIPrefix + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// bearer returns the Authorization header value or ErrNotAuthenticated.
func (c *Client) bearer() (string, error) {
	if c.tokens == nil {
		return "", common.NewKindError(common.CodeNotAuthenticated, common.ErrNotAuthenticated, "", nil)
	}
	tok, ok := c.tokens.Token()
	if !ok || tok == "" {
		return "", common.NewKindError(common.CodeNotAuthenticated, common.ErrNotAuthenticated, "", nil)
	}
	return "Bearer " + tok, nil
}

// send performs r and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	var authHeader string
	if r.auth {
		h, err := c.bearer()
		if err != nil {
			c.logger.Warn("api.http.not_authenticated", "req_id", reqID, "path", r.path)
			return nil, err
		}
		authHeader = h
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		c.logger.Error("api.http.build_request_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	c.logger.Info("api.http.request", "req_id", reqID, "run_id", common.RunIDFromContext(ctx), "method", r.method, "path", r.path)

	client := r.client
	if client == nil {
		client = c.http
	}
	resp, err := client.Do(req)
	if err != nil {
		c.logger.Error("api.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("api.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Info("api.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, &HTTPError{Method: r.method, Path: r.path, Status: resp.StatusCode, Detail: detail(raw)}
	}
	return raw, nil
}

// sendJSON encodes in (when non-nil), sends, and decodes the response into
// out (when non-nil).
func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any, auth bool) error {
	r := request{method: method, path: path, auth: auth}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		r.body = bytes.NewReader(b)
		r.contentType = "application/json"
	}
	raw, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func decode(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// detail extracts a human message from an error body. FastAPI style
// {"detail": "..."} and {"detail": [{"msg": "..."}]} are understood, as is
// {"message": "..."}; anything else is returned trimmed.
func detail(raw []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(body.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return body.Message
}
