// Package gateway is the client side of the Submission Gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/session"
)

// Error is a failure reported by the gateway.
type Error struct {
	Kind       string
	Message    string
	Fields     map[string]string
	StatusCode int
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	flds := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		flds = append(flds, f+": "+msg)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(flds, "; "))
}

// IsKind reports whether err is a gateway Error of the given kind.
func IsKind(err error, kind string) bool {
	var gErr *Error
	return errors.As(err, &gErr) && gErr.Kind == kind
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient talks to the API at `baseURL` (e.g. http://localhost:8000) with the bearer `token`.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing gateway URL")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("gateway URL %q must be absolute", baseURL)
	}
	c := &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LookupSession returns what a student needs for local feedback while sampling.
func (c *Client) LookupSession(ctx context.Context, token string) (session.View, error) {
	var view session.View
	err := c.do(ctx, http.MethodGet, "/v1/sessions/token/"+url.PathEscape(token), nil, &view)
	return view, err
}

// Submit sends a finished batch and returns the verdict.
func (c *Client) Submit(ctx context.Context, batch attendance.SampleBatch) (attendance.SubmitResult, error) {
	var res attendance.SubmitResult
	err := c.do(ctx, http.MethodPost, "/v1/attendance/submit", batch, &res)
	return res, err
}

// History returns the caller's attendance, ordered by `ordering` (e.g. "-submitted_at").
func (c *Client) History(ctx context.Context, ordering string) ([]attendance.HistoryEntry, error) {
	path := "/v1/attendance/history"
	if ordering != "" {
		path += "?" + url.Values{"ordering": {ordering}}.Encode()
	}
	var entries []attendance.HistoryEntry
	err := c.do(ctx, http.MethodGet, path, nil, &entries)
	return entries, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(data)
	}

	u := *c.base
	ref, err := url.Parse(path)
	if err != nil {
		return errors.Wrap(err, "building request URL")
	}
	u.Path += ref.Path
	u.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, out), "decoding response")
}

func decodeError(status int, data []byte) error {
	var body core.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Kind == "" {
		kind := core.KindInternal
		switch status {
		case http.StatusUnauthorized:
			kind = core.KindUnauthorized
		case http.StatusForbidden:
			kind = core.KindForbidden
		case http.StatusNotFound:
			kind = core.KindNotFound
		}
		return &Error{Kind: kind, Message: http.StatusText(status), StatusCode: status}
	}
	return &Error{Kind: body.Kind, Message: body.Message, Fields: body.Fields, StatusCode: status}
}
