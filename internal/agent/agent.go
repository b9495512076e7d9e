// Package agent is the HTTP boundary to the local agent process.
// Every call resolves to a Result: either the agent's JSON object or a
// Failure describing why the call did not succeed. Nothing is retried.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FailureKind classifies why a call did not produce a usable payload.
type FailureKind string

const (
	FailureTransport   FailureKind = "transport"
	FailureStatus      FailureKind = "status"
	FailureDecode      FailureKind = "decode"
	FailureApplication FailureKind = "application"
	FailureCanceled    FailureKind = "canceled"
)

// maxBody bounds how much of a response is read before decoding.
const maxBody = 4 << 20

// Failure is the uniform error shape of the Resource Client.
// AgentError holds the agent's own "error" field when it sent one.
type Failure struct {
	Kind       FailureKind
	Resource   string
	StatusCode int
	AgentError string
	Message    string
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %d %s", f.Kind, f.Resource, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s %s: %s", f.Kind, f.Resource, f.Message)
}

// Result is the terminal outcome of one call.
type Result struct {
	Resource string
	Payload  json.RawMessage
	Failure  *Failure
}

// OK reports whether the agent answered with success=true.
func (r Result) OK() bool { return r.Failure == nil }

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Into decodes the payload into out. It returns the call's failure if there
// was one, or a decode failure if the payload does not fit out.
func (r Result) Into(out any) error {
	if r.Failure != nil {
		return r.Failure
	}
	if err := json.Unmarshal(r.Payload, out); err != nil {
		return &Failure{Kind: FailureDecode, Resource: r.Resource, Message: err.Error()}
	}
	return nil
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

// IsCanceled reports whether err is a canceled-call failure.
func IsCanceled(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == FailureCanceled
}

// IsNotFound reports whether err is a 404 from the agent.
func IsNotFound(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == FailureStatus && f.StatusCode == http.StatusNotFound
}

// Client talks to one agent base URL.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

// NewClient creates a client for baseURL (e.g. "http://127.0.0.1:9530").
// timeout bounds each request/response call; the log stream is unbounded.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

// Get issues GET resource, where resource is a path with optional query.
func (c *Client) Get(ctx context.Context, resource string) Result {
	return c.do(ctx, http.MethodGet, resource, nil)
}

// Post sends payload as JSON. A nil payload is sent as an empty object.
func (c *Client) Post(ctx context.Context, resource string, payload any) Result {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Resource: resource, Failure: &Failure{
			Kind: FailureDecode, Resource: resource, Message: fmt.Sprintf("encoding request: %v", err),
		}}
	}
	return c.do(ctx, http.MethodPost, resource, body)
}

func (c *Client) do(ctx context.Context, method, resource string, body []byte) Result {
	fail := func(kind FailureKind, status int, msg string) Result {
		return Result{Resource: resource, Failure: &Failure{Kind: kind, Resource: resource, StatusCode: status, Message: msg}}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+resource, reader)
	if err != nil {
		return fail(FailureTransport, 0, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fail(FailureCanceled, 0, "request canceled")
		}
		return fail(FailureTransport, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fail(FailureCanceled, 0, "request canceled")
		}
		return fail(FailureTransport, 0, fmt.Sprintf("reading response: %v", err))
	}

	var env struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res := fail(FailureStatus, resp.StatusCode, statusMessage(resp.StatusCode, raw))
		if decodeErr == nil {
			res.Failure.AgentError = env.Error
		}
		return res
	}
	if decodeErr != nil {
		return fail(FailureDecode, resp.StatusCode, fmt.Sprintf("decoding response: %v", decodeErr))
	}
	if env.Success == nil || !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "agent reported failure"
		}
		res := fail(FailureApplication, 0, msg)
		res.Failure.AgentError = env.Error
		return res
	}
	return Result{Resource: resource, Payload: raw}
}

// statusMessage keeps a short snippet of the body for diagnostics.
func statusMessage(code int, raw []byte) string {
	snippet := strings.TrimSpace(string(raw))
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	if snippet == "" {
		return http.StatusText(code)
	}
	return snippet
}
