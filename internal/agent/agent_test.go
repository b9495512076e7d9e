package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathGatewayStatus {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"running":true,"port":9528}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	st, err := c.GatewayStatus(context.Background())
	if err != nil {
		t.Fatalf("GatewayStatus: %v", err)
	}
	if !st.Running || st.Port != 9528 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestClientFailureKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing-success":
			_, _ = w.Write([]byte(`{"running":true}`))
		case "/false":
			_, _ = w.Write([]byte(`{"success":false,"error":"invalid code"}`))
		case "/html":
			_, _ = w.Write([]byte(`<html>oops</html>`))
		case "/array":
			_, _ = w.Write([]byte(`[1,2,3]`))
		case "/bad-request":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":"code required"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	ctx := context.Background()

	cases := []struct {
		resource   string
		kind       FailureKind
		agentError string
		status     int
	}{
		{"/missing-success", FailureApplication, "", 0},
		{"/false", FailureApplication, "invalid code", 0},
		{"/html", FailureDecode, "", 0},
		{"/array", FailureDecode, "", 0},
		{"/bad-request", FailureStatus, "code required", http.StatusBadRequest},
		{"/api/default/status", FailureStatus, "", http.StatusNotFound},
	}
	for _, tc := range cases {
		res := c.Get(ctx, tc.resource)
		if res.OK() {
			t.Fatalf("%s: expected failure", tc.resource)
		}
		if res.Failure.Kind != tc.kind {
			t.Fatalf("%s: kind = %s, want %s", tc.resource, res.Failure.Kind, tc.kind)
		}
		if res.Failure.AgentError != tc.agentError {
			t.Fatalf("%s: agent error = %q, want %q", tc.resource, res.Failure.AgentError, tc.agentError)
		}
		if res.Failure.StatusCode != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.resource, res.Failure.StatusCode, tc.status)
		}
	}

	if !IsNotFound(c.Get(ctx, "/api/default/status").Err()) {
		t.Fatalf("expected IsNotFound for 404")
	}
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewClient(url, time.Second).Get(context.Background(), PathWarpStatus)
	if res.OK() || res.Failure.Kind != FailureTransport {
		t.Fatalf("expected transport failure, got %+v", res.Failure)
	}
	if res.Err() == nil || !strings.Contains(res.Err().Error(), PathWarpStatus) {
		t.Fatalf("error should name the resource: %v", res.Err())
	}
}

func TestClientCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := NewClient(srv.URL, 5*time.Second).Get(ctx, PathAccounts)
	if !IsCanceled(res.Err()) {
		t.Fatalf("expected canceled failure, got %v", res.Err())
	}
}

func TestClientPostSendsJSON(t *testing.T) {
	var gotType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		gotType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	if res := c.Post(context.Background(), PathAccountsSwitch, map[string]string{"email": "a@b.c"}); !res.OK() {
		t.Fatalf("Post: %v", res.Err())
	}
	if gotType != "application/json" {
		t.Fatalf("content type = %q", gotType)
	}
	if gotBody["email"] != "a@b.c" {
		t.Fatalf("body = %v", gotBody)
	}
	if _, ok := gotBody["restartWarp"]; ok {
		t.Fatalf("restartWarp must not be sent")
	}

	if res := c.Post(context.Background(), PathAccountsRefresh, nil); !res.OK() {
		t.Fatalf("Post nil payload: %v", res.Err())
	}
	if len(gotBody) != 0 {
		t.Fatalf("nil payload should be an empty object, got %v", gotBody)
	}
}

func TestTailLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathLogsTail || r.URL.Query().Get("lines") != "80" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"lines":["a","b"]}`))
	}))
	defer srv.Close()

	lines, err := NewClient(srv.URL, time.Second).TailLogs(context.Background(), 80)
	if err != nil {
		t.Fatalf("TailLogs: %v", err)
	}
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("lines = %v", lines)
	}
}
