package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChatPlainReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "test-model", testLogger())
	reply, err := c.Chat(context.Background(), []interfaces.Message{
		{Role: interfaces.RoleSystem, Content: "be brief"},
		{Role: interfaces.RoleUser, Content: "hello"},
	}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Content != "hi there" || len(reply.ToolCalls) != 0 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestChatToolCallReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"remember","arguments":"{\"content\":\"likes birds\"}"}}
		]}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "m", testLogger())
	reply, err := c.Chat(context.Background(), []interfaces.Message{{Role: interfaces.RoleUser, Content: "note this"}}, []interfaces.ToolDefinition{{Name: "remember"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(reply.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(reply.ToolCalls))
	}
	call := reply.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "remember" {
		t.Errorf("call = %+v", call)
	}
	if call.Arguments["content"] != "likes birds" {
		t.Errorf("arguments = %+v", call.Arguments)
	}
}

func TestChatStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrAuth},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadGateway, ErrConnectivity},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewClient(srv.URL, "k", "m", testLogger())
		_, err := c.Chat(context.Background(), []interfaces.Message{{Role: interfaces.RoleUser, Content: "x"}}, nil)
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestChatConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, "k", "m", testLogger())
	_, err := c.Chat(context.Background(), []interfaces.Message{{Role: interfaces.RoleUser, Content: "x"}}, nil)
	if !errors.Is(err, ErrConnectivity) {
		t.Errorf("err = %v, want %v", err, ErrConnectivity)
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hello"}}]}`,
			`{"choices":[{"delta":{"content":" world"}}]}`,
			`[DONE]`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "m", testLogger())
	var got []string
	reply, err := c.ChatStream(context.Background(), []interfaces.Message{{Role: interfaces.RoleUser, Content: "hi"}}, nil, func(delta string) {
		got = append(got, delta)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if reply.Content != "Hello world" {
		t.Errorf("content = %q", reply.Content)
	}
	if strings.Join(got, "") != "Hello world" {
		t.Errorf("deltas = %q", got)
	}
	if len(got) < 2 {
		t.Errorf("expected per-chunk deltas, got %d", len(got))
	}
}

func TestChatStreamToolCallFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunks := []string{
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"schedule","arguments":"{\"act"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ion\":\"list\"}"}}]}}]}`,
			`[DONE]`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "m", testLogger())
	reply, err := c.ChatStream(context.Background(), []interfaces.Message{{Role: interfaces.RoleUser, Content: "jobs?"}}, nil, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(reply.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(reply.ToolCalls))
	}
	call := reply.ToolCalls[0]
	if call.ID != "call_9" || call.Name != "schedule" || call.Arguments["action"] != "list" {
		t.Errorf("call = %+v", call)
	}
}

func TestDummyScriptThenEcho(t *testing.T) {
	d := &Dummy{Script: []interfaces.Reply{{Content: "scripted"}}}

	reply, err := d.Chat(context.Background(), []interfaces.Message{{Role: interfaces.RoleUser, Content: "first"}}, nil)
	if err != nil || reply.Content != "scripted" {
		t.Fatalf("reply = %+v, %v", reply, err)
	}
	reply, err = d.Chat(context.Background(), []interfaces.Message{{Role: interfaces.RoleUser, Content: "second"}}, nil)
	if err != nil || reply.Content != "echo: second" {
		t.Fatalf("reply = %+v, %v", reply, err)
	}
	if len(d.Calls) != 2 {
		t.Errorf("recorded %d calls, want 2", len(d.Calls))
	}
}

func TestDummyStreamDeltas(t *testing.T) {
	d := &Dummy{Script: []interfaces.Reply{{Content: "a b c"}}}
	var deltas []string
	reply, err := d.ChatStream(context.Background(), []interfaces.Message{{Role: interfaces.RoleUser, Content: "x"}}, nil, func(s string) {
		deltas = append(deltas, s)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if reply.Content != "a b c" || strings.Join(deltas, "") != "a b c" {
		t.Errorf("reply = %q, deltas = %q", reply.Content, deltas)
	}
}
