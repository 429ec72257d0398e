package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lingora/lingora/internal/chat"
	"github.com/lingora/lingora/internal/log"
)

// fakeAgent records the last orchestrator request and returns fixed output.
type fakeAgent struct {
	mu      sync.Mutex
	lastReq chat.Request
	result  *chat.Result
	err     error
	title   string
}

func (f *fakeAgent) Answer(_ context.Context, req chat.Request) (*chat.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAgent) GenerateTitle(_ context.Context, question string) string {
	if f.title != "" {
		return f.title
	}
	return chat.FallbackTitle(question)
}

func (f *fakeAgent) last() chat.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func newTestServer(t *testing.T, agent *fakeAgent) *httptest.Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Logger: log.NewNop(), Agent: agent})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewServer_RequiresAgent(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(ServerConfig{Logger: log.NewNop()}); err == nil {
		t.Error("NewServer() without agent expected error")
	}
}

func TestChat_Success(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{result: &chat.Result{Answer: "A verb expresses an action."}}
	ts := newTestServer(t, agent)

	resp := postJSON(t, ts.URL+"/api/v1/chat",
		`{"question":"what is a verb?","type":"grammar","session_id":"s1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Answer != "A verb expresses an action." {
		t.Errorf("answer = %q", body.Answer)
	}

	got := agent.last()
	if got.Question != "what is a verb?" {
		t.Errorf("forwarded question = %q", got.Question)
	}
	if got.DomainOverride != "grammar" {
		t.Errorf("forwarded override = %q, want grammar", got.DomainOverride)
	}
	if got.SessionID != "s1" {
		t.Errorf("forwarded session = %q, want s1", got.SessionID)
	}
	if got.HistoryProvided {
		t.Error("absent history field must not mark history as provided")
	}
}

func TestChat_EmptyQuestionIsBadRequest(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{err: chat.ErrEmptyQuestion}
	ts := newTestServer(t, agent)

	resp := postJSON(t, ts.URL+"/api/v1/chat", `{"question":"","session_id":"s1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error.Code != "invalid_question" {
		t.Errorf("error code = %q, want invalid_question", body.Error.Code)
	}
}

func TestChat_HistoryPresenceForwarded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		body         string
		wantProvided bool
		wantLen      int
	}{
		{
			name:         "history with entries",
			body:         `{"question":"q","session_id":"s","history":[{"sender":"user","content":"hi"},{"sender":"assistant","content":"hello"}]}`,
			wantProvided: true,
			wantLen:      2,
		},
		{
			name:         "explicit empty history",
			body:         `{"question":"q","session_id":"s","history":[]}`,
			wantProvided: true,
			wantLen:      0,
		},
		{
			name:         "absent history",
			body:         `{"question":"q","session_id":"s"}`,
			wantProvided: false,
			wantLen:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			agent := &fakeAgent{result: &chat.Result{Answer: "ok"}}
			ts := newTestServer(t, agent)

			resp := postJSON(t, ts.URL+"/api/v1/chat", tt.body)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}

			got := agent.last()
			if got.HistoryProvided != tt.wantProvided {
				t.Errorf("HistoryProvided = %v, want %v", got.HistoryProvided, tt.wantProvided)
			}
			if len(got.History) != tt.wantLen {
				t.Errorf("history len = %d, want %d", len(got.History), tt.wantLen)
			}
		})
	}
}

func TestChat_MalformedBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAgent{result: &chat.Result{Answer: "ok"}})

	for _, body := range []string{`not json`, `{"question": 42}`, `{"unknown_field": true}`} {
		resp := postJSON(t, ts.URL+"/api/v1/chat", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %q status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestChat_AgentFailure(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{err: context.DeadlineExceeded}
	ts := newTestServer(t, agent)

	resp := postJSON(t, ts.URL+"/api/v1/chat", `{"question":"q","session_id":"s"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAgent{result: &chat.Result{Answer: "ok"}})

	resp, err := http.Get(ts.URL + "/api/v1/chat")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestTitle_Success(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{title: "Present Perfect Basics"}
	ts := newTestServer(t, agent)

	resp := postJSON(t, ts.URL+"/api/v1/title", `{"question":"how do I use the present perfect?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body titleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Title != "Present Perfect Basics" {
		t.Errorf("title = %q", body.Title)
	}
}

func TestTitle_EmptyQuestion(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAgent{})

	resp := postJSON(t, ts.URL+"/api/v1/title", `{"question":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAgent{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReady_NoPool(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAgent{})

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("GET /ready: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 without a pool", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAgent{result: &chat.Result{Answer: "ok"}})

	t.Run("generated", func(t *testing.T) {
		t.Parallel()
		resp := postJSON(t, ts.URL+"/api/v1/chat", `{"question":"q","session_id":"s"}`)
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("response missing X-Request-ID header")
		}
	})

	t.Run("preserved", func(t *testing.T) {
		t.Parallel()
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/chat",
			strings.NewReader(`{"question":"q","session_id":"s"}`))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Request-ID", "rid-123")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if got := resp.Header.Get("X-Request-ID"); got != "rid-123" {
			t.Errorf("X-Request-ID = %q, want preserved rid-123", got)
		}
	})
}
