package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cursor-telemetry/backend/internal/pipeline"
	"github.com/cursor-telemetry/backend/internal/session"
)

type fakeSource struct {
	sessions []*session.Session
}

func (f *fakeSource) RecentSessions(limit int) ([]*session.Session, error) {
	if limit < len(f.sessions) {
		return f.sessions[:limit], nil
	}
	return f.sessions, nil
}

func newTestServer(t *testing.T, authToken string) (*httptest.Server, *pipeline.Pipeline, chan session.Session) {
	t.Helper()

	pipe := pipeline.New(pipeline.Config{
		BatchSize: 1, // every accepted event becomes a session immediately
		IdleFlush: time.Hour,
	})
	t.Cleanup(pipe.Close)

	emitted := make(chan session.Session, 16)
	pipe.RegisterSessionHandler(func(s session.Session) { emitted <- s })

	source := &fakeSource{sessions: []*session.Session{
		{ID: "session_1_2", StartTime: 1, EndTime: 2, Fingerprint: "abc"},
	}}
	b := NewBroadcaster(source, 10*time.Millisecond, 20)
	srv := NewServer(pipe, source, b, nil, nil, authToken)

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, pipe, emitted
}

func waitEmitted(t *testing.T, ch chan session.Session) session.Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an emitted session")
		return session.Session{}
	}
}

func TestPostSingleEvent(t *testing.T) {
	ts, _, emitted := newTestServer(t, "")

	body := `{"type":"file_change","timestamp":1000,"content":"edit","filePath":"/a.go"}`
	resp, err := http.Post(ts.URL+"/api/events", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var out map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["accepted"] != 1 {
		t.Errorf("accepted = %d, want 1", out["accepted"])
	}

	s := waitEmitted(t, emitted)
	if len(s.Events) != 1 || s.Events[0].FilePath != "/a.go" {
		t.Errorf("emitted session = %+v", s)
	}
}

func TestPostEventArray(t *testing.T) {
	ts, _, emitted := newTestServer(t, "")

	body := `[
		{"type":"file_change","timestamp":1000,"content":"a"},
		{"type":"conversation","timestamp":2000,"content":"b"}
	]`
	resp, err := http.Post(ts.URL+"/api/events", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	waitEmitted(t, emitted)
	waitEmitted(t, emitted)
}

func TestPostInvalidEventRejected(t *testing.T) {
	ts, pipe, _ := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"missing timestamp", `{"type":"file_change"}`},
		{"unknown type", `{"type":"warp_drive","timestamp":1000}`},
		{"bad entry in array", `[{"type":"file_change","timestamp":1},{"type":"file_change"}]`},
		{"empty body", ``},
		{"malformed json", `{nope`},
	}

	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/api/events", "application/json", strings.NewReader(tt.body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, resp.StatusCode)
		}
	}

	if got := pipe.Stats().Submitted; got != 0 {
		t.Errorf("Submitted = %d after rejected payloads, want 0", got)
	}
}

func TestPostMethodRequired(t *testing.T) {
	ts, _, _ := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestGetSessions(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var sessions []*session.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != "session_1_2" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestGetStats(t *testing.T) {
	ts, _, emitted := newTestServer(t, "")

	body := `{"type":"tool_call","timestamp":1000,"content":"Bash"}`
	resp, err := http.Post(ts.URL+"/api/events", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	waitEmitted(t, emitted)

	resp, err = http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats pipeline.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Submitted != 1 {
		t.Errorf("stats.Submitted = %d, want 1", stats.Submitted)
	}
}

func TestAuthToken(t *testing.T) {
	ts, _, _ := newTestServer(t, "secret")

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("bearer token: status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/sessions?token=secret")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("query token: status = %d, want 200", resp.StatusCode)
	}
}

func TestDecodeEvents(t *testing.T) {
	events, err := decodeEvents([]byte(`  {"type":"file_change","timestamp":5}  `))
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if len(events) != 1 || events[0].Timestamp != 5 {
		t.Errorf("single: %+v", events)
	}

	events, err = decodeEvents([]byte(`[{"type":"file_change","timestamp":1},{"type":"tool_call","timestamp":2}]`))
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if len(events) != 2 || events[1].Type != session.EventToolCall {
		t.Errorf("array: %+v", events)
	}

	if _, err := decodeEvents([]byte("")); err == nil {
		t.Error("empty body: want error")
	}
}
