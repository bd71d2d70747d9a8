package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/domsettle"
	"github.com/hazyhaar/domsettle/journal"
)

type stubEngine struct {
	lastReq *domsettle.Request
	result  *domsettle.Result
	err     error

	trail    []journal.Event
	trailErr error
}

func (e *stubEngine) Settle(_ context.Context, req *domsettle.Request) (*domsettle.Result, error) {
	e.lastReq = req
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func (e *stubEngine) Trail(_ context.Context, sessionID string) ([]journal.Event, error) {
	if e.trailErr != nil {
		return nil, e.trailErr
	}
	return e.trail, nil
}

func newTestService(engine *stubEngine) *Service {
	return New(engine, nil)
}

func TestHandleSettle_OK(t *testing.T) {
	engine := &stubEngine{result: &domsettle.Result{
		SessionID: "sess_1",
		URL:       "https://example.com",
		Outcome:   "MaybeDelayCallback",
		Duration:  750 * time.Millisecond,
	}}
	srv := httptest.NewServer(newTestService(engine).Router())
	defer srv.Close()

	body := `{"url": "https://example.com", "initial_delay_ms": 100, "markdown": true, "min_wait_ms": 500}`
	resp, err := http.Post(srv.URL+"/v1/settle", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}

	var res domsettle.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.SessionID != "sess_1" {
		t.Errorf("session_id: got %q", res.SessionID)
	}
	if res.Outcome != "MaybeDelayCallback" {
		t.Errorf("outcome: got %q", res.Outcome)
	}

	if engine.lastReq.InitialDelay != 100*time.Millisecond {
		t.Errorf("initial delay: got %v", engine.lastReq.InitialDelay)
	}
	if !engine.lastReq.Markdown {
		t.Error("markdown flag not propagated")
	}
	if engine.lastReq.Timeouts.MinWait != 500*time.Millisecond {
		t.Errorf("min wait: got %v", engine.lastReq.Timeouts.MinWait)
	}
}

func TestHandleSettle_MissingURL(t *testing.T) {
	srv := httptest.NewServer(newTestService(&stubEngine{}).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/settle", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHandleSettle_BadJSON(t *testing.T) {
	srv := httptest.NewServer(newTestService(&stubEngine{}).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/settle", "application/json", strings.NewReader(`{nope`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHandleSettle_EngineError(t *testing.T) {
	engine := &stubEngine{err: fmt.Errorf("browser unavailable")}
	srv := httptest.NewServer(newTestService(engine).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/settle", "application/json",
		strings.NewReader(`{"url": "https://example.com"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", resp.StatusCode)
	}
}

func TestHandleTrail(t *testing.T) {
	engine := &stubEngine{trail: []journal.Event{
		{SessionID: "sess_2", Seq: 0, Message: "settle: monitor created"},
		{SessionID: "sess_2", Seq: 1, Message: "settle: state", Attrs: "from=Initial to=MonitorStartDelay"},
	}}
	srv := httptest.NewServer(newTestService(engine).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/trail/sess_2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}

	var out struct {
		SessionID string          `json:"session_id"`
		Events    []journal.Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.SessionID != "sess_2" {
		t.Errorf("session_id: got %q", out.SessionID)
	}
	if len(out.Events) != 2 {
		t.Fatalf("events: got %d", len(out.Events))
	}
	if out.Events[1].Message != "settle: state" {
		t.Errorf("event message: got %q", out.Events[1].Message)
	}
}

func TestHandleTrail_NotFound(t *testing.T) {
	engine := &stubEngine{trailErr: fmt.Errorf("no journal store configured")}
	srv := httptest.NewServer(newTestService(engine).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/trail/sess_missing")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHandleHealthz(t *testing.T) {
	srv := httptest.NewServer(newTestService(&stubEngine{}).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
}
