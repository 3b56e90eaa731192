package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ytdlp-telegram-bot/internal/domain"
	"ytdlp-telegram-bot/internal/jobs"
)

func newTestRouter(report domain.DiagnosticReport, bus *jobs.EventBus) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRouter(Deps{
		Diagnose: func() domain.DiagnosticReport { return report },
		Events:   bus,
		Logger:   log,
	})
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// TestHealthzReflectsDiagnostics verifies 200 and 503 responses.
func TestHealthzReflectsDiagnostics(t *testing.T) {
	ok := newTestRouter(domain.DiagnosticReport{Items: []domain.DiagnosticItem{{ID: "tool_yt-dlp", Status: domain.DiagnosticStatusPass}}}, jobs.NewEventBus(10))
	if resp := get(ok, "/healthz"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	failing := newTestRouter(domain.DiagnosticReport{HasFailures: true}, jobs.NewEventBus(10))
	resp := get(failing, "/healthz")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	var body domain.DiagnosticReport
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || !body.HasFailures {
		t.Fatalf("body = %s, err = %v", resp.Body.String(), err)
	}
}

// TestEventsSince verifies incremental reads and bad input.
func TestEventsSince(t *testing.T) {
	bus := jobs.NewEventBus(10)
	bus.Publish(jobs.Event{JobID: "a", Message: "1"})
	bus.Publish(jobs.Event{JobID: "a", Message: "2"})
	router := newTestRouter(domain.DiagnosticReport{}, bus)

	resp := get(router, "/events?since=1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Events []jobs.Event `json:"events"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Seq != 2 {
		t.Fatalf("events = %+v", body.Events)
	}

	if resp := get(router, "/events?since=abc"); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
