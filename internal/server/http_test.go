package server

import (
	"bytes"
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
	"time"

	"github.com/streamscribe/streamscribe/internal/audio"
	"github.com/streamscribe/streamscribe/internal/capture"
	"github.com/streamscribe/streamscribe/internal/sentence"
	"github.com/streamscribe/streamscribe/internal/session"
	"github.com/streamscribe/streamscribe/internal/transcript"
	"github.com/streamscribe/streamscribe/internal/transcription"
	"github.com/streamscribe/streamscribe/internal/vad"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopEngine struct{}

func (noopEngine) Transcribe(_ context.Context, _ *audio.SpeechSegment, _ string) (*transcription.Result, error) {
	return &transcription.Result{Text: "ok."}, nil
}

func testFactory(t *testing.T) SessionFactory {
	t.Helper()

	return func(req StartRequest) (*session.Session, error) {
		id := req.ID
		if id == "" {
			id = strings.TrimPrefix(req.URL, "https://")
		}

		const frameBytes = 640

		classifier, err := vad.Select(nil, 0, vad.EnergyConfig{
			Threshold:  vad.DefaultEnergyThreshold,
			FrameBytes: frameBytes,
		})
		if err != nil {
			return nil, err
		}

		assembler, err := audio.NewAssembler(audio.AssemblerConfig{
			FrameDuration: 20 * time.Millisecond,
			MinSegment:    500 * time.Millisecond,
			MaxSegment:    30 * time.Second,
			MinSpeech:     250 * time.Millisecond,
			MaxSilence:    time.Second,
			SampleRate:    16000,
		})
		if err != nil {
			return nil, err
		}

		return session.New(id, req.Title, session.Deps{
			Source:      capture.NewReaderSource(bytes.NewReader(nil), frameBytes),
			Classifier:  classifier,
			Assembler:   assembler,
			Queue:       audio.NewSegmentQueue(8),
			Engine:      noopEngine{},
			Aggregator:  sentence.NewAggregator(sentence.Config{}),
			Dedup:       sentence.NewDeduplicator(10, 0.8),
			Sink:        transcript.NewLogSink(nil),
			FrameBytes:  frameBytes,
			ReadTimeout: 50 * time.Millisecond,
			PopTimeout:  50 * time.Millisecond,
		})
	}
}

func newTestServer(t *testing.T) (*HTTPServer, *session.Registry) {
	t.Helper()

	registry := session.NewRegistry(nil, nil)
	h := NewHTTPServer(HTTPServerConfig{Address: "127.0.0.1", Port: 0},
		nil, registry, testFactory(t), nil, nil)
	h.logger = discardLogger()

	return h, registry
}

func doRequest(h *HTTPServer, method, path string, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStartAndGetSession(t *testing.T) {
	h, registry := newTestServer(t)
	defer registry.StopAll()

	rec := doRequest(h, http.MethodPost, "/sessions", `{"id":"stream-1","url":"https://example.com/live","title":"Live"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var info session.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if info.ID != "stream-1" || info.State != "running" {
		t.Errorf("Unexpected session info: %+v", info)
	}

	rec = doRequest(h, http.MethodGet, "/sessions/stream-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestStartDuplicateSession(t *testing.T) {
	h, registry := newTestServer(t)
	defer registry.StopAll()

	body := `{"id":"stream-1","url":"https://example.com/live"}`

	if rec := doRequest(h, http.MethodPost, "/sessions", body); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	if rec := doRequest(h, http.MethodPost, "/sessions", body); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate id, got %d", rec.Code)
	}
}

func TestStartSessionValidation(t *testing.T) {
	h, registry := newTestServer(t)
	defer registry.StopAll()

	if rec := doRequest(h, http.MethodPost, "/sessions", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing url and id, got %d", rec.Code)
	}

	if rec := doRequest(h, http.MethodPost, "/sessions", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid body, got %d", rec.Code)
	}
}

func TestFactoryFailure(t *testing.T) {
	registry := session.NewRegistry(nil, nil)
	factory := func(StartRequest) (*session.Session, error) {
		return nil, errors.New("stream metadata unavailable")
	}

	h := NewHTTPServer(HTTPServerConfig{}, nil, registry, factory, nil, nil)
	h.logger = discardLogger()

	rec := doRequest(h, http.MethodPost, "/sessions", `{"url":"https://example.com/live"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 for factory failure, got %d", rec.Code)
	}

	if registry.Len() != 0 {
		t.Error("Failed start must not leave a registered session behind")
	}
}

func TestListAndStopAll(t *testing.T) {
	h, registry := newTestServer(t)

	for i := 1; i <= 2; i++ {
		body := fmt.Sprintf(`{"id":"stream-%d","url":"https://example.com/%d"}`, i, i)
		if rec := doRequest(h, http.MethodPost, "/sessions", body); rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d", rec.Code)
		}
	}

	rec := doRequest(h, http.MethodGet, "/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var listResp struct {
		TotalSessions int            `json:"total_sessions"`
		Sessions      []session.Info `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("Failed to parse list response: %v", err)
	}

	if listResp.TotalSessions != 2 || len(listResp.Sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %+v", listResp)
	}

	rec = doRequest(h, http.MethodDelete, "/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stopResp struct {
		Stopped int `json:"stopped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stopResp); err != nil {
		t.Fatalf("Failed to parse stop response: %v", err)
	}

	if stopResp.Stopped != 2 {
		t.Errorf("Expected 2 stopped sessions, got %d", stopResp.Stopped)
	}

	if registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Len())
	}
}

func TestStopSingleSession(t *testing.T) {
	h, registry := newTestServer(t)
	defer registry.StopAll()

	if rec := doRequest(h, http.MethodPost, "/sessions", `{"id":"stream-1","url":"https://example.com/live"}`); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	if rec := doRequest(h, http.MethodDelete, "/sessions/stream-1", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	if rec := doRequest(h, http.MethodDelete, "/sessions/stream-1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for already-stopped session, got %d", rec.Code)
	}
}

func TestHealthAndStats(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", rec.Code)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected healthy status, got %q", health.Status)
	}

	if rec := doRequest(h, http.MethodGet, "/stats", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /stats, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t)

	if rec := doRequest(h, http.MethodPut, "/sessions", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}

	if rec := doRequest(h, http.MethodPost, "/health", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
