package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"checkin-pipeline/capture"
	"checkin-pipeline/constant"
	"checkin-pipeline/dto"
	"checkin-pipeline/service"
	"checkin-pipeline/upload"
)

type stubPipeline struct {
	state     constant.ViewState
	progress  int
	available bool
	submitErr error
	lastErr   error
}

func (s *stubPipeline) DeviceAvailable(ctx context.Context) bool { return s.available }
func (s *stubPipeline) OpenCamera(ctx context.Context) error     { return nil }
func (s *stubPipeline) StartRecording(ctx context.Context) error { return nil }
func (s *stubPipeline) StopRecording(ctx context.Context) (*capture.RecordedMedia, error) {
	return &capture.RecordedMedia{MimeType: "video/webm", DurationSeconds: 12, SizeBytes: 3}, nil
}
func (s *stubPipeline) Submit(ctx context.Context, req dto.SubmitRequest) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "https://cdn.example.com/clip.webm", nil
}
func (s *stubPipeline) ReRecord(ctx context.Context) error { return nil }
func (s *stubPipeline) Dismiss(ctx context.Context) error  { return nil }
func (s *stubPipeline) State() constant.ViewState          { return s.state }
func (s *stubPipeline) Progress() int                      { return s.progress }
func (s *stubPipeline) ElapsedSeconds() int                { return 0 }
func (s *stubPipeline) LastError() error                   { return s.lastErr }
func (s *stubPipeline) Unmount(ctx context.Context)        {}

func setup(p service.Pipeline) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(p).Register(r)
	return r
}

func TestStateEndpoint(t *testing.T) {
	r := setup(&stubPipeline{state: constant.ViewStateUploading, progress: 42, available: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkin/state", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp dto.StateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.State != "UPLOADING" || resp.Progress != 42 || !resp.DeviceAvailable {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSubmitMapsQuotaDenialToUpgradePrompt(t *testing.T) {
	r := setup(&stubPipeline{submitErr: &upload.QuotaError{Message: "Upgrade for unlimited video check-ins"}})

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"userId":"user-1","date":"2026-08-28"}`)
	req := httptest.NewRequest(http.MethodPost, "/checkin/submit", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusPaymentRequired)
	}
	if !strings.Contains(w.Body.String(), "Upgrade for unlimited video check-ins") {
		t.Fatalf("quota message not surfaced verbatim: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "QUOTA_EXCEEDED") {
		t.Fatalf("quota failures must be distinguishable: %s", w.Body.String())
	}
}

func TestSubmitMapsPersistenceErrorDistinctly(t *testing.T) {
	r := setup(&stubPipeline{submitErr: &service.PersistenceError{Reference: "https://cdn.example.com/clip.webm"}})

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"userId":"user-1","date":"2026-08-28"}`)
	req := httptest.NewRequest(http.MethodPost, "/checkin/submit", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	if !strings.Contains(w.Body.String(), "PERSISTENCE") {
		t.Fatalf("persistence failures must be distinguishable: %s", w.Body.String())
	}
}
