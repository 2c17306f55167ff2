package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"checkin-pipeline/capture"
	"checkin-pipeline/constant"
	"checkin-pipeline/dto"
	"checkin-pipeline/entities"
	"checkin-pipeline/probe"
	"checkin-pipeline/repository"
	"checkin-pipeline/upload"
)

// ErrInvalidState rejects an action outside its valid view states, the same
// way the UI disables its controls.
var ErrInvalidState = errors.New("action not valid in current view state")

// PersistenceError means the video is durable in storage but the check-in
// record was not updated. It is surfaced distinctly so the user knows the
// media is not lost.
type PersistenceError struct {
	Reference string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("video saved at %s but the check-in record was not updated: %v", e.Reference, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NetworkProber classifies the link before an upload attempt.
type NetworkProber interface {
	Measure(ctx context.Context) probe.Class
}

// Compressor decides on and performs adaptive re-encoding.
type Compressor interface {
	ShouldCompress(media *capture.RecordedMedia, class probe.Class) bool
	Compress(ctx context.Context, media *capture.RecordedMedia, class probe.Class) *capture.RecordedMedia
}

// RecordStore is the external check-in record collaborator.
type RecordStore interface {
	UpsertCheckin(ctx context.Context, userID, date string, fields repository.MediaFields) (*entities.CheckinRecord, error)
}

// Notifier receives the saved-video signal once persistence succeeds.
type Notifier interface {
	VideoSaved(ctx context.Context, userID, date, videoURL string, durationSeconds int, sizeBytes int64)
}

// Pipeline drives one daily video check-in attempt end to end.
type Pipeline interface {
	DeviceAvailable(ctx context.Context) bool
	OpenCamera(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (*capture.RecordedMedia, error)
	Submit(ctx context.Context, req dto.SubmitRequest) (string, error)
	ReRecord(ctx context.Context) error
	Dismiss(ctx context.Context) error
	State() constant.ViewState
	Progress() int
	ElapsedSeconds() int
	LastError() error
	Unmount(ctx context.Context)
}

type Dependencies struct {
	Provider    capture.DeviceProvider
	Prober      NetworkProber
	Compressor  Compressor
	Coordinator *upload.Coordinator
	Store       RecordStore
	Notifiers   []Notifier
	Constraints capture.Constraints
	PreviewDir  string
}

type pipeline struct {
	deps     Dependencies
	session  *capture.Session
	recorder *capture.Recorder

	mu        sync.Mutex
	state     constant.ViewState
	media     *capture.RecordedMedia
	job       *upload.Job
	lastErr   error
	available *bool
}

func NewPipeline(deps Dependencies) Pipeline {
	session := capture.NewSession(deps.Provider)
	return &pipeline{
		deps:     deps,
		session:  session,
		recorder: capture.NewRecorder(session, deps.PreviewDir),
		state:    constant.ViewStateCamera,
	}
}

// DeviceAvailable enumerates capture devices once and caches the answer. When
// false, OpenCamera refuses up front and no permission prompt is ever issued.
func (p *pipeline) DeviceAvailable(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.available == nil {
		ok := capture.Available(ctx, p.deps.Provider)
		p.available = &ok
	}
	return *p.available
}

func (p *pipeline) OpenCamera(ctx context.Context) error {
	if !p.DeviceAvailable(ctx) {
		return &capture.DeviceError{Kind: capture.DeviceNotFound, Err: errors.New("no capture device present")}
	}

	p.mu.Lock()
	if p.state != constant.ViewStateCamera {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: cannot open camera from %s", ErrInvalidState, state)
	}
	p.mu.Unlock()

	if _, err := p.session.Open(ctx, p.deps.Constraints); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

func (p *pipeline) StartRecording(ctx context.Context) error {
	p.mu.Lock()
	if p.state != constant.ViewStateCamera {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: cannot start recording from %s", ErrInvalidState, state)
	}
	p.mu.Unlock()

	if err := p.recorder.Start(ctx); err != nil {
		p.fail(err)
		return err
	}

	p.mu.Lock()
	p.state = constant.ViewStateRecording
	p.mu.Unlock()
	return nil
}

func (p *pipeline) StopRecording(ctx context.Context) (*capture.RecordedMedia, error) {
	p.mu.Lock()
	if p.state != constant.ViewStateRecording {
		state := p.state
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot stop recording from %s", ErrInvalidState, state)
	}
	p.mu.Unlock()

	media, err := p.recorder.Stop()
	if err != nil {
		// Mid-capture failures return to the camera with the session intact.
		p.mu.Lock()
		p.state = constant.ViewStateCamera
		p.lastErr = err
		p.mu.Unlock()
		zerolog.Ctx(ctx).Error().Err(err).Msg("recording failed")
		return nil, err
	}

	p.mu.Lock()
	p.media = media
	p.state = constant.ViewStatePreview
	p.mu.Unlock()
	return media, nil
}

// Submit runs the adaptive upload path: pre-flight checks, one network probe,
// conditional compression, transfer, then the idempotent record upsert.
func (p *pipeline) Submit(ctx context.Context, req dto.SubmitRequest) (string, error) {
	p.mu.Lock()
	if p.state != constant.ViewStatePreview || p.media == nil {
		state := p.state
		p.mu.Unlock()
		return "", fmt.Errorf("%w: cannot submit from %s", ErrInvalidState, state)
	}
	media := p.media
	p.state = constant.ViewStateUploading
	p.lastErr = nil
	p.mu.Unlock()

	url, err := p.submit(ctx, req, media)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.state = constant.ViewStateError
		p.lastErr = err
		return "", err
	}
	p.state = constant.ViewStateSuccess
	return url, nil
}

func (p *pipeline) submit(ctx context.Context, req dto.SubmitRequest, media *capture.RecordedMedia) (string, error) {
	if err := p.deps.Coordinator.Preflight(ctx, req.UserID, media); err != nil {
		return "", err
	}

	class := p.deps.Prober.Measure(ctx)

	if p.deps.Compressor.ShouldCompress(media, class) {
		media = p.deps.Compressor.Compress(ctx, media, class)
	}

	job := upload.NewJob(media, upload.Key(req.UserID, req.Date, extFor(media.MimeType)))
	p.mu.Lock()
	p.job = job
	p.mu.Unlock()

	url, err := p.deps.Coordinator.Run(ctx, job, class)
	if err != nil {
		return "", err
	}

	fields := repository.MediaFields{
		VideoReference:  url,
		DurationSeconds: media.DurationSeconds,
		SizeBytes:       media.SizeBytes,
		Notes:           req.Notes,
	}
	if _, err := p.deps.Store.UpsertCheckin(ctx, req.UserID, req.Date, fields); err != nil {
		return "", &PersistenceError{Reference: url, Err: err}
	}

	for _, n := range p.deps.Notifiers {
		n.VideoSaved(ctx, req.UserID, req.Date, url, media.DurationSeconds, media.SizeBytes)
	}
	return url, nil
}

// ReRecord revokes the previous preview handle and returns to the camera,
// reusing the still-open session so no new permission prompt is needed.
func (p *pipeline) ReRecord(ctx context.Context) error {
	p.mu.Lock()
	if p.state != constant.ViewStateSuccess && p.state != constant.ViewStatePreview {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: cannot re-record from %s", ErrInvalidState, state)
	}
	media := p.media
	p.media = nil
	p.job = nil
	p.state = constant.ViewStateCamera
	p.mu.Unlock()

	if media != nil {
		if err := media.RevokePreview(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to revoke preview handle")
		}
	}

	if p.session.State() == capture.SessionClosed {
		return p.OpenCamera(ctx)
	}
	return nil
}

// Dismiss leaves the error state: device and recording errors go back to the
// camera, upload and persistence errors back to the preview so the same bytes
// can be retried without re-recording.
func (p *pipeline) Dismiss(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != constant.ViewStateError {
		return fmt.Errorf("%w: cannot dismiss from %s", ErrInvalidState, p.state)
	}

	var devErr *capture.DeviceError
	var recErr *capture.RecordingError
	if errors.As(p.lastErr, &devErr) || errors.As(p.lastErr, &recErr) || p.media == nil {
		p.state = constant.ViewStateCamera
	} else {
		p.state = constant.ViewStatePreview
	}
	p.lastErr = nil
	return nil
}

func (p *pipeline) State() constant.ViewState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *pipeline) Progress() int {
	p.mu.Lock()
	job := p.job
	p.mu.Unlock()
	if job == nil {
		return 0
	}
	return job.Progress()
}

func (p *pipeline) ElapsedSeconds() int {
	return p.recorder.ElapsedSeconds()
}

func (p *pipeline) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Unmount force-closes the capture stream whatever step is pending, so no
// camera stays active after the pipeline's host disappears.
func (p *pipeline) Unmount(ctx context.Context) {
	if err := p.session.Close(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close capture session on unmount")
	}

	p.mu.Lock()
	media := p.media
	p.media = nil
	p.job = nil
	p.state = constant.ViewStateCamera
	p.lastErr = nil
	p.mu.Unlock()

	if media != nil {
		if err := media.RevokePreview(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to revoke preview handle on unmount")
		}
	}
}

func (p *pipeline) fail(err error) {
	p.mu.Lock()
	p.state = constant.ViewStateError
	p.lastErr = err
	p.mu.Unlock()
}

func extFor(mimeType string) string {
	switch mimeType {
	case "video/mp4":
		return ".mp4"
	default:
		return ".webm"
	}
}
