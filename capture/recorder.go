package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RecordedMedia is the finalized output of one recording attempt.
type RecordedMedia struct {
	Bytes           []byte
	MimeType        string
	DurationSeconds int
	SizeBytes       int64

	preview *PreviewHandle
}

func (m *RecordedMedia) Preview() *PreviewHandle {
	return m.preview
}

// RevokePreview drops the media's local preview handle, if one is live.
func (m *RecordedMedia) RevokePreview() error {
	if m.preview == nil {
		return nil
	}
	err := m.preview.Revoke()
	m.preview = nil
	return err
}

// Recorder accumulates encoded chunks from an open session's stream until
// stopped, then assembles them into one RecordedMedia with a preview handle.
// Stop never closes the session; the stream stays open for a re-record.
type Recorder struct {
	session    *Session
	previewDir string
	mimeType   string
	ext        string
	now        func() time.Time

	mu         sync.Mutex
	active     bool
	stream     Stream
	startedAt  time.Time
	buf        bytes.Buffer
	stop       chan struct{}
	drained    chan struct{}
	captureErr error
	lastMedia  *RecordedMedia
}

func NewRecorder(session *Session, previewDir string) *Recorder {
	return &Recorder{
		session:    session,
		previewDir: previewDir,
		mimeType:   "video/webm",
		ext:        ".webm",
		now:        time.Now,
	}
}

// Start begins accumulating chunks. The session must be open and not already
// recording.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return errors.New("recorder already active")
	}

	stream := r.session.Stream()
	if stream == nil || !r.session.markRecording() {
		return errors.New("capture session is not open")
	}

	if rs, ok := stream.(RecordingStream); ok {
		if err := rs.BeginRecording(); err != nil {
			r.session.markOpen()
			return &RecordingError{Err: err}
		}
	} else if err := discardStale(stream); err != nil {
		r.session.markOpen()
		return &RecordingError{Err: err}
	}

	r.active = true
	r.stream = stream
	r.startedAt = r.now()
	r.buf.Reset()
	r.captureErr = nil
	r.stop = make(chan struct{})
	r.drained = make(chan struct{})

	go r.drain(ctx, stream, r.stop)
	return nil
}

// discardStale drops chunks the stream queued while no recording was active;
// they carry preview-period bytes, not this recording's.
func discardStale(stream Stream) error {
	for {
		select {
		case _, ok := <-stream.Chunks():
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				return errors.New("capture stream has ended")
			}
		default:
			return nil
		}
	}
}

func (r *Recorder) drain(ctx context.Context, stream Stream, stop <-chan struct{}) {
	defer close(r.drained)
	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				if err := stream.Err(); err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("capture stream failed mid-recording")
					r.mu.Lock()
					r.captureErr = &RecordingError{Err: err}
					r.active = false
					r.mu.Unlock()
					r.session.markOpen()
				}
				return
			}
			r.mu.Lock()
			if r.active {
				r.buf.Write(chunk)
			}
			r.mu.Unlock()
		case <-stop:
			// Chunks delivered before the stop signal still belong to the
			// recording; flush whatever is already queued.
			for {
				select {
				case chunk, ok := <-stream.Chunks():
					if !ok {
						return
					}
					r.mu.Lock()
					r.buf.Write(chunk)
					r.mu.Unlock()
				default:
					return
				}
			}
		}
	}
}

// Recording reports whether chunks are currently being accumulated.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ElapsedSeconds is the wall-clock length of the in-flight recording, for
// display and for the final duration metadata.
func (r *Recorder) ElapsedSeconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return 0
	}
	return int(r.now().Sub(r.startedAt).Seconds())
}

// Err returns the mid-capture failure, if the stream died while recording.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captureErr
}

// Stop finalizes the accumulated chunks into one RecordedMedia and creates
// its preview handle. Any previous media's preview handle is revoked first so
// exactly one live handle exists. The session remains open.
func (r *Recorder) Stop() (*RecordedMedia, error) {
	r.mu.Lock()

	if r.captureErr != nil {
		err := r.captureErr
		r.captureErr = nil
		r.mu.Unlock()
		return nil, err
	}
	if !r.active {
		r.mu.Unlock()
		return nil, errors.New("recorder is not active")
	}
	stream := r.stream
	r.mu.Unlock()

	if rs, ok := stream.(RecordingStream); ok {
		// Flushing the encoder closes this recording's chunk channel once the
		// trailer is delivered; drain consumes it to the end.
		if err := rs.EndRecording(); err != nil {
			log.Warn().Err(err).Msg("failed to finalize recording encoder")
		}
		<-r.drained
		r.mu.Lock()
		r.active = false
	} else {
		r.mu.Lock()
		r.active = false
		close(r.stop)
		r.mu.Unlock()
		<-r.drained
		r.mu.Lock()
	}

	duration := int(r.now().Sub(r.startedAt).Seconds())
	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	prev := r.lastMedia
	r.mu.Unlock()

	r.session.markOpen()

	if prev != nil {
		if err := prev.RevokePreview(); err != nil {
			// The new recording must not be lost to old-handle cleanup.
			log.Warn().Err(err).Msg("failed to revoke superseded preview handle")
		}
	}

	preview, err := newPreviewHandle(r.previewDir, data, r.ext)
	if err != nil {
		return nil, err
	}

	media := &RecordedMedia{
		Bytes:           data,
		MimeType:        r.mimeType,
		DurationSeconds: duration,
		SizeBytes:       int64(len(data)),
		preview:         preview,
	}

	r.mu.Lock()
	r.lastMedia = media
	r.mu.Unlock()

	return media, nil
}
