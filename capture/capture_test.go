package capture

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	id     string
	chunks chan []byte
	err    error
}

func (s *fakeStream) ID() string            { return s.id }
func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }
func (s *fakeStream) Err() error            { return s.err }

type fakeProvider struct {
	devices    []Device
	listErr    error
	openErr    error
	opened     int
	closed     int
	lastStream *fakeStream
}

func (p *fakeProvider) ListDevices(ctx context.Context) ([]Device, error) {
	return p.devices, p.listErr
}

func (p *fakeProvider) OpenStream(ctx context.Context, c Constraints) (Stream, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opened++
	p.lastStream = &fakeStream{id: "stream-1", chunks: make(chan []byte, 16)}
	return p.lastStream, nil
}

func (p *fakeProvider) CloseStream(s Stream) error {
	p.closed++
	return nil
}

func TestAvailableWithoutDevicesNeverOpens(t *testing.T) {
	p := &fakeProvider{}
	if Available(context.Background(), p) {
		t.Fatal("expected no device to be available")
	}
	p.listErr = errors.New("enumeration unsupported")
	if Available(context.Background(), p) {
		t.Fatal("expected enumeration failure to report unavailable")
	}
	if p.opened != 0 {
		t.Fatalf("capability probe opened %d streams, want 0", p.opened)
	}
}

func TestSessionOpenIsNoOpWhileActive(t *testing.T) {
	p := &fakeProvider{devices: []Device{{ID: "/dev/video0"}}}
	s := NewSession(p)

	first, err := s.Open(context.Background(), Constraints{MaxWidth: 640, MaxHeight: 480})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := s.Open(context.Background(), Constraints{MaxWidth: 640, MaxHeight: 480})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if first != second {
		t.Fatal("open on an active session must return the existing stream")
	}
	if p.opened != 1 {
		t.Fatalf("provider opened %d streams, want 1", p.opened)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	p := &fakeProvider{devices: []Device{{ID: "/dev/video0"}}}
	s := NewSession(p)
	if _, err := s.Open(context.Background(), Constraints{}); err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if p.closed != 1 {
		t.Fatalf("provider closed %d streams, want 1", p.closed)
	}
	if s.State() != SessionClosed {
		t.Fatalf("state = %s, want %s", s.State(), SessionClosed)
	}
}

func TestSessionOpenWrapsDeviceError(t *testing.T) {
	p := &fakeProvider{openErr: errors.New("boom")}
	s := NewSession(p)
	_, err := s.Open(context.Background(), Constraints{})
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Kind != DeviceOther {
		t.Fatalf("got %v, want DeviceError{OTHER}", err)
	}
}

func recordOnce(t *testing.T, r *Recorder, stream *fakeStream, chunks ...[]byte) *RecordedMedia {
	t.Helper()
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, c := range chunks {
		stream.chunks <- c
	}
	waitForBuffered(t, r, totalLen(chunks))
	media, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	return media
}

func totalLen(chunks [][]byte) int {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	return n
}

func waitForBuffered(t *testing.T, r *Recorder, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		got := r.buf.Len()
		r.mu.Unlock()
		if got >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("recorder never buffered %d bytes", want)
}

func TestRecorderStopKeepsSessionOpen(t *testing.T) {
	p := &fakeProvider{devices: []Device{{ID: "/dev/video0"}}}
	s := NewSession(p)
	stream, err := s.Open(context.Background(), Constraints{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	r := NewRecorder(s, t.TempDir())
	media := recordOnce(t, r, p.lastStream, []byte("abc"), []byte("def"))

	if s.State() != SessionOpen {
		t.Fatalf("session state after stop = %s, want %s", s.State(), SessionOpen)
	}
	if s.Stream() != stream {
		t.Fatal("stop must not replace the session's stream")
	}
	if p.closed != 0 {
		t.Fatal("stop must not close the capture session")
	}
	if string(media.Bytes) != "abcdef" {
		t.Fatalf("media bytes = %q", media.Bytes)
	}
	if media.SizeBytes != 6 {
		t.Fatalf("size = %d, want 6", media.SizeBytes)
	}
}

func TestRecorderStartRequiresOpenSession(t *testing.T) {
	p := &fakeProvider{devices: []Device{{ID: "/dev/video0"}}}
	s := NewSession(p)
	r := NewRecorder(s, t.TempDir())
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("start on a closed session must fail")
	}
}

func TestRecorderRevokesSupersededPreview(t *testing.T) {
	p := &fakeProvider{devices: []Device{{ID: "/dev/video0"}}}
	s := NewSession(p)
	if _, err := s.Open(context.Background(), Constraints{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	r := NewRecorder(s, t.TempDir())

	first := recordOnce(t, r, p.lastStream, []byte("take one"))
	firstPath := first.Preview().Path()

	second := recordOnce(t, r, p.lastStream, []byte("take two"))

	if first.Preview() != nil {
		t.Fatal("superseded preview handle must be revoked and dropped")
	}
	if _, err := os.Stat(firstPath); !os.IsNotExist(err) {
		t.Fatalf("superseded preview file still exists: %v", err)
	}
	if second.Preview() == nil || second.Preview().Revoked() {
		t.Fatal("new media must carry exactly one live preview handle")
	}
}

func TestRecorderSurfacesMidCaptureFailure(t *testing.T) {
	p := &fakeProvider{devices: []Device{{ID: "/dev/video0"}}}
	s := NewSession(p)
	if _, err := s.Open(context.Background(), Constraints{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	r := NewRecorder(s, t.TempDir())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	p.lastStream.err = errors.New("encoder died")
	close(p.lastStream.chunks)
	<-r.drained

	_, err := r.Stop()
	var recErr *RecordingError
	if !errors.As(err, &recErr) {
		t.Fatalf("got %v, want RecordingError", err)
	}
	if s.State() != SessionOpen {
		t.Fatalf("session state = %s, want %s (session survives recording failure)", s.State(), SessionOpen)
	}
}

func TestClassifyDeviceError(t *testing.T) {
	cases := []struct {
		err  error
		want DeviceErrorKind
	}{
		{os.ErrPermission, DeviceNotAllowed},
		{os.ErrNotExist, DeviceNotFound},
		{errors.New("open /dev/video0: device or resource busy"), DeviceNotReadable},
		{errors.New("anything else"), DeviceOther},
	}
	for _, tc := range cases {
		if got := classifyDeviceError(tc.err).Kind; got != tc.want {
			t.Errorf("classifyDeviceError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestRecorderDiscardsChunksQueuedBetweenRecordings(t *testing.T) {
	p := &fakeProvider{devices: []Device{{ID: "/dev/video0"}}}
	s := NewSession(p)
	if _, err := s.Open(context.Background(), Constraints{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	r := NewRecorder(s, t.TempDir())

	recordOnce(t, r, p.lastStream, []byte("take one"))

	// The stream keeps producing while nothing records; those bytes belong
	// to no recording.
	p.lastStream.chunks <- []byte("idle bytes ")

	second := recordOnce(t, r, p.lastStream, []byte("take two"))
	if string(second.Bytes) != "take two" {
		t.Fatalf("second media = %q, want %q", second.Bytes, "take two")
	}
}

func TestRecorderStopSurvivesSupersededRevokeFailure(t *testing.T) {
	p := &fakeProvider{devices: []Device{{ID: "/dev/video0"}}}
	s := NewSession(p)
	if _, err := s.Open(context.Background(), Constraints{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	r := NewRecorder(s, t.TempDir())

	first := recordOnce(t, r, p.lastStream, []byte("take one"))
	// Preview file removed out-of-band: revoking the stale handle fails, but
	// that must not discard the recording being finalized.
	if err := os.Remove(first.Preview().Path()); err != nil {
		t.Fatalf("remove: %v", err)
	}

	second := recordOnce(t, r, p.lastStream, []byte("take two"))
	if string(second.Bytes) != "take two" {
		t.Fatalf("second media = %q, want %q", second.Bytes, "take two")
	}
	if second.Preview() == nil || second.Preview().Revoked() {
		t.Fatal("new media must carry a live preview handle")
	}
}

type fakeRecordingStream struct {
	id      string
	trailer []byte
	err     error

	mu     sync.Mutex
	chunks chan []byte
	begins int
	ends   int
}

func (s *fakeRecordingStream) ID() string { return s.id }

func (s *fakeRecordingStream) Chunks() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

func (s *fakeRecordingStream) Err() error { return s.err }

func (s *fakeRecordingStream) BeginRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	s.chunks = make(chan []byte, 16)
	return nil
}

func (s *fakeRecordingStream) EndRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends++
	if s.trailer != nil {
		s.chunks <- s.trailer
	}
	close(s.chunks)
	return nil
}

func (s *fakeRecordingStream) push(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks <- b
}

type fakeRecordingProvider struct {
	stream *fakeRecordingStream
}

func (p *fakeRecordingProvider) ListDevices(ctx context.Context) ([]Device, error) {
	return []Device{{ID: p.stream.id}}, nil
}

func (p *fakeRecordingProvider) OpenStream(ctx context.Context, c Constraints) (Stream, error) {
	return p.stream, nil
}

func (p *fakeRecordingProvider) CloseStream(s Stream) error { return nil }

func TestRecorderBoundsEncoderToRecording(t *testing.T) {
	stream := &fakeRecordingStream{id: "/dev/video0", trailer: []byte("-trailer")}
	s := NewSession(&fakeRecordingProvider{stream: stream})
	if _, err := s.Open(context.Background(), Constraints{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	r := NewRecorder(s, t.TempDir())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if stream.begins != 1 {
		t.Fatalf("begins = %d, want 1", stream.begins)
	}
	stream.push([]byte("take one"))
	waitForBuffered(t, r, len("take one"))
	first, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stream.ends != 1 {
		t.Fatalf("ends = %d, want 1", stream.ends)
	}
	if string(first.Bytes) != "take one-trailer" {
		t.Fatalf("first media = %q, want encoder output through the trailer", first.Bytes)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if stream.begins != 2 {
		t.Fatalf("begins = %d, want one encoder per recording", stream.begins)
	}
	stream.push([]byte("take two"))
	waitForBuffered(t, r, len("take two"))
	second, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if string(second.Bytes) != "take two-trailer" {
		t.Fatalf("second media = %q, want a complete object per recording", second.Bytes)
	}
}
