package capture

import (
	"context"
	"fmt"
)

// Device is one enumerable capture device.
type Device struct {
	ID    string
	Label string
}

// Constraints bound the requested stream.
type Constraints struct {
	MaxWidth  int
	MaxHeight int
	Audio     bool
}

// Stream is an open camera/microphone stream. Chunks delivers encoded media
// at a fixed cadence and is closed when the stream stops; Err reports why a
// stream ended early, if it did.
type Stream interface {
	ID() string
	Chunks() <-chan []byte
	Err() error
}

// RecordingStream is a Stream whose encoder is started and stopped per
// recording. Each BeginRecording/EndRecording pair delivers one complete,
// independently playable media object on a fresh Chunks channel; the channel
// closes once EndRecording has flushed the encoder.
type RecordingStream interface {
	Stream
	BeginRecording() error
	EndRecording() error
}

// DeviceProvider abstracts the host platform's capture APIs so the pipeline
// can run against v4l2, a mobile shim, or a fake in tests.
type DeviceProvider interface {
	ListDevices(ctx context.Context) ([]Device, error)
	OpenStream(ctx context.Context, c Constraints) (Stream, error)
	CloseStream(s Stream) error
}

// Available reports whether at least one capture device exists. It never
// opens a stream, so no permission prompt is triggered by calling it.
func Available(ctx context.Context, p DeviceProvider) bool {
	devices, err := p.ListDevices(ctx)
	if err != nil {
		return false
	}
	return len(devices) > 0
}

type DeviceErrorKind string

const (
	DeviceNotAllowed  DeviceErrorKind = "NOT_ALLOWED"
	DeviceNotFound    DeviceErrorKind = "NOT_FOUND"
	DeviceNotReadable DeviceErrorKind = "NOT_READABLE"
	DeviceOther       DeviceErrorKind = "OTHER"
)

// DeviceError distinguishes user-denied, absent-device and device-busy
// failures when opening a stream.
type DeviceError struct {
	Kind DeviceErrorKind
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device error (%s): %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// RecordingError is surfaced when the underlying recorder fails mid-capture.
type RecordingError struct {
	Err error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("recording failed: %v", e.Err)
}

func (e *RecordingError) Unwrap() error {
	return e.Err
}
