package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
)

// V4L2Provider captures from video4linux devices through ffmpeg, the same way
// the transcoder shells out for encoding. The stream owns the device for the
// session's lifetime; the encoder process tracks individual recordings, so
// each BeginRecording/EndRecording pair writes one complete webm object with
// its own header and trailer.
type V4L2Provider struct {
	DevicePattern string // defaults to /dev/video*
	AudioDevice   string // alsa device, empty disables audio capture
}

func NewV4L2Provider() *V4L2Provider {
	return &V4L2Provider{DevicePattern: "/dev/video*"}
}

func (p *V4L2Provider) pattern() string {
	if p.DevicePattern == "" {
		return "/dev/video*"
	}
	return p.DevicePattern
}

func (p *V4L2Provider) ListDevices(ctx context.Context) ([]Device, error) {
	matches, err := filepath.Glob(p.pattern())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	devices := make([]Device, 0, len(matches))
	for _, m := range matches {
		devices = append(devices, Device{ID: m, Label: filepath.Base(m)})
	}
	return devices, nil
}

func (p *V4L2Provider) OpenStream(ctx context.Context, c Constraints) (Stream, error) {
	devices, err := p.ListDevices(ctx)
	if err != nil || len(devices) == 0 {
		return nil, &DeviceError{Kind: DeviceNotFound, Err: fmt.Errorf("no capture device matches %s", p.pattern())}
	}
	device := devices[0].ID

	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, classifyDeviceError(err)
	}
	f.Close()

	return &v4l2Stream{
		id:          device,
		device:      device,
		constraints: c,
		audioDevice: p.AudioDevice,
		done:        make(chan struct{}),
	}, nil
}

func (p *V4L2Provider) CloseStream(s Stream) error {
	vs, ok := s.(*v4l2Stream)
	if !ok {
		return fmt.Errorf("stream %s was not opened by this provider", s.ID())
	}
	return vs.stop()
}

func classifyDeviceError(err error) *DeviceError {
	switch {
	case os.IsPermission(err):
		return &DeviceError{Kind: DeviceNotAllowed, Err: err}
	case os.IsNotExist(err):
		return &DeviceError{Kind: DeviceNotFound, Err: err}
	case strings.Contains(err.Error(), syscall.EBUSY.Error()):
		return &DeviceError{Kind: DeviceNotReadable, Err: err}
	default:
		return &DeviceError{Kind: DeviceOther, Err: err}
	}
}

type v4l2Stream struct {
	id          string
	device      string
	constraints Constraints
	audioDevice string

	closeOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	cmd      *exec.Cmd
	chunks   chan []byte
	pumpDone chan struct{}
	stopping bool
	err      error
}

func (s *v4l2Stream) ID() string {
	return s.id
}

func (s *v4l2Stream) Chunks() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

func (s *v4l2Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// BeginRecording spawns one ffmpeg process for this recording and a fresh
// chunk channel for its output.
func (s *v4l2Stream) BeginRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return errors.New("recording already in progress")
	}

	args := []string{
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", s.constraints.MaxWidth, s.constraints.MaxHeight),
		"-i", s.device,
	}
	if s.constraints.Audio && s.audioDevice != "" {
		args = append(args, "-f", "alsa", "-i", s.audioDevice)
	}
	args = append(args,
		"-c:v", "libvpx",
		"-c:a", "libvorbis",
		"-f", "webm",
		"pipe:1",
	)

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return classifyDeviceError(err)
	}

	s.cmd = cmd
	s.err = nil
	s.stopping = false
	s.chunks = make(chan []byte, 4)
	s.pumpDone = make(chan struct{})
	go s.pump(cmd, stdout, s.chunks, s.pumpDone)
	return nil
}

// EndRecording asks the encoder to finish and waits until its output has been
// delivered; the recording's chunk channel closes once the trailer is out.
func (s *v4l2Stream) EndRecording() error {
	s.mu.Lock()
	cmd := s.cmd
	pumpDone := s.pumpDone
	s.cmd = nil
	s.stopping = true
	s.mu.Unlock()

	if cmd == nil {
		return errors.New("no recording in progress")
	}
	terminate(cmd)
	<-pumpDone
	_ = cmd.Wait()
	return nil
}

// pump copies encoder output into the recording's chunk channel. The done
// select keeps it from blocking forever once the consumer has gone away.
func (s *v4l2Stream) pump(cmd *exec.Cmd, r io.Reader, chunks chan []byte, pumpDone chan struct{}) {
	defer close(pumpDone)
	defer close(chunks)
	buf := make([]byte, 64<<10)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			if !stopping {
				s.err = fmt.Errorf("video encoder exited unexpectedly: %v", err)
				if s.cmd == cmd {
					s.cmd = nil
				}
			}
			s.mu.Unlock()
			if !stopping {
				_ = cmd.Wait()
			}
			return
		}
	}
}

func (s *v4l2Stream) stop() error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	cmd := s.cmd
	pumpDone := s.pumpDone
	s.cmd = nil
	s.stopping = true
	s.mu.Unlock()

	if cmd != nil {
		terminate(cmd)
		<-pumpDone
		_ = cmd.Wait()
	}
	return nil
}

// terminate asks ffmpeg to exit; SIGINT lets it flush the container trailer
// before the pipe closes.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}
}
