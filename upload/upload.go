package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"checkin-pipeline/capture"
	"checkin-pipeline/constant"
	"checkin-pipeline/probe"
)

// Backend is the durable object-storage collaborator.
type Backend interface {
	PutObject(ctx context.Context, path string, data []byte, contentType string) (string, error)
	GetPublicUrl(path string) string
}

// QuotaService gates whether a user may perform another video upload.
type QuotaService interface {
	CheckAllowance(ctx context.Context, userID string) (Allowance, error)
}

type Allowance struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message"`
}

// SizeLimitError rejects a clip before any network activity.
type SizeLimitError struct {
	SizeBytes  int64
	LimitBytes int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("clip is %d bytes, over the %d byte upload limit", e.SizeBytes, e.LimitBytes)
}

// QuotaError carries the quota collaborator's message verbatim so the UI can
// surface it as an upgrade prompt rather than a generic failure.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	return e.Message
}

// UploadError wraps a transfer failure. The job keeps its media so the same
// bytes can be retried without re-recording.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Key builds the collision-free destination path {userId}-{date}-{timestamp}.
func Key(userID, date, ext string) string {
	return fmt.Sprintf("%s-%s-%d%s", userID, date, time.Now().UnixNano(), ext)
}

// Job is one attempt to transfer a recorded clip. The platform gives no
// byte-accurate transfer signal, so progress is synthesized from elapsed time
// against the probed throughput: it is monotonically non-decreasing, capped
// at 95 while in flight, and is exactly 100 only after the backend confirms.
type Job struct {
	Media *capture.RecordedMedia
	Key   string

	mu            sync.Mutex
	status        constant.UploadStatus
	startedAt     time.Time
	estimatedSecs float64
	highWater     float64
	now           func() time.Time
}

func NewJob(media *capture.RecordedMedia, key string) *Job {
	return &Job{
		Media:  media,
		Key:    key,
		status: constant.UploadStatusPending,
		now:    time.Now,
	}
}

func (j *Job) Status() constant.UploadStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress reports the current estimate in [0,100].
func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.status {
	case constant.UploadStatusPending:
		return 0
	case constant.UploadStatusSucceeded:
		return 100
	}

	estimate := 0.0
	if j.estimatedSecs > 0 {
		estimate = j.now().Sub(j.startedAt).Seconds() / j.estimatedSecs * 100
	}
	if estimate > 95 {
		estimate = 95
	}
	if estimate > j.highWater {
		j.highWater = estimate
	}
	return int(j.highWater)
}

func (j *Job) begin(class probe.Class) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = constant.UploadStatusInFlight
	j.startedAt = j.now()
	if class.ThroughputBytesPerSec > 0 {
		j.estimatedSecs = float64(j.Media.SizeBytes) / class.ThroughputBytesPerSec
	}
}

func (j *Job) finish(status constant.UploadStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
}

// Coordinator enforces the pre-flight checks and performs the transfer.
type Coordinator struct {
	backend  Backend
	quota    QuotaService // nil when no quota collaborator is configured
	maxBytes int64
}

func NewCoordinator(backend Backend, quota QuotaService, maxBytes int64) *Coordinator {
	if maxBytes <= 0 {
		maxBytes = 100 << 20
	}
	return &Coordinator{backend: backend, quota: quota, maxBytes: maxBytes}
}

// Preflight fails closed before any network activity: the hard size ceiling
// first, then the quota collaborator. A quota denial never touches storage.
func (c *Coordinator) Preflight(ctx context.Context, userID string, media *capture.RecordedMedia) error {
	if media.SizeBytes > c.maxBytes {
		return &SizeLimitError{SizeBytes: media.SizeBytes, LimitBytes: c.maxBytes}
	}

	if c.quota != nil {
		allowance, err := c.quota.CheckAllowance(ctx, userID)
		if err != nil {
			return &UploadError{Err: err}
		}
		if !allowance.Allowed {
			return &QuotaError{Message: allowance.Message}
		}
	}

	return nil
}

// Run transfers the job's media and resolves the durable public reference.
func (c *Coordinator) Run(ctx context.Context, job *Job, class probe.Class) (string, error) {
	if job.Media.SizeBytes > c.maxBytes {
		return "", &SizeLimitError{SizeBytes: job.Media.SizeBytes, LimitBytes: c.maxBytes}
	}

	job.begin(class)
	zerolog.Ctx(ctx).Info().
		Str("key", job.Key).
		Int64("size_bytes", job.Media.SizeBytes).
		Float64("throughput_bps", class.ThroughputBytesPerSec).
		Msg("starting upload")

	url, err := c.backend.PutObject(ctx, job.Key, job.Media.Bytes, job.Media.MimeType)
	if err != nil {
		job.finish(constant.UploadStatusFailed)
		zerolog.Ctx(ctx).Error().Err(err).Str("key", job.Key).Msg("upload failed")
		return "", &UploadError{Err: err}
	}

	job.finish(constant.UploadStatusSucceeded)
	zerolog.Ctx(ctx).Info().Str("key", job.Key).Str("url", url).Msg("upload complete")
	return url, nil
}
