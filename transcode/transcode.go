package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"checkin-pipeline/capture"
	"checkin-pipeline/constant"
	"checkin-pipeline/probe"
)

// Options carries the compression tunables. The thresholds are empirically
// tuned, not derived; keep them in configuration.
type Options struct {
	TriggerBytes      int64 // compress when the source exceeds this
	MaxWidth          int
	MaxHeight         int
	SlowFPS           int
	NormalFPS         int
	SlowBitrateKbps   int
	NormalBitrateKbps int
	WorkDir           string
}

func DefaultOptions() Options {
	return Options{
		TriggerBytes:      5 << 20,
		MaxWidth:          640,
		MaxHeight:         480,
		SlowFPS:           10,
		NormalFPS:         15,
		SlowBitrateKbps:   250,
		NormalBitrateKbps: 500,
		WorkDir:           filepath.Join("temp", "transcode"),
	}
}

type runner func(ctx context.Context, args []string) error

// Transcoder conditionally re-encodes recorded media into a bounded 4:3
// resolution at a frame rate and bitrate chosen from the network class.
type Transcoder struct {
	opts Options
	run  runner
}

func New(opts Options) *Transcoder {
	if opts.TriggerBytes <= 0 {
		opts.TriggerBytes = 5 << 20
	}
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		opts.MaxWidth, opts.MaxHeight = 640, 480
	}
	return &Transcoder{opts: opts, run: runFFmpeg}
}

// ShouldCompress is true when the source is over the size trigger or the
// link is classified slow.
func (t *Transcoder) ShouldCompress(media *capture.RecordedMedia, class probe.Class) bool {
	return media.SizeBytes > t.opts.TriggerBytes || class.Tier == constant.NetworkTierSlow
}

// Compress re-encodes media through ffmpeg. On any internal failure, or when
// the output does not come out smaller, the original media is returned so the
// pipeline uploads uncompressed rather than failing.
func (t *Transcoder) Compress(ctx context.Context, media *capture.RecordedMedia, class probe.Class) *capture.RecordedMedia {
	fps, bitrate := t.opts.NormalFPS, t.opts.NormalBitrateKbps
	if class.Tier == constant.NetworkTierSlow {
		fps, bitrate = t.opts.SlowFPS, t.opts.SlowBitrateKbps
	}

	workDir := filepath.Join(t.opts.WorkDir, uuid.NewString())
	defer os.RemoveAll(workDir)
	if err := os.MkdirAll(workDir, os.ModePerm); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("compression skipped, falling back to original")
		return media
	}

	inputPath := filepath.Join(workDir, "input.webm")
	outputPath := filepath.Join(workDir, "output.mp4")
	if err := os.WriteFile(inputPath, media.Bytes, 0o644); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("compression skipped, falling back to original")
		return media
	}

	args := buildArgs(inputPath, outputPath, t.opts.MaxWidth, t.opts.MaxHeight, fps, bitrate)
	if err := t.run(ctx, args); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("ffmpeg failed, uploading original instead")
		return media
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("compressed output unreadable, uploading original instead")
		return media
	}

	if int64(len(out)) >= media.SizeBytes {
		zerolog.Ctx(ctx).Info().
			Int64("input_bytes", media.SizeBytes).
			Int("output_bytes", len(out)).
			Msg("compression did not shrink the clip, keeping original")
		return media
	}

	zerolog.Ctx(ctx).Info().
		Int64("input_bytes", media.SizeBytes).
		Int("output_bytes", len(out)).
		Int("fps", fps).
		Int("bitrate_kbps", bitrate).
		Msg("clip compressed")

	return &capture.RecordedMedia{
		Bytes:           out,
		MimeType:        "video/mp4",
		DurationSeconds: media.DurationSeconds,
		SizeBytes:       int64(len(out)),
	}
}

// buildArgs scales to fit the bounded box while keeping aspect ratio. The
// min() terms make it a downscale-only filter: a source smaller than the box
// passes through at its own resolution.
func buildArgs(inputPath, outputPath string, maxW, maxH, fps, bitrateKbps int) []string {
	bitrate := fmt.Sprintf("%dk", bitrateKbps)
	return []string{
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale='min(iw,%d)':'min(ih,%d)':force_original_aspect_ratio=decrease", maxW, maxH),
		"-r", fmt.Sprintf("%d", fps),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", bitrate,
		"-maxrate", bitrate,
		"-bufsize", bitrate,
		"-c:a", "aac",
		"-b:a", "64k",
		"-movflags", "+faststart",
		outputPath,
	}
}

func runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w: %s", err, output)
	}
	return nil
}
