package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"checkin-pipeline/constant"
)

// Class is the coarse link classification for one upload attempt. It is
// ephemeral and never persisted.
type Class struct {
	ThroughputBytesPerSec float64
	Tier                  constant.NetworkTier
}

type Options struct {
	URL                  string
	Timeout              time.Duration
	FallbackBytesPerSec  float64
	SlowBelowBytesPerSec float64
}

// Prober estimates link throughput with one small timed round trip.
type Prober struct {
	client *http.Client
	opts   Options
	now    func() time.Time
}

func New(opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FallbackBytesPerSec <= 0 {
		opts.FallbackBytesPerSec = 1 << 20 // assume 1 MB/s when probing fails
	}
	if opts.SlowBelowBytesPerSec <= 0 {
		opts.SlowBelowBytesPerSec = 125_000
	}
	return &Prober{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		now:    time.Now,
	}
}

// Measure downloads the probe object once and derives bytes/second. Any
// failure falls back to a conservative assumption instead of erroring, so an
// unreachable probe endpoint never blocks an upload.
func (p *Prober) Measure(ctx context.Context) Class {
	throughput := p.opts.FallbackBytesPerSec

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.URL, nil)
	if err != nil {
		return p.classify(ctx, throughput, true)
	}

	start := p.now()
	resp, err := p.client.Do(req)
	if err != nil {
		return p.classify(ctx, throughput, true)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	elapsed := p.now().Sub(start).Seconds()
	if err != nil || resp.StatusCode != http.StatusOK || n == 0 || elapsed <= 0 {
		return p.classify(ctx, throughput, true)
	}

	return p.classify(ctx, float64(n)/elapsed, false)
}

func (p *Prober) classify(ctx context.Context, throughput float64, fallback bool) Class {
	tier := constant.NetworkTierNormal
	if throughput < p.opts.SlowBelowBytesPerSec {
		tier = constant.NetworkTierSlow
	}
	zerolog.Ctx(ctx).Debug().
		Float64("throughput_bps", throughput).
		Str("tier", string(tier)).
		Bool("fallback", fallback).
		Msg("network probe")
	return Class{ThroughputBytesPerSec: throughput, Tier: tier}
}
