package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkin-pipeline/constant"
)

func TestMeasureClassifiesByThroughput(t *testing.T) {
	payload := make([]byte, 32<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	p := New(Options{URL: srv.URL, SlowBelowBytesPerSec: 1})
	// Make elapsed deterministic: 32KiB over a simulated 100ms.
	base := time.Now()
	calls := 0
	p.now = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(100 * time.Millisecond)
	}

	class := p.Measure(context.Background())
	want := float64(len(payload)) / 0.1
	if class.ThroughputBytesPerSec != want {
		t.Fatalf("throughput = %f, want %f", class.ThroughputBytesPerSec, want)
	}
	if class.Tier != constant.NetworkTierNormal {
		t.Fatalf("tier = %s, want %s", class.Tier, constant.NetworkTierNormal)
	}
}

func TestMeasureSlowTier(t *testing.T) {
	payload := make([]byte, 1<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	p := New(Options{URL: srv.URL, SlowBelowBytesPerSec: 1 << 30})
	class := p.Measure(context.Background())
	if class.Tier != constant.NetworkTierSlow {
		t.Fatalf("tier = %s, want %s", class.Tier, constant.NetworkTierSlow)
	}
}

func TestMeasureFallsBackOnFailure(t *testing.T) {
	p := New(Options{URL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, FallbackBytesPerSec: 1 << 20})
	class := p.Measure(context.Background())
	if class.ThroughputBytesPerSec != 1<<20 {
		t.Fatalf("throughput = %f, want fallback %d", class.ThroughputBytesPerSec, 1<<20)
	}
}

func TestMeasureFallsBackOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Options{URL: srv.URL, FallbackBytesPerSec: 42})
	class := p.Measure(context.Background())
	if class.ThroughputBytesPerSec != 42 {
		t.Fatalf("throughput = %f, want fallback 42", class.ThroughputBytesPerSec)
	}
}
