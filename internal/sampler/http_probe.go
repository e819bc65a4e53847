package sampler

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"auditwatch/internal/clock"
	"auditwatch/internal/models"
)

// HTTPProbe samples a target by timing a GET against its health URL.
// Availability and error rate are computed over the last Window probes.
type HTTPProbe struct {
	client *http.Client
	urls   map[string]string
	window int
	clock  clock.Clock

	mu      sync.Mutex
	tallies map[string]*probeTally
}

type probeTally struct {
	outcomes []bool
	next     int
	filled   int
	total    int64
}

func (t *probeTally) record(ok bool) {
	t.outcomes[t.next] = ok
	t.next = (t.next + 1) % len(t.outcomes)
	if t.filled < len(t.outcomes) {
		t.filled++
	}
	t.total++
}

func (t *probeTally) availability() float64 {
	if t.filled == 0 {
		return 100
	}
	ok := 0
	for i := 0; i < t.filled; i++ {
		if t.outcomes[i] {
			ok++
		}
	}
	return float64(ok) / float64(t.filled) * 100
}

// HTTPProbeConfig holds probe configuration
type HTTPProbeConfig struct {
	URLs    map[string]string
	Timeout time.Duration
	Window  int
	Clock   clock.Clock
}

// NewHTTPProbe creates a probing sampler
func NewHTTPProbe(cfg HTTPProbeConfig) *HTTPProbe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	return &HTTPProbe{
		client:  &http.Client{Timeout: cfg.Timeout},
		urls:    cfg.URLs,
		window:  cfg.Window,
		clock:   cfg.Clock,
		tallies: make(map[string]*probeTally),
	}
}

func (p *HTTPProbe) Sample(ctx context.Context, targetID string) (models.MetricSnapshot, error) {
	url, ok := p.urls[targetID]
	if !ok || url == "" {
		return models.MetricSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownTarget, targetID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.MetricSnapshot{}, fmt.Errorf("build probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)

	// A failed probe is a data point, not a sampling error
	healthy := err == nil && resp.StatusCode < http.StatusInternalServerError
	if err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	p.mu.Lock()
	tally, ok := p.tallies[targetID]
	if !ok {
		tally = &probeTally{outcomes: make([]bool, p.window)}
		p.tallies[targetID] = tally
	}
	tally.record(healthy)
	availability := tally.availability()
	total := tally.total
	p.mu.Unlock()

	latencyMs := float64(latency.Microseconds()) / 1000

	return models.MetricSnapshot{
		TargetID:        targetID,
		ResponseTimeMs:  latencyMs,
		ErrorRatePct:    100 - availability,
		AvailabilityPct: availability,
		HealthScore:     healthScore(availability, latencyMs),
		RequestCount:    total,
		TakenAt:         p.clock.Now(),
	}, nil
}

// healthScore discounts availability by up to 30 points for slow responses
func healthScore(availability, latencyMs float64) float64 {
	penalty := math.Min(30, latencyMs/100)
	return math.Max(0, availability-penalty)
}
