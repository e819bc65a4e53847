// Package sampler produces metric snapshots for monitored targets.
package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"auditwatch/internal/clock"
	"auditwatch/internal/models"
)

// ErrUnknownTarget is returned when a sampler has no source for a target
var ErrUnknownTarget = errors.New("no metric source configured for target")

// Sampler takes one health snapshot of a target
type Sampler interface {
	Sample(ctx context.Context, targetID string) (models.MetricSnapshot, error)
}

// Documented ranges of the synthetic generator
const (
	MinResponseTimeMs = 200
	MaxResponseTimeMs = 3400
	MaxErrorRatePct   = 10
	MinAvailability   = 80
	MinHealthScore    = 70
	MinRequestCount   = 100
	MaxRequestCount   = 1100
)

// Synthetic generates random snapshots in fixed ranges. It stands in for a
// real collector and never fails.
type Synthetic struct {
	clock clock.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic creates a generator; a nil rng uses a randomly seeded source.
func NewSynthetic(c clock.Clock, rng *rand.Rand) *Synthetic {
	if c == nil {
		c = clock.Real()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Synthetic{clock: c, rng: rng}
}

func (s *Synthetic) Sample(ctx context.Context, targetID string) (models.MetricSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.MetricSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return models.MetricSnapshot{
		TargetID:        targetID,
		ResponseTimeMs:  s.between(MinResponseTimeMs, MaxResponseTimeMs),
		ErrorRatePct:    s.between(0, MaxErrorRatePct),
		AvailabilityPct: s.between(MinAvailability, 100),
		HealthScore:     s.between(MinHealthScore, 100),
		RequestCount:    int64(MinRequestCount + s.rng.IntN(MaxRequestCount-MinRequestCount+1)),
		TakenAt:         s.clock.Now(),
	}, nil
}

func (s *Synthetic) between(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}
