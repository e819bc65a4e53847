package models

import "time"

// MetricField names one of the numeric fields of a MetricSnapshot
type MetricField string

const (
	FieldResponseTime MetricField = "response_time"
	FieldErrorRate    MetricField = "error_rate"
	FieldAvailability MetricField = "availability"
	FieldHealthScore  MetricField = "health_score"
	FieldRequestCount MetricField = "request_count"
)

// MetricFields lists every field a rule may watch, in display order.
var MetricFields = []MetricField{
	FieldResponseTime,
	FieldErrorRate,
	FieldAvailability,
	FieldHealthScore,
	FieldRequestCount,
}

// IsValid checks if the metric field is known
func (f MetricField) IsValid() bool {
	switch f {
	case FieldResponseTime, FieldErrorRate, FieldAvailability, FieldHealthScore, FieldRequestCount:
		return true
	default:
		return false
	}
}

// MetricSnapshot is one health sample of a monitored target.
// Snapshots are never mutated after the sampler returns them.
type MetricSnapshot struct {
	TargetID        string    `json:"target_id"`
	ResponseTimeMs  float64   `json:"response_time_ms"`
	ErrorRatePct    float64   `json:"error_rate_pct"`
	AvailabilityPct float64   `json:"availability_pct"`
	HealthScore     float64   `json:"health_score"`
	RequestCount    int64     `json:"request_count"`
	TakenAt         time.Time `json:"taken_at"`
}

// Value reads the named field. The second result is false for unknown fields.
func (s MetricSnapshot) Value(field MetricField) (float64, bool) {
	switch field {
	case FieldResponseTime:
		return s.ResponseTimeMs, true
	case FieldErrorRate:
		return s.ErrorRatePct, true
	case FieldAvailability:
		return s.AvailabilityPct, true
	case FieldHealthScore:
		return s.HealthScore, true
	case FieldRequestCount:
		return float64(s.RequestCount), true
	default:
		return 0, false
	}
}
