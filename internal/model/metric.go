package model

// MetricReason explains why a day-count metric may be null.
type MetricReason string

const (
	// MetricOK means both dates were present and parseable.
	MetricOK MetricReason = "ok"
	// MetricMissingDate means one or both inputs were absent.
	MetricMissingDate MetricReason = "missing-date"
	// MetricParseError means an input was present but not a recognizable date.
	MetricParseError MetricReason = "parse-error"
)

// Metric is a computed elapsed-day count between two timestamps. Days is
// non-nil exactly when Reason is MetricOK. Negative counts (end before start)
// are preserved, not clamped.
type Metric struct {
	Days   *int         `json:"days"`
	Reason MetricReason `json:"reason"`
}

// DaysMetric builds a resolved metric.
func DaysMetric(days int) Metric {
	return Metric{Days: &days, Reason: MetricOK}
}

// NullMetric builds an unresolved metric carrying the given reason.
func NullMetric(reason MetricReason) Metric {
	return Metric{Reason: reason}
}

// Resolved reports whether the metric carries a day count.
func (m Metric) Resolved() bool {
	return m.Days != nil && m.Reason == MetricOK
}
