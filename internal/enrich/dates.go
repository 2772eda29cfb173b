// Package enrich implements the contract reconciliation and enrichment
// pipeline: it pulls raw nested contract query results from Salesforce and
// produces one flat, derived record per contract with computed financial
// totals and time-interval metrics.
package enrich

import (
	"math"
	"regexp"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-report/internal/model"
)

// compactOffset matches a trailing +HHMM/-HHMM timezone offset, which
// Salesforce emits but RFC 3339 parsing rejects.
var compactOffset = regexp.MustCompile(`([+-]\d{2})(\d{2})$`)

// ParseTime parses a Salesforce timestamp, normalizing a compact offset to
// the +HH:MM form first, then falling back to a bare calendar date at UTC
// midnight. Returns false when the value is not recognizable as either.
func ParseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	fixed := compactOffset.ReplaceAllString(raw, "$1:$2")
	if t, err := time.Parse(time.RFC3339, fixed); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// DayDiff computes the elapsed-day count between two raw date strings.
// Absent input yields a missing-date metric, an unparseable one a parse-error
// metric. Any partial day counts as a full day elapsed (ceiling), and
// negative counts are preserved.
func DayDiff(startRaw, endRaw string) model.Metric {
	if startRaw == "" || endRaw == "" {
		return model.NullMetric(model.MetricMissingDate)
	}
	start, okStart := ParseTime(startRaw)
	end, okEnd := ParseTime(endRaw)
	if !okStart || !okEnd {
		return model.NullMetric(model.MetricParseError)
	}
	const msPerDay = 24 * 60 * 60 * 1000
	days := int(math.Ceil(float64(end.Sub(start).Milliseconds()) / msPerDay))
	return model.DaysMetric(days)
}

// DateRange is a half-open [Start, End) range of calendar dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ErrInvalidRange marks filter parameters that cannot be resolved into a
// calendar range. Callers use it to reject bad input before any query runs.
var ErrInvalidRange = eris.New("enrich: invalid date range")

// ComputeRange resolves filter parameters into a date range: an explicit
// "YYYY-MM" month wins, then an explicit start+end pair, otherwise the month
// preceding now. Explicit dates must be "YYYY-MM-DD"; the values end up
// inside SOQL date literals, so anything else is rejected.
func ComputeRange(month, start, end string, now time.Time) (DateRange, error) {
	if month != "" {
		first, err := time.ParseInLocation("2006-01", month, time.UTC)
		if err != nil {
			return DateRange{}, eris.Wrapf(ErrInvalidRange, "month %q", month)
		}
		return DateRange{
			Start: first.Format("2006-01-02"),
			End:   first.AddDate(0, 1, 0).Format("2006-01-02"),
		}, nil
	}
	if start != "" && end != "" {
		for _, d := range []string{start, end} {
			if _, err := time.ParseInLocation("2006-01-02", d, time.UTC); err != nil {
				return DateRange{}, eris.Wrapf(ErrInvalidRange, "date %q", d)
			}
		}
		return DateRange{Start: start, End: end}, nil
	}
	cur := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	return DateRange{
		Start: cur.AddDate(0, -1, 0).Format("2006-01-02"),
		End:   cur.Format("2006-01-02"),
	}, nil
}
