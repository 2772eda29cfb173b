// Package leadstats aggregates raw lead rows into the owner-level tables the
// sales dashboard renders: a daily creation matrix and a fixed-status count
// breakdown with conversion rates.
package leadstats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sells-group/crm-report/internal/enrich"
	"github.com/sells-group/crm-report/pkg/salesforce"
)

// DefaultOwnerDept is the department the dashboard shows when the caller
// passes none.
const DefaultOwnerDept = "아웃바운드세일즈"

// FixedStatuses are the lead status columns the dashboard renders, in display
// order. Statuses outside this list are skipped.
var FixedStatuses = []string{
	"배정대기",
	"담당자 배정",
	"부재중",
	"리터치예정",
	"고민중",
	"장기부재",
	"종료",
	"Qualified",
}

// qualifiedStatus is the status the conversion rate is computed against.
const qualifiedStatus = "Qualified"

// kst is the display timezone for daily bucketing.
var kst = time.FixedZone("KST", 9*60*60)

// Filter carries the caller's aggregation parameters. OwnerDept accepts a
// comma-separated department list; IsConverted narrows to converted or
// unconverted leads when set.
type Filter struct {
	Month       string
	Start       string
	End         string
	OwnerDept   string
	IsConverted *bool
}

func (f Filter) dept() string {
	if strings.TrimSpace(f.OwnerDept) == "" {
		return DefaultOwnerDept
	}
	return f.OwnerDept
}

// DailyOwner is one owner's row in the daily matrix.
type DailyOwner struct {
	OwnerID   string         `json:"ownerId"`
	OwnerName string         `json:"ownerName"`
	Daily     map[string]int `json:"daily"`
	Total     int            `json:"total"`
}

// DailyFooter is the per-day grand total row.
type DailyFooter struct {
	Total int            `json:"total"`
	Daily map[string]int `json:"daily"`
}

// DailyReport is the daily-by-owner aggregation result.
type DailyReport struct {
	Range     enrich.DateRange `json:"range"`
	OwnerDept string           `json:"ownerDept"`
	DateKeys  []string         `json:"dateKeys"`
	Owners    []DailyOwner     `json:"owners"`
	Footer    DailyFooter      `json:"footer"`
}

// StatusRow is one owner's row in the status breakdown.
type StatusRow struct {
	OwnerID        string         `json:"ownerId"`
	OwnerName      string         `json:"ownerName"`
	Counts         map[string]int `json:"counts"`
	Total          int            `json:"total"`
	ConversionRate string         `json:"conversionRate"`
}

// StatusFooter is the grand-total row of the status breakdown.
type StatusFooter struct {
	OwnerName      string         `json:"ownerName"`
	Counts         map[string]int `json:"counts"`
	Total          int            `json:"total"`
	ConversionRate string         `json:"conversionRate"`
}

// CountReport is the count-by-owner aggregation result.
type CountReport struct {
	Range         enrich.DateRange `json:"range"`
	OwnerDept     string           `json:"ownerDept"`
	FixedStatuses []string         `json:"fixedStatuses"`
	TotalCount    int              `json:"totalCount"`
	Rows          []StatusRow      `json:"rows"`
	Footer        StatusFooter     `json:"footer"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source used for default date ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service runs lead aggregation queries.
type Service struct {
	sf  *salesforce.Client
	now func() time.Time
}

// New creates a Service over the given query client.
func New(sf *salesforce.Client, opts ...Option) *Service {
	s := &Service{sf: sf, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type rawLeadRow struct {
	ID          string   `json:"Id"`
	OwnerID     string   `json:"OwnerId"`
	Owner       *rawName `json:"Owner"`
	Status      string   `json:"Status"`
	CreatedDate string   `json:"CreatedDate"`
}

type rawName struct {
	Name string `json:"Name"`
}

func buildLeadSOQL(rng enrich.DateRange, f Filter) string {
	depts := strings.Split(f.dept(), ",")
	quoted := make([]string, 0, len(depts))
	for _, d := range depts {
		if d = strings.TrimSpace(d); d != "" {
			quoted = append(quoted, "'"+salesforce.EscapeSOQL(d)+"'")
		}
	}

	where := []string{
		"IsDeleted = FALSE",
		fmt.Sprintf("CreatedDate >= %sT00:00:00Z", rng.Start),
		fmt.Sprintf("CreatedDate < %sT00:00:00Z", rng.End),
		fmt.Sprintf("OwnerId IN (SELECT Id FROM User WHERE Department IN (%s))", strings.Join(quoted, ",")),
	}
	if f.IsConverted != nil {
		where = append(where, fmt.Sprintf("IsConverted = %t", *f.IsConverted))
	}
	return fmt.Sprintf(
		"SELECT Id, OwnerId, Owner.Name, Status, CreatedDate FROM Lead WHERE %s ORDER BY Owner.Name ASC, CreatedDate ASC",
		strings.Join(where, " AND "),
	)
}

func (s *Service) fetchLeads(ctx context.Context, f Filter) (enrich.DateRange, []rawLeadRow, error) {
	rng, err := enrich.ComputeRange(f.Month, f.Start, f.End, s.now())
	if err != nil {
		return enrich.DateRange{}, nil, err
	}
	rows, err := salesforce.QueryAll[rawLeadRow](ctx, s.sf, buildLeadSOQL(rng, f))
	if err != nil {
		return enrich.DateRange{}, nil, err
	}
	zap.L().Debug("leads fetched",
		zap.String("start", rng.Start),
		zap.String("end", rng.End),
		zap.Int("count", len(rows)),
	)
	return rng, rows, nil
}

// dateKeys enumerates every calendar date in [start, end).
func dateKeys(rng enrich.DateRange) []string {
	start, err := time.ParseInLocation("2006-01-02", rng.Start, time.UTC)
	if err != nil {
		return nil
	}
	end, err := time.ParseInLocation("2006-01-02", rng.End, time.UTC)
	if err != nil {
		return nil
	}
	var keys []string
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		keys = append(keys, d.Format("2006-01-02"))
	}
	return keys
}

// kstDateKey converts a creation timestamp into its KST calendar date.
func kstDateKey(raw string) (string, bool) {
	t, ok := enrich.ParseTime(raw)
	if !ok {
		return "", false
	}
	return t.In(kst).Format("2006-01-02"), true
}

func ownerName(r rawLeadRow) string {
	if r.Owner != nil && r.Owner.Name != "" {
		return r.Owner.Name
	}
	return "미지정"
}

func ownerID(r rawLeadRow) string {
	if r.OwnerID == "" {
		return "UNKNOWN"
	}
	return r.OwnerID
}

// sortOwners orders rows by owner name under Korean collation, then by id.
func sortOwners[T any](rows []T, name func(T) string, id func(T) string) {
	coll := collate.New(language.Korean)
	sort.SliceStable(rows, func(i, j int) bool {
		if c := coll.CompareString(name(rows[i]), name(rows[j])); c != 0 {
			return c < 0
		}
		return id(rows[i]) < id(rows[j])
	})
}

// DailyByOwner buckets lead creations per owner per KST calendar date, with
// every date in range present even when zero.
func (s *Service) DailyByOwner(ctx context.Context, f Filter) (*DailyReport, error) {
	rng, rows, err := s.fetchLeads(ctx, f)
	if err != nil {
		return nil, err
	}

	keys := dateKeys(rng)
	byOwner := make(map[string]*DailyOwner)
	footer := DailyFooter{Daily: make(map[string]int, len(keys))}
	for _, k := range keys {
		footer.Daily[k] = 0
	}

	for _, r := range rows {
		key, ok := kstDateKey(r.CreatedDate)
		if !ok {
			continue
		}
		id := ownerID(r)
		owner, seen := byOwner[id]
		if !seen {
			owner = &DailyOwner{OwnerID: id, OwnerName: ownerName(r), Daily: make(map[string]int, len(keys))}
			for _, k := range keys {
				owner.Daily[k] = 0
			}
			byOwner[id] = owner
		}
		if _, in := owner.Daily[key]; in {
			owner.Daily[key]++
			footer.Daily[key]++
		}
		owner.Total++
		footer.Total++
	}

	owners := make([]DailyOwner, 0, len(byOwner))
	for _, o := range byOwner {
		owners = append(owners, *o)
	}
	sortOwners(owners, func(o DailyOwner) string { return o.OwnerName }, func(o DailyOwner) string { return o.OwnerID })

	return &DailyReport{
		Range:     rng,
		OwnerDept: f.dept(),
		DateKeys:  keys,
		Owners:    owners,
		Footer:    footer,
	}, nil
}

// normalizeStatus strips all whitespace and lowercases, so "리터치 예정" and
// "리터치예정" count into the same column.
func normalizeStatus(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func rate(qualified, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(qualified)/float64(total)*100)
}

// CountByOwner counts leads per owner across the fixed status columns and
// derives each owner's qualified conversion rate.
func (s *Service) CountByOwner(ctx context.Context, f Filter) (*CountReport, error) {
	rng, rows, err := s.fetchLeads(ctx, f)
	if err != nil {
		return nil, err
	}

	labelByNorm := make(map[string]string, len(FixedStatuses))
	for _, label := range FixedStatuses {
		labelByNorm[normalizeStatus(label)] = label
	}

	byOwner := make(map[string]*StatusRow)
	footer := StatusFooter{OwnerName: "총 합계", Counts: make(map[string]int, len(FixedStatuses))}
	for _, label := range FixedStatuses {
		footer.Counts[label] = 0
	}

	for _, r := range rows {
		label, ok := labelByNorm[normalizeStatus(r.Status)]
		if !ok {
			continue
		}
		id := ownerID(r)
		row, seen := byOwner[id]
		if !seen {
			row = &StatusRow{OwnerID: id, OwnerName: ownerName(r), Counts: make(map[string]int, len(FixedStatuses))}
			for _, l := range FixedStatuses {
				row.Counts[l] = 0
			}
			byOwner[id] = row
		}
		row.Counts[label]++
		row.Total++
		footer.Counts[label]++
		footer.Total++
	}

	out := make([]StatusRow, 0, len(byOwner))
	for _, row := range byOwner {
		row.ConversionRate = rate(row.Counts[qualifiedStatus], row.Total)
		out = append(out, *row)
	}
	sortOwners(out, func(r StatusRow) string { return r.OwnerName }, func(r StatusRow) string { return r.OwnerID })
	footer.ConversionRate = rate(footer.Counts[qualifiedStatus], footer.Total)

	return &CountReport{
		Range:         rng,
		OwnerDept:     f.dept(),
		FixedStatuses: FixedStatuses,
		TotalCount:    footer.Total,
		Rows:          out,
		Footer:        footer,
	}, nil
}
