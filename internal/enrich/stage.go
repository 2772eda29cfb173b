package enrich

import (
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crm-report/internal/model"
)

// StageTag is the canonical name of a pipeline stage class.
type StageTag string

const (
	// StageWon is the terminal success state of an opportunity.
	StageWon StageTag = "won"
	// StageInstall marks the install/rollout stage.
	StageInstall StageTag = "install"
)

// StageTable maps normalized stage labels to canonical tags. Label variants
// are configuration data, not control flow: new spellings are added to the
// table, never special-cased.
type StageTable struct {
	byLabel map[string]StageTag
}

// normalizeStageLabel lowercases a label and strips all whitespace, so that
// "Closed Won", "closedwon" and "계약 완료" vs "계약완료" compare equal.
func normalizeStageLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// defaultStageLabels holds the label variants observed in the org.
var defaultStageLabels = map[StageTag][]string{
	StageWon:     {"Closed Won", "계약완료", "계약 완료"},
	StageInstall: {"Install", "설치완료", "설치 완료"},
}

// DefaultStageTable builds the table from the built-in label variants.
func DefaultStageTable() *StageTable {
	t := &StageTable{byLabel: make(map[string]StageTag)}
	for tag, labels := range defaultStageLabels {
		for _, label := range labels {
			t.Add(tag, label)
		}
	}
	return t
}

// Add registers one label variant for a tag.
func (t *StageTable) Add(tag StageTag, label string) {
	t.byLabel[normalizeStageLabel(label)] = tag
}

// Tag looks up the canonical tag for a raw stage label.
func (t *StageTable) Tag(label string) (StageTag, bool) {
	tag, ok := t.byLabel[normalizeStageLabel(label)]
	return tag, ok
}

// IsWon reports whether a raw stage label is a "won" variant.
func (t *StageTable) IsWon(label string) bool {
	tag, ok := t.Tag(label)
	return ok && tag == StageWon
}

// LoadStageTable reads additional label variants from a YAML file keyed by
// canonical tag and merges them over the defaults. An empty path returns the
// defaults unchanged.
func LoadStageTable(path string) (*StageTable, error) {
	t := DefaultStageTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read stage labels %s", path)
	}
	var extra map[StageTag][]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, eris.Wrapf(err, "enrich: parse stage labels %s", path)
	}
	for tag, labels := range extra {
		for _, label := range labels {
			t.Add(tag, label)
		}
	}
	return t, nil
}

// CloseReconciliation locates an opportunity's first transition into a "won"
// stage and the event immediately preceding it.
type CloseReconciliation struct {
	FirstWonAt       string
	BeforeFirstWonAt string
	PrevToFirstClose model.Metric
}

// reconcileClose sorts one opportunity's history events ascending by creation
// time and scans for the first "won" transition. An opportunity can revisit
// the won stage or pass through many intermediate stages; only the first
// transition matters for lead-time reporting, and the step immediately before
// it is the "last mile".
func reconcileClose(events []rawStageHistory, stages *StageTable) CloseReconciliation {
	sorted := make([]rawStageHistory, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, _ := ParseTime(sorted[i].CreatedDate)
		tj, _ := ParseTime(sorted[j].CreatedDate)
		return ti.Before(tj)
	})

	idx := -1
	for i, ev := range sorted {
		if stages.IsWon(ev.StageName) {
			idx = i
			break
		}
	}

	out := CloseReconciliation{}
	if idx >= 0 {
		out.FirstWonAt = sorted[idx].CreatedDate
	}
	if idx > 0 {
		out.BeforeFirstWonAt = sorted[idx-1].CreatedDate
	}
	out.PrevToFirstClose = DayDiff(out.BeforeFirstWonAt, out.FirstWonAt)
	return out
}
