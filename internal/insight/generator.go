package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-report/internal/model"
	"github.com/sells-group/crm-report/pkg/anthropic"
	"github.com/sells-group/crm-report/pkg/salesforce"
)

// DefaultTargetTablets is the monthly tablet target used when the caller
// passes none.
const DefaultTargetTablets = 400

// DefaultModel is the generation model used when the caller passes none.
const DefaultModel = "claude-sonnet-4-5-20250929"

const maxNarrativeTokens = 1200

// Option configures a Service.
type Option func(*Service)

// WithModel overrides the generation model.
func WithModel(m string) Option {
	return func(s *Service) {
		if m != "" {
			s.model = m
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service resolves funnel metrics and generates narrative reports. The llm
// client may be nil, in which case Generate fails and ResolveMonthlyMetrics
// still works.
type Service struct {
	sf    *salesforce.Client
	llm   anthropic.Client
	model string
	now   func() time.Time
}

// New creates a Service over the given clients.
func New(sf *salesforce.Client, llm anthropic.Client, opts ...Option) *Service {
	s := &Service{sf: sf, llm: llm, model: DefaultModel, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize derives the funnel conversion rates and the volumes needed to
// reach targetTablets. Zero denominators fall back to conservative defaults
// rather than dividing by zero.
func Summarize(metrics []model.MonthlyMetric, targetTablets int) model.FunnelSummary {
	var leads, opps, contracts int
	var tablets float64
	for _, m := range metrics {
		leads += m.Leads
		opps += m.Opportunities
		contracts += m.Contracts
		tablets += m.Tablets
	}

	var leadToOpp, oppToContract, tabletsPerContract float64
	if leads > 0 {
		leadToOpp = float64(opps) / float64(leads)
	}
	if opps > 0 {
		oppToContract = float64(contracts) / float64(opps)
	}
	if contracts > 0 {
		tabletsPerContract = tablets / float64(contracts)
	}

	safeLeadToOpp := leadToOpp
	if safeLeadToOpp <= 0 {
		safeLeadToOpp = 0.01
	}
	safeOppToContract := oppToContract
	if safeOppToContract <= 0 {
		safeOppToContract = 0.5
	}
	safeTabletsPerContract := tabletsPerContract
	if safeTabletsPerContract <= 0 {
		safeTabletsPerContract = math.Max(float64(targetTablets), 1)
	}

	contractsNeeded := int(math.Ceil(float64(targetTablets) / safeTabletsPerContract))
	oppsNeeded := int(math.Ceil(float64(contractsNeeded) / safeOppToContract))
	leadsNeeded := int(math.Ceil(float64(oppsNeeded) / safeLeadToOpp))

	var latest *model.MonthlyMetric
	for i := range metrics {
		if latest == nil || metrics[i].Month > latest.Month {
			latest = &metrics[i]
		}
	}
	var currentLeads, currentOpps int
	if latest != nil {
		currentLeads = latest.Leads
		currentOpps = latest.Opportunities
	}

	return model.FunnelSummary{
		TargetTablets:                 targetTablets,
		ContractsNeeded:               contractsNeeded,
		TabletsPerContractRange:       tabletsRange(tabletsPerContract),
		LeadToOppRate:                 math.Round(leadToOpp*10000) / 100,
		OppToContractRate:             math.Round(oppToContract*10000) / 100,
		OpportunitiesNeeded:           oppsNeeded,
		LeadsNeeded:                   leadsNeeded,
		CurrentLeads:                  currentLeads,
		CurrentOpportunities:          currentOpps,
		AdditionalLeadsNeeded:         max(leadsNeeded-currentLeads, 0),
		AdditionalOpportunitiesNeeded: max(oppsNeeded-currentOpps, 0),
	}
}

// tabletsRange renders the historical tablets-per-contract average as a
// Korean display range.
func tabletsRange(avg float64) string {
	if avg <= 0 {
		return "약 1대"
	}
	lo := int(math.Max(1, math.Floor(avg)))
	hi := int(math.Ceil(avg))
	if hi < lo {
		hi = lo
	}
	if lo == hi {
		return fmt.Sprintf("약 %d대", hi)
	}
	return fmt.Sprintf("약 %d~%d대", lo, hi)
}

const systemPrompt = `당신은 SaaS 영업팀의 데이터 애널리스트입니다. ` +
	`월별 리드/기회/계약/태블릿 데이터를 분석해 목표 태블릿 달성 가능성을 평가하세요. ` +
	`JSON 응답은 지정된 스키마를 반드시 준수해야 합니다. ` +
	`currentMonthOutlook.commentary는 아래 템플릿을 Summary 값으로 치환해 작성합니다: ` +
	`"이번 달 목표 태블릿 {targetTablets}대 달성을 위해 계약 수를 {contractsNeeded}건 이상 확보해야 합니다. ` +
	`과거 평균 계약당 태블릿 수({tabletsPerContractRange})를 고려하면 최소 {contractsNeeded}건 필요하며, ` +
	`이를 위해 리드→기회 전환율 평균 {leadToOppRate}% , 기회→계약 전환율 {oppToContractRate}%를 적용하면 ` +
	`기회는 약 {opportunitiesNeeded}건, 리드는 약 {leadsNeeded}건이 요구됩니다. ` +
	`현재 리드 {currentLeads}건 대비 {additionalLeadsNeeded}건 증가가 필요하며, ` +
	`기회 수 역시 {additionalOpportunitiesNeeded}건 이상 더 만들어야 합니다." ` +
	`템플릿 외의 문장을 commentary에 추가하지 말고, Summary 객체에 제공된 숫자만 사용해 중괄호를 치환하세요. ` +
	`나머지 필드(monthlyNarratives, highLevelSummary, strategicActions)는 데이터를 근거로 한 인사이트를 간결하게 제공하세요. ` +
	`응답은 다음 키를 가진 단일 JSON 객체여야 하며 JSON 외 텍스트를 출력하지 마세요: ` +
	`monthlyNarratives(월별 배열: month, summary, keyMetrics{leadToOpportunityRate, leadToContractRate, opportunityToContractRate, tabletsPerContract}), ` +
	`currentMonthOutlook{contractsNeeded, additionalLeadsNeeded, additionalOpportunitiesNeeded, commentary}, ` +
	`highLevelSummary(문자열 배열), strategicActions(배열: title, bullets).`

// Generate resolves metrics when none are given, derives the funnel summary,
// and asks the model for the structured narrative.
func (s *Service) Generate(ctx context.Context, metrics []model.MonthlyMetric, targetTablets int, ownerDept string) (*model.Insight, error) {
	if s.llm == nil {
		return nil, eris.New("insight: anthropic client not configured")
	}
	if targetTablets <= 0 {
		targetTablets = DefaultTargetTablets
	}

	if len(metrics) == 0 {
		resolved, err := s.ResolveMonthlyMetrics(ctx, nil, ownerDept)
		if err != nil {
			return nil, err
		}
		metrics = resolved
	}
	if len(metrics) == 0 {
		return nil, eris.New("insight: monthly data unavailable")
	}

	summary := Summarize(metrics, targetTablets)

	monthlyJSON, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "insight: encode monthly data")
	}
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "insight: encode summary")
	}

	userMessage := strings.Join([]string{
		"월별 집계 데이터 JSON:",
		string(monthlyJSON),
		"Summary 값(JSON)은 commentary 템플릿을 채우기 위해 제공됩니다. 중괄호 변수는 이 값을 그대로 사용하세요.",
		string(summaryJSON),
		"작성 지침:",
		"- monthlyNarratives, highLevelSummary, strategicActions에는 월별 추이를 해석한 간결한 인사이트를 제공합니다.",
		"- currentMonthOutlook 필드에서 contractsNeeded, additionalLeadsNeeded, additionalOpportunitiesNeeded 값은 Summary 값을 그대로 사용합니다.",
		"- commentary에는 템플릿 문장 외 다른 문장을 추가하지 않습니다.",
		"- 숫자는 Summary에 없는 경우 월별 데이터를 이용해 합리적인 값으로 채웁니다.",
	}, "\n")

	resp, err := s.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: maxNarrativeTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: userMessage}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "insight: generate narrative")
	}
	resp.Usage.LogUsage(s.model, "insight")

	var report model.InsightReport
	if err := json.Unmarshal([]byte(extractJSON(resp.Text())), &report); err != nil {
		return nil, eris.Wrap(err, "insight: parse narrative response")
	}

	zap.L().Info("insight generated",
		zap.Int("months", len(metrics)),
		zap.Int("target_tablets", targetTablets),
		zap.Int("narratives", len(report.MonthlyNarratives)),
	)
	return &model.Insight{
		GeneratedAt: s.now().UTC(),
		MonthlyData: metrics,
		Summary:     summary,
		Report:      report,
	}, nil
}

// extractJSON strips a markdown code fence if the model wrapped its output in
// one, then trims to the outermost object.
func extractJSON(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t)
	}
	if start := strings.Index(t, "{"); start > 0 {
		t = t[start:]
	}
	return t
}
