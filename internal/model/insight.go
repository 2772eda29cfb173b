package model

import "time"

// MonthlyMetric is one month of funnel volume, keyed by "YYYY-MM".
type MonthlyMetric struct {
	Month         string  `json:"month"`
	Leads         int     `json:"leads"`
	Opportunities int     `json:"opportunities"`
	Contracts     int     `json:"contracts"`
	Tablets       float64 `json:"tablets"`
	Discount      float64 `json:"discount"`
}

// FunnelSummary holds the derived conversion rates and gap counts fed to the
// narrative generator alongside the raw monthly data.
type FunnelSummary struct {
	TargetTablets                 int     `json:"targetTablets"`
	ContractsNeeded               int     `json:"contractsNeeded"`
	TabletsPerContractRange       string  `json:"tabletsPerContractRange"`
	LeadToOppRate                 float64 `json:"leadToOppRate"`
	OppToContractRate             float64 `json:"oppToContractRate"`
	OpportunitiesNeeded           int     `json:"opportunitiesNeeded"`
	LeadsNeeded                   int     `json:"leadsNeeded"`
	CurrentLeads                  int     `json:"currentLeads"`
	CurrentOpportunities          int     `json:"currentOpportunities"`
	AdditionalLeadsNeeded         int     `json:"additionalLeadsNeeded"`
	AdditionalOpportunitiesNeeded int     `json:"additionalOpportunitiesNeeded"`
}

// MonthlyNarrative is the generator's commentary for a single month.
type MonthlyNarrative struct {
	Month      string            `json:"month"`
	Summary    string            `json:"summary"`
	KeyMetrics map[string]string `json:"keyMetrics"`
}

// MonthOutlook projects what the current month needs to hit the tablet target.
type MonthOutlook struct {
	ContractsNeeded               int    `json:"contractsNeeded"`
	AdditionalLeadsNeeded         int    `json:"additionalLeadsNeeded"`
	AdditionalOpportunitiesNeeded int    `json:"additionalOpportunitiesNeeded"`
	Commentary                    string `json:"commentary"`
}

// StrategicAction is one recommended action with supporting bullets.
type StrategicAction struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// InsightReport is the structured narrative returned by the generator.
type InsightReport struct {
	MonthlyNarratives   []MonthlyNarrative `json:"monthlyNarratives"`
	CurrentMonthOutlook MonthOutlook       `json:"currentMonthOutlook"`
	HighLevelSummary    []string           `json:"highLevelSummary"`
	StrategicActions    []StrategicAction  `json:"strategicActions"`
}

// Insight wraps a generated report with its inputs for auditability.
type Insight struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	MonthlyData []MonthlyMetric `json:"monthlyData"`
	Summary     FunnelSummary   `json:"summary"`
	Report      InsightReport   `json:"insight"`
}
