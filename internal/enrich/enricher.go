package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/crm-report/internal/model"
	"github.com/sells-group/crm-report/pkg/salesforce"
)

// Filter carries the caller's enrichment parameters. Month ("YYYY-MM") wins
// over Start/End; OwnerDept narrows to one sales department.
type Filter struct {
	Month     string `json:"month,omitempty"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	OwnerDept string `json:"ownerDept,omitempty"`
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithBasePrice overrides the fixed per-unit base price.
func WithBasePrice(p float64) Option {
	return func(e *Enricher) {
		if p > 0 {
			e.basePrice = p
		}
	}
}

// WithChunkSize overrides the batch lookup chunk size. Values above the API
// ceiling are rejected.
func WithChunkSize(n int) Option {
	return func(e *Enricher) {
		if n > 0 && n <= DefaultChunkSize {
			e.chunkSize = n
		}
	}
}

// WithStageTable replaces the stage label table.
func WithStageTable(t *StageTable) Option {
	return func(e *Enricher) {
		if t != nil {
			e.stages = t
		}
	}
}

// WithClock replaces the time source used for default date ranges.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) {
		if now != nil {
			e.now = now
		}
	}
}

// Enricher runs the contract reconciliation pipeline. One run is sequential:
// primary query, history batch, lead batches, each suspending until the
// remote responds. Runs share no mutable state.
type Enricher struct {
	sf        *salesforce.Client
	basePrice float64
	chunkSize int
	stages    *StageTable
	now       func() time.Time
}

// New creates an Enricher over the given query client.
func New(sf *salesforce.Client, opts ...Option) *Enricher {
	e := &Enricher{
		sf:        sf,
		basePrice: DefaultBasePrice,
		chunkSize: DefaultChunkSize,
		stages:    DefaultStageTable(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnrichContracts fetches the contracts in range, reconciles each one's stage
// history, and resolves lead attribution. Output order follows the primary
// query's returned order. Any remote failure aborts the whole run; there is
// no partial result and no retry.
func (e *Enricher) EnrichContracts(ctx context.Context, f Filter) ([]model.ContractRecord, error) {
	rng, err := ComputeRange(f.Month, f.Start, f.End, e.now())
	if err != nil {
		return nil, err
	}

	raws, err := salesforce.QueryAll[rawContract](ctx, e.sf, buildContractSOQL(rng, f.OwnerDept))
	if err != nil {
		return nil, err
	}
	zap.L().Debug("contracts fetched",
		zap.String("start", rng.Start),
		zap.String("end", rng.End),
		zap.Int("count", len(raws)),
	)

	records := make([]model.ContractRecord, len(raws))
	for i := range raws {
		records[i] = normalizeContract(raws[i], e.basePrice)
	}

	if err := e.reconcileHistories(ctx, records); err != nil {
		return nil, err
	}
	if err := e.resolveLeads(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// reconcileHistories batch-fetches stage history for every opportunity and
// annotates each contract with its first-won transition.
func (e *Enricher) reconcileHistories(ctx context.Context, records []model.ContractRecord) error {
	var oppIDs []string
	for _, r := range records {
		if r.Opportunity.ID != "" {
			oppIDs = append(oppIDs, r.Opportunity.ID)
		}
	}

	histories, err := batchQuery[rawStageHistory](ctx, e.sf, oppIDs, e.chunkSize, buildHistorySOQL)
	if err != nil {
		return err
	}
	byOpp := groupBy(histories, func(h rawStageHistory) string { return h.OpportunityID })

	for i := range records {
		rec := reconcileClose(byOpp[records[i].Opportunity.ID], e.stages)
		records[i].FirstWonAt = rec.FirstWonAt
		records[i].BeforeFirstWonAt = rec.BeforeFirstWonAt
		records[i].PrevToFirstClose = rec.PrevToFirstClose
	}
	return nil
}

// resolveLeads looks leads up by their primary converted-lead id, then runs
// the opportunity-based fallback lookup for contracts the primary path
// missed, and attributes the result onto each contract.
func (e *Enricher) resolveLeads(ctx context.Context, records []model.ContractRecord) error {
	seen := make(map[string]bool)
	var leadIDs []string
	for _, r := range records {
		if id := r.Opportunity.ConvertedLeadID; id != "" && !seen[id] {
			seen[id] = true
			leadIDs = append(leadIDs, id)
		}
	}

	leads, err := batchQuery[rawLead](ctx, e.sf, leadIDs, e.chunkSize, buildLeadByIDSOQL)
	if err != nil {
		return err
	}
	byLeadID := indexBy(leads, func(l rawLead) string { return l.ID })

	// Fallback only for contracts whose primary reference is absent or
	// unresolved; opportunities already resolved are not queried again.
	var fallbackOppIDs []string
	for _, r := range records {
		if id := r.Opportunity.ConvertedLeadID; id != "" {
			if _, ok := byLeadID[id]; ok {
				continue
			}
		}
		if r.Opportunity.ID != "" {
			fallbackOppIDs = append(fallbackOppIDs, r.Opportunity.ID)
		}
	}

	fallback, err := batchQuery[rawLead](ctx, e.sf, fallbackOppIDs, e.chunkSize, buildLeadByOppSOQL)
	if err != nil {
		return err
	}
	byOppID := indexBy(fallback, func(l rawLead) string { return l.ConvertedOpportunityID })

	for i := range records {
		attributeLead(&records[i], byLeadID, byOppID)
	}
	return nil
}
