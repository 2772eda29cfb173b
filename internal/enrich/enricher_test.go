package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-report/internal/model"
	"github.com/sells-group/crm-report/pkg/salesforce"
)

// fakeOrg routes query traffic on the queried object, the way the live API
// would, and records every SOQL string it sees.
type fakeOrg struct {
	t         *testing.T
	contracts []map[string]any
	histories []map[string]any
	leads     []map[string]any
	queries   []string
}

func (o *fakeOrg) client(t *testing.T) *salesforce.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		soql := r.URL.Query().Get("q")
		o.queries = append(o.queries, soql)

		var rows []map[string]any
		switch {
		case strings.Contains(soql, "FROM Contract__c"):
			rows = o.contracts
		case strings.Contains(soql, "FROM OpportunityHistory"):
			rows = o.filterIn(soql, o.histories, "OpportunityId")
		case strings.Contains(soql, "ConvertedOpportunityId IN"):
			rows = o.filterIn(soql, o.leads, "ConvertedOpportunityId")
		case strings.Contains(soql, "FROM Lead"):
			rows = o.filterIn(soql, o.leads, "Id")
		default:
			o.t.Fatalf("unexpected query: %s", soql)
		}

		records, err := json.Marshal(rows)
		require.NoError(o.t, err)
		fmt.Fprintf(w, `{"totalSize":%d,"done":true,"records":%s}`, len(rows), records)
	}))
	t.Cleanup(srv.Close)

	return salesforce.NewClient(salesforce.StaticTokenProvider{
		Tok: salesforce.Token{AccessToken: "tok", InstanceURL: srv.URL},
	})
}

// filterIn keeps rows whose field value appears quoted in the query's IN list.
func (o *fakeOrg) filterIn(soql string, rows []map[string]any, field string) []map[string]any {
	var out []map[string]any
	for _, row := range rows {
		val, _ := row[field].(string)
		if val != "" && strings.Contains(soql, "'"+val+"'") {
			out = append(out, row)
		}
	}
	return out
}

func TestEnrichContracts(t *testing.T) {
	org := &fakeOrg{
		t: t,
		contracts: []map[string]any{
			{
				"Id":                   "ctr-1",
				"Name":                 "계약-0001",
				"CreatedDate":          "2026-07-10T02:00:00.000+0900",
				"ContractDateStart__c": "2026-07-10",
				"ContractStatus__c":    "계약서명완료",
				"Opportunity__r": map[string]any{
					"Id":                  "opp-1",
					"StageName":           "Closed Won",
					"CreatedDate":         "2026-07-01T00:00:00.000Z",
					"ConvertedLeadID__c":  "00Q000000000001",
					"Owner":               map[string]any{"Name": "김영업"},
					"Owner_Department__c": "영업1팀",
					"Account":             map[string]any{"Name": "본사계정"},
				},
				"Account__r": map[string]any{"Name": "한우리식당"},
				"ContractProductQuoteContract__r": map[string]any{
					"records": []map[string]any{
						{"Id": "p1", "fm_ContractProductFamily__c": "TABLET", "Quantity__c": 2, "TotalPrice__c": 648000},
						{"Id": "p2", "fm_ContractProductFamily__c": "DC", "Quantity__c": 1, "TotalPrice__c": -48000},
					},
				},
			},
			{
				"Id":                   "ctr-2",
				"Name":                 "계약-0002",
				"CreatedDate":          "2026-07-20T02:00:00.000Z",
				"ContractDateStart__c": "2026-07-20",
				"ContractStatus__c":    "계약서명대기",
				"Opportunity__r": map[string]any{
					"Id":          "opp-2",
					"StageName":   "계약완료",
					"CreatedDate": "2026-07-05T00:00:00.000Z",
				},
			},
		},
		histories: []map[string]any{
			{"OpportunityId": "opp-1", "StageName": "Qualifying", "CreatedDate": "2026-07-02T00:00:00.000Z"},
			{"OpportunityId": "opp-1", "StageName": "Closed Won", "CreatedDate": "2026-07-08T00:00:00.000Z"},
			{"OpportunityId": "opp-1", "StageName": "Closed Won", "CreatedDate": "2026-07-09T00:00:00.000Z"},
		},
		leads: []map[string]any{
			{
				"Id":                     "00Q000000000001",
				"CreatedDate":            "2026-06-20T00:00:00.000Z",
				"Company":                "한우리식당",
				"utm__c":                 "https://lp.example.com?utm_source=naver&utm_term=pos",
				"ConvertedOpportunityId": "opp-1",
			},
			{
				"Id":                     "00Q000000000002",
				"CreatedDate":            "2026-07-01T00:00:00.000Z",
				"Company":                "카페서울",
				"ConvertedOpportunityId": "opp-2",
			},
		},
	}

	enricher := New(org.client(t))
	records, err := enricher.EnrichContracts(context.Background(), Filter{Month: "2026-07"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "ctr-1", first.ID)
	assert.Equal(t, "한우리식당", first.AccountName)
	assert.Equal(t, float64(1296000), first.ProductsTotal)
	assert.Equal(t, float64(48000), first.PromotionsFromProductsTotal)
	assert.Equal(t, float64(1248000), first.PurchaseAmount)
	assert.Equal(t, float64(124800), first.VAT)

	assert.Equal(t, "2026-07-08T00:00:00.000Z", first.FirstWonAt)
	assert.Equal(t, "2026-07-02T00:00:00.000Z", first.BeforeFirstWonAt)
	require.True(t, first.PrevToFirstClose.Resolved())
	assert.Equal(t, 6, *first.PrevToFirstClose.Days)

	require.NotNil(t, first.Lead)
	assert.Equal(t, "00Q000000000001", first.Lead.ID)
	assert.Equal(t, "naver", first.Lead.UTMSource)
	assert.Equal(t, "pos", first.Lead.UTMTerm)
	require.True(t, first.LeadToOpportunity.Resolved())
	assert.Equal(t, 11, *first.LeadToOpportunity.Days)

	second := records[1]
	assert.Equal(t, "ctr-2", second.ID)
	require.NotNil(t, second.Lead, "fallback by opportunity must resolve")
	assert.Equal(t, "00Q000000000002", second.Lead.ID)
	assert.Empty(t, second.FirstWonAt, "no history rows for this opportunity")
	assert.Equal(t, model.MetricMissingDate, second.PrevToFirstClose.Reason)

	// One contract query, one history chunk, one primary lead chunk, one
	// fallback lead chunk.
	require.Len(t, org.queries, 4)
	assert.Contains(t, org.queries[0], "ContractDateStart__c >= 2026-07-01")
	assert.Contains(t, org.queries[0], "ContractDateStart__c < 2026-08-01")
	assert.Contains(t, org.queries[0], "ContractStatus__c = '계약서명완료'")
	assert.Contains(t, org.queries[3], "IsConverted = true")
	assert.NotContains(t, org.queries[3], "'opp-1'", "resolved opportunities are excluded from fallback")
}

func TestEnrichContractsDeptFilter(t *testing.T) {
	org := &fakeOrg{t: t}
	enricher := New(org.client(t))

	_, err := enricher.EnrichContracts(context.Background(), Filter{
		Month:     "2026-07",
		OwnerDept: "영업1팀",
	})
	require.NoError(t, err)
	require.NotEmpty(t, org.queries)
	assert.Contains(t, org.queries[0], "Owner_Department__c = '영업1팀'")

	org.queries = nil
	_, err = enricher.EnrichContracts(context.Background(), Filter{Month: "2026-07", OwnerDept: "ALL"})
	require.NoError(t, err)
	assert.NotContains(t, org.queries[0], "Owner_Department__c")
}

func TestEnrichContractsDefaultRangeIsPreviousMonth(t *testing.T) {
	org := &fakeOrg{t: t}
	fixed := func() time.Time { return time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC) }
	enricher := New(org.client(t), WithClock(fixed))

	_, err := enricher.EnrichContracts(context.Background(), Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, org.queries)
	assert.Contains(t, org.queries[0], "ContractDateStart__c >= 2026-07-01")
	assert.Contains(t, org.queries[0], "ContractDateStart__c < 2026-08-01")
}

func TestEnrichContractsInvalidMonth(t *testing.T) {
	org := &fakeOrg{t: t}
	enricher := New(org.client(t))

	_, err := enricher.EnrichContracts(context.Background(), Filter{Month: "July 2026"})
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Empty(t, org.queries, "an invalid range must not reach the wire")
}
