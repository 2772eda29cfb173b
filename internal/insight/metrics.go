// Package insight aggregates the monthly sales funnel and turns it into a
// structured narrative report via the Anthropic API.
package insight

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-report/internal/enrich"
	"github.com/sells-group/crm-report/internal/model"
	"github.com/sells-group/crm-report/pkg/salesforce"
)

var monthKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// monthKey extracts the "YYYY-MM" bucket from a date or timestamp string.
func monthKey(value string) (string, bool) {
	if len(value) < 7 {
		return "", false
	}
	key := value[:7]
	return key, monthKeyPattern.MatchString(key)
}

// RecentMonths lists the count most recent month keys ending at now's month,
// oldest first.
func RecentMonths(now time.Time, count int) []string {
	if count <= 0 {
		return nil
	}
	base := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]string, 0, count)
	for offset := count - 1; offset >= 0; offset-- {
		out = append(out, base.AddDate(0, -offset, 0).Format("2006-01"))
	}
	return out
}

func monthBounds(key string) (time.Time, time.Time, bool) {
	start, err := time.ParseInLocation("2006-01", key, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, start.AddDate(0, 1, 0), true
}

// deptInClause renders a comma-separated department list as quoted SOQL
// literals. Empty input yields no filter.
func deptInClause(ownerDept string) (string, bool) {
	parts := strings.Split(ownerDept, ",")
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			quoted = append(quoted, "'"+salesforce.EscapeSOQL(p)+"'")
		}
	}
	if len(quoted) == 0 {
		return "", false
	}
	return strings.Join(quoted, ","), true
}

type rawCreated struct {
	ID          string `json:"Id"`
	CreatedDate string `json:"CreatedDate"`
}

type rawFunnelContract struct {
	ID                string `json:"Id"`
	ContractDateStart string `json:"ContractDateStart__c"`
	Opportunity       *struct {
		TotalTablets float64 `json:"TotalNumberofEveryTablet__c"`
	} `json:"Opportunity__r"`
	Products *salesforce.RelatedList[struct {
		Quantity   *float64 `json:"Quantity__c"`
		TotalPrice *float64 `json:"TotalPrice__c"`
	}] `json:"ContractProductQuoteContract__r"`
	Promotions *salesforce.RelatedList[struct {
		TotalAmount *float64 `json:"TotalAmount__c"`
	}] `json:"ContractProductPromotionContract__r"`
}

func buildCreatedSOQL(object string, start, end time.Time, deptList string) string {
	where := []string{
		"IsDeleted = false",
		fmt.Sprintf("CreatedDate >= %s", start.Format("2006-01-02T15:04:05Z")),
		fmt.Sprintf("CreatedDate < %s", end.Format("2006-01-02T15:04:05Z")),
	}
	if deptList != "" {
		where = append(where, fmt.Sprintf("OwnerId IN (SELECT Id FROM User WHERE Department IN (%s))", deptList))
	}
	return fmt.Sprintf("SELECT Id, CreatedDate FROM %s WHERE %s", object, strings.Join(where, " AND "))
}

func buildFunnelContractSOQL(start, end time.Time, deptList string) string {
	where := []string{
		"ContractDateStart__c != NULL",
		fmt.Sprintf("ContractDateStart__c >= %s", start.Format("2006-01-02")),
		fmt.Sprintf("ContractDateStart__c < %s", end.Format("2006-01-02")),
		"(ContractStatus__c = '계약서명완료' OR ContractStatus__c = '계약서명대기')",
	}
	if deptList != "" {
		where = append(where, fmt.Sprintf("Opportunity__r.Owner_Department__c IN (%s)", deptList))
	}
	return fmt.Sprintf(
		"SELECT Id, ContractDateStart__c, Opportunity__r.TotalNumberofEveryTablet__c,"+
			" (SELECT Quantity__c, TotalPrice__c FROM ContractProductQuoteContract__r),"+
			" (SELECT TotalAmount__c FROM ContractProductPromotionContract__r)"+
			" FROM Contract__c WHERE %s",
		strings.Join(where, " AND "),
	)
}

// contractDiscount sums a contract's negative-product discounts and native
// promotion amounts.
func contractDiscount(row rawFunnelContract) float64 {
	var sum float64
	if row.Products != nil {
		for _, p := range row.Products.Records {
			price := 0.0
			if p.TotalPrice != nil {
				price = *p.TotalPrice
			}
			if price >= 0 {
				continue
			}
			qty := 1.0
			if p.Quantity != nil && *p.Quantity > 0 {
				qty = *p.Quantity
			}
			sum += -price * qty
		}
	}
	if row.Promotions != nil {
		for _, pr := range row.Promotions.Records {
			if pr.TotalAmount != nil {
				sum += *pr.TotalAmount
			}
		}
	}
	return sum
}

// ResolveMonthlyMetrics counts leads, opportunities and closed contracts per
// month, with tablet volume and discount totals. The three object queries run
// concurrently; rows outside the requested months are dropped. Empty months
// default to the three most recent.
func (s *Service) ResolveMonthlyMetrics(ctx context.Context, months []string, ownerDept string) ([]model.MonthlyMetric, error) {
	if len(months) == 0 {
		months = RecentMonths(s.now(), 3)
	}
	start, _, ok := monthBounds(months[0])
	if !ok {
		return nil, eris.Wrapf(enrich.ErrInvalidRange, "insight: invalid month %q", months[0])
	}
	_, end, ok := monthBounds(months[len(months)-1])
	if !ok {
		return nil, eris.Wrapf(enrich.ErrInvalidRange, "insight: invalid month %q", months[len(months)-1])
	}

	deptList, _ := deptInClause(ownerDept)

	var leads, opps []rawCreated
	var contracts []rawFunnelContract

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := salesforce.QueryAll[rawCreated](gctx, s.sf, buildCreatedSOQL("Lead", start, end, deptList))
		leads = rows
		return err
	})
	g.Go(func() error {
		rows, err := salesforce.QueryAll[rawCreated](gctx, s.sf, buildCreatedSOQL("Opportunity", start, end, deptList))
		opps = rows
		return err
	})
	g.Go(func() error {
		rows, err := salesforce.QueryAll[rawFunnelContract](gctx, s.sf, buildFunnelContractSOQL(start, end, deptList))
		contracts = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := make(map[string]*model.MonthlyMetric, len(months))
	for _, m := range months {
		stats[m] = &model.MonthlyMetric{Month: m}
	}

	for _, row := range leads {
		if key, ok := monthKey(row.CreatedDate); ok {
			if entry, in := stats[key]; in {
				entry.Leads++
			}
		}
	}
	for _, row := range opps {
		if key, ok := monthKey(row.CreatedDate); ok {
			if entry, in := stats[key]; in {
				entry.Opportunities++
			}
		}
	}
	for _, row := range contracts {
		key, ok := monthKey(row.ContractDateStart)
		if !ok {
			continue
		}
		entry, in := stats[key]
		if !in {
			continue
		}
		entry.Contracts++
		if row.Opportunity != nil {
			entry.Tablets += row.Opportunity.TotalTablets
		}
		entry.Discount += contractDiscount(row)
	}

	out := make([]model.MonthlyMetric, 0, len(months))
	for _, m := range months {
		out = append(out, *stats[m])
	}
	zap.L().Debug("monthly metrics resolved",
		zap.Strings("months", months),
		zap.Int("leads", len(leads)),
		zap.Int("opportunities", len(opps)),
		zap.Int("contracts", len(contracts)),
	)
	return out, nil
}
