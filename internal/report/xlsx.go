// Package report renders enriched contract data as Excel workbooks for the
// sales team's offline review.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crm-report/internal/model"
)

var contractHeaders = []string{
	"계약 ID", "계약명", "계약상태", "계약시작일", "계약종료일",
	"거래처", "지점", "업종(대)", "업종(소)", "사업자유형",
	"영업담당자", "담당부서", "영업단계", "유입경로",
	"태블릿 수", "상품합계", "프로모션합계", "구매금액", "부가세", "합계(VAT포함)",
	"리드타임(일)", "최초계약완료일", "직전단계경과(일)",
	"리드 ID", "리드회사", "UTM 소스", "리드→기회(일)", "리드미확인사유",
}

// WriteContracts renders one enriched contract per row into w.
func WriteContracts(w io.Writer, records []model.ContractRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("계약")
	if err != nil {
		return eris.Wrap(err, "report: add contracts sheet")
	}

	header := sheet.AddRow()
	for _, h := range contractHeaders {
		header.AddCell().SetString(h)
	}

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.ID)
		row.AddCell().SetString(rec.Name)
		row.AddCell().SetString(rec.ContractStatus)
		row.AddCell().SetString(rec.ContractDateStart)
		row.AddCell().SetString(rec.ContractDateEnd)
		row.AddCell().SetString(rec.AccountName)
		row.AddCell().SetString(rec.AccountBranch)
		row.AddCell().SetString(rec.IndustryFirst)
		row.AddCell().SetString(rec.IndustrySecond)
		row.AddCell().SetString(rec.TypeOfBusiness)
		row.AddCell().SetString(rec.Opportunity.OwnerName)
		row.AddCell().SetString(rec.Opportunity.OwnerDepartment)
		row.AddCell().SetString(rec.Opportunity.StageName)
		row.AddCell().SetString(rec.Opportunity.LeadSource)
		row.AddCell().SetFloat(rec.TotalTablets)
		row.AddCell().SetFloat(rec.ProductsTotal)
		row.AddCell().SetFloat(rec.PromotionsTotal)
		row.AddCell().SetFloat(rec.PurchaseAmount)
		row.AddCell().SetFloat(rec.VAT)
		row.AddCell().SetFloat(rec.TotalWithVAT)
		row.AddCell().SetString(metricCell(rec.LeadTime))
		row.AddCell().SetString(rec.FirstWonAt)
		row.AddCell().SetString(metricCell(rec.PrevToFirstClose))
		if rec.Lead != nil {
			row.AddCell().SetString(rec.Lead.ID)
			row.AddCell().SetString(rec.Lead.Company)
			row.AddCell().SetString(rec.Lead.UTMSource)
		} else {
			row.AddCell().SetString("")
			row.AddCell().SetString("")
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(metricCell(rec.LeadToOpportunity))
		row.AddCell().SetString(string(rec.LeadReason))
	}

	return eris.Wrap(f.Write(w), "report: write workbook")
}

// SaveContracts writes the contract workbook to path. A ".xlsx" extension is
// appended when absent.
func SaveContracts(path string, records []model.ContractRecord) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := WriteContracts(f, records); err != nil {
		return "", err
	}
	return path, nil
}

var metricsHeaders = []string{"월", "리드", "기회", "계약", "태블릿", "할인합계"}

// WriteMonthlyMetrics renders the monthly funnel volumes into w.
func WriteMonthlyMetrics(w io.Writer, metrics []model.MonthlyMetric) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("월별 퍼널")
	if err != nil {
		return eris.Wrap(err, "report: add metrics sheet")
	}

	header := sheet.AddRow()
	for _, h := range metricsHeaders {
		header.AddCell().SetString(h)
	}

	for _, m := range metrics {
		row := sheet.AddRow()
		row.AddCell().SetString(m.Month)
		row.AddCell().SetInt(m.Leads)
		row.AddCell().SetInt(m.Opportunities)
		row.AddCell().SetInt(m.Contracts)
		row.AddCell().SetFloat(m.Tablets)
		row.AddCell().SetFloat(m.Discount)
	}

	return eris.Wrap(f.Write(w), "report: write workbook")
}

// metricCell renders a day metric as its count, or the reason when
// unresolved.
func metricCell(m model.Metric) string {
	if m.Resolved() {
		return fmt.Sprintf("%d", *m.Days)
	}
	return string(m.Reason)
}
