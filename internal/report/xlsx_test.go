package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crm-report/internal/model"
)

func sampleRecords() []model.ContractRecord {
	lead := &model.LeadSummary{ID: "00Q1", Company: "한우리식당", UTMSource: "naver"}
	return []model.ContractRecord{
		{
			ID: "c1", Name: "계약-0001", ContractStatus: "계약서명완료",
			ContractDateStart: "2026-07-10", AccountName: "한우리식당",
			Opportunity: model.OpportunitySummary{
				OwnerName: "김영업", OwnerDepartment: "영업1팀", StageName: "Closed Won",
			},
			TotalTablets: 3, ProductsTotal: 1944000, PromotionsTotal: 48000,
			PurchaseAmount: 1896000, VAT: 189600, TotalWithVAT: 2085600,
			LeadTime:          model.DaysMetric(9),
			FirstWonAt:        "2026-07-08T00:00:00.000Z",
			PrevToFirstClose:  model.DaysMetric(6),
			LeadToOpportunity: model.DaysMetric(11),
			Lead:              lead,
		},
		{
			ID: "c2", Name: "계약-0002", ContractStatus: "계약서명대기",
			LeadTime:          model.NullMetric(model.MetricMissingDate),
			PrevToFirstClose:  model.NullMetric(model.MetricMissingDate),
			LeadToOpportunity: model.NullMetric(model.MetricMissingDate),
			LeadReason:        model.LeadReasonNotFound,
		},
	}
}

func TestWriteContracts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteContracts(&buf, sampleRecords()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "계약", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	require.Len(t, header.Cells, len(contractHeaders))
	assert.Equal(t, "계약 ID", header.Cells[0].String())

	first := sheet.Rows[1]
	assert.Equal(t, "c1", first.Cells[0].String())
	assert.Equal(t, "계약-0001", first.Cells[1].String())
	assert.Equal(t, "김영업", first.Cells[10].String())
	assert.Equal(t, "9", first.Cells[20].String())
	assert.Equal(t, "00Q1", first.Cells[23].String())
	assert.Equal(t, "naver", first.Cells[25].String())

	second := sheet.Rows[2]
	assert.Equal(t, "missing-date", second.Cells[20].String())
	assert.Equal(t, "", second.Cells[23].String())
	assert.Equal(t, "not-found", second.Cells[27].String())
}

func TestSaveContractsAppendsExtension(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveContracts(filepath.Join(dir, "contracts"), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "contracts.xlsx"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestWriteMonthlyMetrics(t *testing.T) {
	var buf bytes.Buffer
	metrics := []model.MonthlyMetric{
		{Month: "2026-06", Leads: 100, Opportunities: 20, Contracts: 10, Tablets: 50, Discount: 130000},
		{Month: "2026-07", Leads: 120, Opportunities: 25, Contracts: 12, Tablets: 60, Discount: 90000},
	}
	require.NoError(t, WriteMonthlyMetrics(&buf, metrics))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "2026-06", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "100", sheet.Rows[1].Cells[1].String())
}
