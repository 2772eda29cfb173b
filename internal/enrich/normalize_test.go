package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-report/internal/model"
	"github.com/sells-group/crm-report/pkg/salesforce"
)

func f(v float64) *float64 { return &v }

func productList(rows ...rawProduct) *salesforce.RelatedList[rawProduct] {
	return &salesforce.RelatedList[rawProduct]{Records: rows}
}

func promoList(rows ...rawPromotion) *salesforce.RelatedList[rawPromotion] {
	return &salesforce.RelatedList[rawPromotion]{Records: rows}
}

func TestNormalizeNegativePriceBecomesPromotion(t *testing.T) {
	tests := []struct {
		name       string
		quantity   float64
		price      float64
		wantAmount float64
	}{
		{name: "quantity multiplies the discount", quantity: 2, price: -50000, wantAmount: 100000},
		{name: "zero quantity floors at one", quantity: 0, price: -50000, wantAmount: 50000},
		{name: "quantity one", quantity: 1, price: -30000, wantAmount: 30000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := normalizeContract(rawContract{
				ID: "c1",
				Products: productList(rawProduct{
					ID: "p1", Family: "KIOSK", Quantity: f(tc.quantity), TotalPrice: f(tc.price),
				}),
			}, DefaultBasePrice)

			assert.Empty(t, rec.Products, "a negative-priced row must never become a line item")
			require.Len(t, rec.Promotions, 1)
			promo := rec.Promotions[0]
			assert.Equal(t, model.PromotionFromProduct, promo.Source)
			assert.Equal(t, tc.wantAmount, promo.TotalAmount)
			assert.Equal(t, "KIOSK", promo.Name)
		})
	}
}

func TestNormalizePromotionNameFallback(t *testing.T) {
	rec := normalizeContract(rawContract{
		Products: productList(rawProduct{ID: "p9", Quantity: f(1), TotalPrice: f(-1000)}),
	}, DefaultBasePrice)

	require.Len(t, rec.Promotions, 1)
	assert.Equal(t, "프로모션(p9)", rec.Promotions[0].Name)
}

func TestNormalizeTotals(t *testing.T) {
	rec := normalizeContract(rawContract{
		ID: "c1",
		Products: productList(
			rawProduct{ID: "p1", Family: "TABLET", Quantity: f(3), TotalPrice: f(648000)},
			rawProduct{ID: "p2", Family: "TABLET", Quantity: f(1), TotalPrice: f(700000)},
			rawProduct{ID: "p3", Family: "DC", Quantity: f(2), TotalPrice: f(-50000)},
		),
		Promotions: promoList(
			rawPromotion{ID: "n1", TotalAmount: f(80000), PromotionName: &rawName{Name: "런칭 프로모션"}},
		),
	}, DefaultBasePrice)

	// products: 648000*3 + 700000*1
	assert.Equal(t, float64(2644000), rec.ProductsTotal)
	assert.Equal(t, float64(100000), rec.PromotionsFromProductsTotal)
	assert.Equal(t, float64(80000), rec.PromotionsNativeTotal)
	assert.Equal(t, float64(180000), rec.PromotionsTotal)

	// Native promotions do not reduce the purchase amount.
	assert.Equal(t, rec.ProductsTotal-rec.PromotionsFromProductsTotal, rec.PurchaseAmount)
	assert.Equal(t, float64(2544000), rec.PurchaseAmount)

	assert.Equal(t, float64(254400), rec.VAT)
	assert.Equal(t, rec.PurchaseAmount, rec.TotalWithVAT-rec.VAT)
}

func TestNormalizeVATFloors(t *testing.T) {
	rec := normalizeContract(rawContract{
		Products: productList(rawProduct{ID: "p1", Quantity: f(1), TotalPrice: f(5)}),
	}, DefaultBasePrice)

	// 5 * 0.1 = 0.5 → floor 0
	assert.Equal(t, float64(0), rec.VAT)
	assert.Equal(t, rec.PurchaseAmount, rec.TotalWithVAT)
}

func TestNormalizeOptionSurcharge(t *testing.T) {
	rec := normalizeContract(rawContract{
		Products: productList(
			rawProduct{ID: "p1", Quantity: f(1), TotalPrice: f(700000)},
			rawProduct{ID: "p2", Quantity: f(1), TotalPrice: f(648000)},
		),
	}, DefaultBasePrice)

	require.Len(t, rec.Products, 2)
	require.Len(t, rec.Products[0].Option, 1)
	assert.Equal(t, float64(52000), rec.Products[0].Option[0].ExtraPerUnit)
	assert.True(t, rec.Products[0].Option[0].HasOption)
	assert.Equal(t, float64(DefaultBasePrice), rec.Products[0].UnitPrice)
	assert.Empty(t, rec.Products[1].Option)
}

func TestNormalizeEmptyContract(t *testing.T) {
	rec := normalizeContract(rawContract{ID: "c-empty"}, DefaultBasePrice)

	assert.Empty(t, rec.Products)
	assert.Empty(t, rec.Promotions)
	assert.Zero(t, rec.ProductsTotal)
	assert.Zero(t, rec.PurchaseAmount)
	assert.Zero(t, rec.VAT)
	assert.Zero(t, rec.TotalWithVAT)
	assert.Equal(t, model.MetricMissingDate, rec.LeadTime.Reason)
}

func TestNormalizeMissingQuantityDefaultsToOne(t *testing.T) {
	rec := normalizeContract(rawContract{
		Products: productList(rawProduct{ID: "p1", TotalPrice: f(648000)}),
	}, DefaultBasePrice)

	require.Len(t, rec.Products, 1)
	assert.Equal(t, float64(1), rec.Products[0].Quantity)
	assert.Equal(t, float64(648000), rec.ProductsTotal)
}

func TestNormalizeLeadTime(t *testing.T) {
	rec := normalizeContract(rawContract{
		CreatedDate: "2026-02-10T00:00:00.000Z",
		Opportunity: &rawOpportunity{
			ID:          "opp1",
			CreatedDate: "2026-02-01T00:00:00.000Z",
		},
	}, DefaultBasePrice)

	require.True(t, rec.LeadTime.Resolved())
	assert.Equal(t, 9, *rec.LeadTime.Days)
}

func TestNormalizeIndustryFallsBackToOpportunityAccount(t *testing.T) {
	rec := normalizeContract(rawContract{
		Account: &rawAccount{Name: "직영점"},
		Opportunity: &rawOpportunity{
			Account: &rawAccount{IndustryFirst: "외식업", TypeOfBusiness: "법인"},
		},
	}, DefaultBasePrice)

	assert.Equal(t, "직영점", rec.AccountName)
	assert.Equal(t, "외식업", rec.IndustryFirst)
	assert.Equal(t, "법인", rec.TypeOfBusiness)
}
