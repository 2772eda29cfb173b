package enrich

import (
	"fmt"
	"math"

	"github.com/sells-group/crm-report/internal/model"
)

// DefaultBasePrice is the fixed per-unit base price (KRW). A line item priced
// above it carries the excess as an option surcharge.
const DefaultBasePrice = 648000

// vatRate is the statutory VAT rate applied to the purchase amount.
const vatRate = 0.1

// normalizeContract maps one raw nested contract row into a flat record.
// Pure function, no I/O; stage-history and lead fields are filled in later by
// the orchestrator.
func normalizeContract(raw rawContract, basePrice float64) model.ContractRecord {
	opp := raw.Opportunity
	if opp == nil {
		opp = &rawOpportunity{}
	}
	account := raw.Account
	if account == nil {
		account = &rawAccount{}
	}
	oppAccount := opp.Account
	if oppAccount == nil {
		oppAccount = &rawAccount{}
	}

	var products []model.LineItem
	var productPromotions []model.Promotion

	if raw.Products != nil {
		for _, p := range raw.Products.Records {
			quantity := 1.0
			if p.Quantity != nil {
				quantity = *p.Quantity
			}
			price := 0.0
			if p.TotalPrice != nil {
				price = *p.TotalPrice
			}

			if price < 0 {
				// A negative-priced line item is a discount in disguise. It
				// counts at least once even when the quantity is zero.
				multiplier := quantity
				if multiplier <= 0 {
					multiplier = 1
				}
				name := p.Family
				if name == "" {
					name = fmt.Sprintf("프로모션(%s)", p.ID)
				}
				productPromotions = append(productPromotions, model.Promotion{
					ID:          p.ID,
					TotalAmount: math.Abs(price) * multiplier,
					Name:        name,
					Source:      model.PromotionFromProduct,
				})
				continue
			}

			var option []model.OptionSurcharge
			if extra := price - basePrice; extra > 0 {
				option = []model.OptionSurcharge{{HasOption: true, ExtraPerUnit: extra}}
			}
			products = append(products, model.LineItem{
				ID:         p.ID,
				Family:     p.Family,
				Quantity:   quantity,
				UnitPrice:  basePrice,
				TotalPrice: price,
				Option:     option,
			})
		}
	}

	var nativePromotions []model.Promotion
	if raw.Promotions != nil {
		for _, pr := range raw.Promotions.Records {
			amount := 0.0
			if pr.TotalAmount != nil {
				amount = *pr.TotalAmount
			}
			name := "프로모션"
			if pr.PromotionName != nil && pr.PromotionName.Name != "" {
				name = pr.PromotionName.Name
			}
			nativePromotions = append(nativePromotions, model.Promotion{
				ID:          pr.ID,
				TotalAmount: amount,
				Name:        name,
				Source:      model.PromotionNative,
			})
		}
	}

	var productsTotal, promotionsFromProducts, promotionsNative float64
	for _, it := range products {
		productsTotal += it.TotalPrice * it.Quantity
	}
	for _, pr := range productPromotions {
		promotionsFromProducts += pr.TotalAmount
	}
	for _, pr := range nativePromotions {
		promotionsNative += pr.TotalAmount
	}

	// Native promotions are informational and do not reduce the purchase
	// amount; only product-derived discounts do. Preserved from observed
	// billing behavior.
	purchaseAmount := productsTotal - promotionsFromProducts
	vat := math.Floor(purchaseAmount * vatRate)

	promotions := make([]model.Promotion, 0, len(nativePromotions)+len(productPromotions))
	promotions = append(promotions, nativePromotions...)
	promotions = append(promotions, productPromotions...)

	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}

	return model.ContractRecord{
		ID:                raw.ID,
		Name:              raw.Name,
		RecordTypeID:      opp.RecordTypeID,
		RecordTypeName:    nameOf(opp.RecordType),
		AccountName:       account.Name,
		AccountBranch:     account.BranchName,
		IndustryFirst:     pick(account.IndustryFirst, oppAccount.IndustryFirst),
		IndustrySecond:    pick(account.IndustrySecond, oppAccount.IndustrySecond),
		TypeOfBusiness:    pick(account.TypeOfBusiness, oppAccount.TypeOfBusiness),
		CreatedDate:       raw.CreatedDate,
		ContractDateStart: raw.ContractDateStart,
		ContractDateEnd:   raw.ContractDateEnd,
		ContractStatus:    raw.ContractStatus,
		FieldUser:         nameOf(opp.FieldUser),
		BOUser:            nameOf(opp.BOUser),
		TotalTablets:      opp.TotalTablets,

		Opportunity: model.OpportunitySummary{
			ID:              opp.ID,
			StageName:       opp.StageName,
			OwnerID:         opp.OwnerID,
			OwnerName:       nameOf(opp.Owner),
			OwnerDepartment: opp.OwnerDepartment,
			AccountID:       opp.AccountID,
			AccountName:     oppAccount.Name,
			AccountBranch:   oppAccount.BranchName,
			CreatedDate:     opp.CreatedDate,
			LeadSource:      opp.LeadSource,
			ConvertedLeadID: opp.ConvertedLeadID,
			TabletQty:       opp.TabletQty,
			MasterTabletQty: opp.MasterTabletQty,
			TotalTablets:    opp.TotalTablets,
			Sido:            opp.Sido,
			Sigugun:         opp.Sigugun,
			StoreType:       opp.StoreType,
			IndustryFirst:   oppAccount.IndustryFirst,
			IndustrySecond:  oppAccount.IndustrySecond,
			TypeOfBusiness:  oppAccount.TypeOfBusiness,
		},

		Products:   products,
		Promotions: promotions,

		ProductsTotal:               productsTotal,
		PromotionsFromProductsTotal: promotionsFromProducts,
		PromotionsNativeTotal:       promotionsNative,
		PromotionsTotal:             promotionsFromProducts + promotionsNative,
		PurchaseAmount:              purchaseAmount,
		VAT:                         vat,
		TotalWithVAT:                purchaseAmount + vat,

		LeadTime:          DayDiff(opp.CreatedDate, raw.CreatedDate),
		PrevToFirstClose:  model.NullMetric(model.MetricMissingDate),
		LeadToOpportunity: model.NullMetric(model.MetricMissingDate),
	}
}

func nameOf(n *rawName) string {
	if n == nil {
		return ""
	}
	return n.Name
}
