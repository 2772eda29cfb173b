package model

// PromotionSource distinguishes where a discount came from.
type PromotionSource string

const (
	// PromotionNative comes from the contract's dedicated promotion related list.
	PromotionNative PromotionSource = "native"
	// PromotionFromProduct is a line item whose raw price was negative,
	// reclassified as a discount.
	PromotionFromProduct PromotionSource = "product"
)

// OptionSurcharge records the per-unit amount a line item exceeds the base
// unit price by.
type OptionSurcharge struct {
	HasOption    bool    `json:"hasOption"`
	ExtraPerUnit float64 `json:"optionExtraTotal"`
}

// LineItem is one product entry on a contract. A raw line item with a
// negative total price is never represented as a LineItem; see Promotion.
type LineItem struct {
	ID         string            `json:"id"`
	Family     string            `json:"family"`
	Quantity   float64           `json:"quantity"`
	UnitPrice  float64           `json:"unitPrice"`
	TotalPrice float64           `json:"totalPrice"`
	Option     []OptionSurcharge `json:"option"`
}

// Promotion is a discount amount, either explicitly recorded or inferred from
// a negative-priced line item. TotalAmount is always >= 0.
type Promotion struct {
	ID          string          `json:"id"`
	TotalAmount float64         `json:"totalAmount"`
	Name        string          `json:"promotionName"`
	Source      PromotionSource `json:"source"`
}

// OpportunitySummary carries the denormalized opportunity fields of a contract.
type OpportunitySummary struct {
	ID              string  `json:"id"`
	StageName       string  `json:"stageName"`
	OwnerID         string  `json:"ownerId"`
	OwnerName       string  `json:"ownerName"`
	OwnerDepartment string  `json:"ownerDepartment"`
	AccountID       string  `json:"accountId"`
	AccountName     string  `json:"accountName"`
	AccountBranch   string  `json:"accountBranchName"`
	CreatedDate     string  `json:"createdDate"`
	LeadSource      string  `json:"leadSource"`
	ConvertedLeadID string  `json:"convertedLeadId"`
	TabletQty       float64 `json:"tabletQty"`
	MasterTabletQty float64 `json:"masterTabletQty"`
	TotalTablets    float64 `json:"totalTablets"`
	Sido            string  `json:"sido"`
	Sigugun         string  `json:"sigugun"`
	StoreType       string  `json:"storeType"`
	IndustryFirst   string  `json:"industryFirst"`
	IndustrySecond  string  `json:"industrySecond"`
	TypeOfBusiness  string  `json:"typeOfBusiness"`
}

// LeadReason explains why a contract's lead could not be resolved.
type LeadReason string

const (
	LeadReasonMissingReference LeadReason = "missing-reference"
	LeadReasonInvalidFormat    LeadReason = "invalid-reference-format"
	LeadReasonNotFound         LeadReason = "not-found"
)

// LeadSummary is the originating lead resolved for a contract, with its
// attribution parameters decomposed from the freeform UTM string.
type LeadSummary struct {
	ID          string `json:"id"`
	CreatedDate string `json:"createdDate"`
	Company     string `json:"company"`
	LeadSource  string `json:"leadSource"`
	UTM         string `json:"utm"`
	UTMSource   string `json:"utmSource"`
	UTMContent  string `json:"utmContent"`
	UTMTerm     string `json:"utmTerm"`
}

// ContractRecord is the flat, derived record produced per contract by the
// enrichment pipeline. Constructed fresh per request and immutable once
// returned; never persisted by the pipeline itself.
type ContractRecord struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	RecordTypeID      string  `json:"recordTypeId"`
	RecordTypeName    string  `json:"recordTypeName"`
	AccountName       string  `json:"accountName"`
	AccountBranch     string  `json:"accountBranchName"`
	IndustryFirst     string  `json:"industryFirst"`
	IndustrySecond    string  `json:"industrySecond"`
	TypeOfBusiness    string  `json:"typeOfBusiness"`
	CreatedDate       string  `json:"createdDate"`
	ContractDateStart string  `json:"contractDateStart"`
	ContractDateEnd   string  `json:"contractDateEnd"`
	ContractStatus    string  `json:"contractStatus"`
	FieldUser         string  `json:"fieldUser"`
	BOUser            string  `json:"boUser"`
	TotalTablets      float64 `json:"totalTablets"`

	Opportunity OpportunitySummary `json:"opportunity"`

	Products   []LineItem  `json:"products"`
	Promotions []Promotion `json:"promotions"`

	ProductsTotal               float64 `json:"productsTotal"`
	PromotionsFromProductsTotal float64 `json:"promotionsFromProductsTotal"`
	PromotionsNativeTotal       float64 `json:"promotionsNativeTotal"`
	PromotionsTotal             float64 `json:"promotionsTotal"`
	PurchaseAmount              float64 `json:"purchaseAmount"`
	VAT                         float64 `json:"vat"`
	TotalWithVAT                float64 `json:"totalWithVat"`

	LeadTime          Metric `json:"leadTime"`
	FirstWonAt        string `json:"firstWonAt,omitempty"`
	BeforeFirstWonAt  string `json:"beforeFirstWonAt,omitempty"`
	PrevToFirstClose  Metric `json:"prevToFirstClose"`
	LeadToOpportunity Metric `json:"leadToOpportunity"`

	Lead       *LeadSummary `json:"lead"`
	LeadReason LeadReason   `json:"leadReason,omitempty"`
}
