package enrich

import (
	"github.com/sells-group/crm-report/pkg/salesforce"
)

// Raw row shapes for decoding query results. Related records and lists are
// pointers/optionals: the remote service omits them freely, and absent must
// decode to empty rather than fail. Nothing below leaks past the normalizer.

type rawName struct {
	Name string `json:"Name"`
}

type rawAccount struct {
	Name           string `json:"Name"`
	BranchName     string `json:"BranchName__c"`
	IndustryFirst  string `json:"PLIndustry_First__c"`
	IndustrySecond string `json:"PLIndustry_Second__c"`
	TypeOfBusiness string `json:"TypeofB__c"`
}

type rawOpportunity struct {
	ID              string      `json:"Id"`
	StageName       string      `json:"StageName"`
	OwnerID         string      `json:"OwnerId"`
	Owner           *rawName    `json:"Owner"`
	OwnerDepartment string      `json:"Owner_Department__c"`
	AccountID       string      `json:"AccountId"`
	Account         *rawAccount `json:"Account"`
	RecordTypeID    string      `json:"RecordTypeId"`
	RecordType      *rawName    `json:"RecordType"`
	BOUser          *rawName    `json:"BOUser__r"`
	FieldUser       *rawName    `json:"FieldUser__r"`
	LeadSource      string      `json:"LeadSource"`
	CreatedDate     string      `json:"CreatedDate"`
	ConvertedLeadID string      `json:"ConvertedLeadID__c"`
	TabletQty       float64     `json:"ru_TabletQty__c"`
	MasterTabletQty float64     `json:"ru_MasterTabletQty__c"`
	TotalTablets    float64     `json:"TotalNumberofEveryTablet__c"`
	Sido            string      `json:"fm_sido__c"`
	Sigugun         string      `json:"fm_Sigugun__c"`
	StoreType       string      `json:"fm_StoreType__c"`
}

type rawProduct struct {
	ID         string   `json:"Id"`
	Family     string   `json:"fm_ContractProductFamily__c"`
	Quantity   *float64 `json:"Quantity__c"`
	TotalPrice *float64 `json:"TotalPrice__c"`
}

type rawPromotion struct {
	ID            string   `json:"Id"`
	TotalAmount   *float64 `json:"TotalAmount__c"`
	PromotionName *rawName `json:"PromotionName__r"`
}

type rawContract struct {
	ID                string          `json:"Id"`
	Name              string          `json:"Name"`
	CreatedDate       string          `json:"CreatedDate"`
	ContractDateStart string          `json:"ContractDateStart__c"`
	ContractDateEnd   string          `json:"ContractDateEnd__c"`
	ContractStatus    string          `json:"ContractStatus__c"`
	Opportunity       *rawOpportunity `json:"Opportunity__r"`
	Account           *rawAccount     `json:"Account__r"`

	Products   *salesforce.RelatedList[rawProduct]   `json:"ContractProductQuoteContract__r"`
	Promotions *salesforce.RelatedList[rawPromotion] `json:"ContractProductPromotionContract__r"`
}

type rawStageHistory struct {
	OpportunityID string `json:"OpportunityId"`
	CreatedDate   string `json:"CreatedDate"`
	StageName     string `json:"StageName"`
	CloseDate     string `json:"CloseDate"`
	PrevCloseDate string `json:"PrevCloseDate"`
}

// rawLead's UTM tag also matches the UTM__c and Utm__c spellings observed in
// the org: encoding/json falls back to case-insensitive field matching.
type rawLead struct {
	ID                     string `json:"Id"`
	CreatedDate            string `json:"CreatedDate"`
	Company                string `json:"Company"`
	LeadSource             string `json:"LeadSource"`
	UTM                    string `json:"utm__c"`
	ConvertedOpportunityID string `json:"ConvertedOpportunityId"`
}
