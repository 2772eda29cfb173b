package enrich

import (
	"fmt"
	"strings"

	"github.com/sells-group/crm-report/pkg/salesforce"
)

// Contract statuses that count as a closed deal: signature complete and
// signature pending.
var contractStatusClause = "(ContractStatus__c = '계약서명완료' OR ContractStatus__c = '계약서명대기')"

var contractFields = []string{
	"Id", "Name", "CreatedDate",
	"ContractDateStart__c", "ContractDateEnd__c",
	"ContractStatus__c",
	"Opportunity__c",
	"Opportunity__r.Id",
	"Opportunity__r.StageName",
	"Opportunity__r.LeadSource",
	"Opportunity__r.RecordTypeId",
	"Opportunity__r.RecordType.Name",
	"Opportunity__r.OwnerId",
	"Opportunity__r.Owner.Name",
	"Opportunity__r.Owner_Department__c",
	"Opportunity__r.BOUser__r.Name",
	"Opportunity__r.FieldUser__r.Name",
	"Opportunity__r.AccountId",
	"Opportunity__r.Account.Name",
	"Opportunity__r.Account.BranchName__c",
	"Opportunity__r.Account.PLIndustry_First__c",
	"Opportunity__r.Account.PLIndustry_Second__c",
	"Opportunity__r.Account.TypeofB__c",
	"Opportunity__r.ru_TabletQty__c",
	"Opportunity__r.ru_MasterTabletQty__c",
	"Opportunity__r.TotalNumberofEveryTablet__c",
	"Opportunity__r.CreatedDate",
	"Opportunity__r.ConvertedLeadID__c",
	"Opportunity__r.fm_sido__c",
	"Opportunity__r.fm_Sigugun__c",
	"Opportunity__r.fm_StoreType__c",
	"Account__c",
	"Account__r.Name",
	"Account__r.BranchName__c",
	"Account__r.PLIndustry_First__c",
	"Account__r.PLIndustry_Second__c",
	"Account__r.TypeofB__c",
	"(SELECT Id, fm_ContractProductFamily__c, TotalPrice__c, Quantity__c FROM ContractProductQuoteContract__r)",
	"(SELECT Id, TotalAmount__c, PromotionName__r.Name FROM ContractProductPromotionContract__r)",
}

// deptFiltered reports whether an owner-department filter should apply.
// "ALL" and "*" mean no filter.
func deptFiltered(dept string) (string, bool) {
	d := strings.TrimSpace(dept)
	if d == "" || d == "ALL" || d == "*" {
		return "", false
	}
	return d, true
}

// buildContractSOQL assembles the primary contract query: a date range on the
// contract start date, closed statuses, and an optional department filter.
// Date literals are unquoted in SOQL; every string literal is escaped.
func buildContractSOQL(rng DateRange, ownerDept string) string {
	where := []string{
		"Opportunity__c != NULL",
		fmt.Sprintf("ContractDateStart__c >= %s", rng.Start),
		fmt.Sprintf("ContractDateStart__c < %s", rng.End),
		contractStatusClause,
	}
	if dept, ok := deptFiltered(ownerDept); ok {
		where = append(where, fmt.Sprintf("Opportunity__r.Owner_Department__c = '%s'", salesforce.EscapeSOQL(dept)))
	}
	return fmt.Sprintf(
		"SELECT %s FROM Contract__c WHERE %s ORDER BY CreatedDate ASC",
		strings.Join(contractFields, ", "),
		strings.Join(where, " AND "),
	)
}

func buildHistorySOQL(in string) string {
	return fmt.Sprintf(
		"SELECT CloseDate, CreatedDate, OpportunityId, PrevCloseDate, StageName"+
			" FROM OpportunityHistory WHERE OpportunityId IN (%s) ORDER BY CreatedDate ASC",
		in,
	)
}

func buildLeadByIDSOQL(in string) string {
	return fmt.Sprintf(
		"SELECT Id, CreatedDate, Company, LeadSource, utm__c, ConvertedOpportunityId"+
			" FROM Lead WHERE Id IN (%s)",
		in,
	)
}

func buildLeadByOppSOQL(in string) string {
	return fmt.Sprintf(
		"SELECT Id, CreatedDate, Company, LeadSource, utm__c, ConvertedOpportunityId"+
			" FROM Lead WHERE IsConverted = true AND ConvertedOpportunityId IN (%s)",
		in,
	)
}
