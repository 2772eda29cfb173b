package enrich

import (
	"net/url"
	"strings"

	"github.com/sells-group/crm-report/internal/model"
)

// leadKeyPrefix is the Salesforce object key prefix for Lead records. A
// converted-lead reference that doesn't start with it is stale garbage, not a
// lookup miss.
const leadKeyPrefix = "00q"

func looksLikeLeadID(id string) bool {
	return strings.HasPrefix(strings.ToLower(id), leadKeyPrefix)
}

// parseUTM decomposes a freeform attribution string (typically the
// query-string portion of a landing-page URL) into the three tracked
// parameters. Parse failures or an absent string yield empty fields, never an
// error.
func parseUTM(raw string) (source, content, term string) {
	if raw == "" {
		return "", "", ""
	}
	qs := raw
	if i := strings.LastIndex(raw, "?"); i >= 0 {
		qs = raw[i+1:]
	}
	params, err := url.ParseQuery(qs)
	if err != nil {
		return "", "", ""
	}
	return params.Get("utm_source"), params.Get("utm_content"), params.Get("utm_term")
}

// attributeLead resolves a contract's originating lead: the primary
// converted-lead reference first, then the opportunity-based fallback map,
// else a nil lead with an explanatory reason. Also derives the
// lead-to-opportunity interval.
func attributeLead(rec *model.ContractRecord, byLeadID, byOppID map[string]rawLead) {
	leadID := rec.Opportunity.ConvertedLeadID

	var lead *rawLead
	if leadID != "" {
		if l, ok := byLeadID[leadID]; ok {
			lead = &l
		}
	}
	if lead == nil && rec.Opportunity.ID != "" {
		if l, ok := byOppID[rec.Opportunity.ID]; ok {
			lead = &l
		}
	}

	if lead == nil {
		rec.Lead = nil
		switch {
		case leadID == "":
			rec.LeadReason = model.LeadReasonMissingReference
		case !looksLikeLeadID(leadID):
			rec.LeadReason = model.LeadReasonInvalidFormat
		default:
			rec.LeadReason = model.LeadReasonNotFound
		}
		rec.LeadToOpportunity = model.NullMetric(model.MetricMissingDate)
		return
	}

	source, content, term := parseUTM(lead.UTM)
	rec.Lead = &model.LeadSummary{
		ID:          lead.ID,
		CreatedDate: lead.CreatedDate,
		Company:     lead.Company,
		LeadSource:  lead.LeadSource,
		UTM:         lead.UTM,
		UTMSource:   source,
		UTMContent:  content,
		UTMTerm:     term,
	}
	rec.LeadReason = ""

	if rec.Opportunity.CreatedDate != "" {
		rec.LeadToOpportunity = DayDiff(lead.CreatedDate, rec.Opportunity.CreatedDate)
	} else {
		rec.LeadToOpportunity = model.NullMetric(model.MetricMissingDate)
	}
}
