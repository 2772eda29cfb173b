package salesforce

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// RelatedList is the shape of a SOQL sub-select result embedded in a parent
// record.
type RelatedList[T any] struct {
	Records []T `json:"records"`
}

// QueryAll runs a SOQL query and follows continuation cursors until the
// result set is exhausted, decoding every page's records into T and appending
// them in response order. The API enforces ordering; QueryAll does not
// re-sort. Failures propagate without retry unless the client was built with
// WithRetryAttempts.
func QueryAll[T any](ctx context.Context, c *Client, soql string) ([]T, error) {
	page, err := c.QueryPage(ctx, soql)
	if err != nil {
		return nil, err
	}

	var out []T
	for {
		var records []T
		if err := json.Unmarshal(page.Records, &records); err != nil {
			return nil, eris.Wrap(err, "sf: decode records")
		}
		out = append(out, records...)

		if page.Done || page.NextRecordsURL == "" {
			break
		}
		page, err = c.NextPage(ctx, page.NextRecordsURL)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EscapeSOQL escapes single quotes in SOQL string literals to prevent
// injection. Every user-influenced literal must pass through here before
// interpolation.
func EscapeSOQL(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

// InClause builds a quoted, escaped literal list for an IN (...) filter.
func InClause(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + EscapeSOQL(id) + "'"
	}
	return strings.Join(quoted, ",")
}
