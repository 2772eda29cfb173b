package enrich

import (
	"context"

	"github.com/sells-group/crm-report/pkg/salesforce"
)

// DefaultChunkSize is the hard ceiling the query API imposes on IN (...)
// literal-list length. Chunking is mandatory, not an optimization.
const DefaultChunkSize = 100

func chunkStrings(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// batchQuery partitions ids into consecutive chunks, builds one IN-list query
// per chunk via build, and runs them sequentially through the paginated
// executor, appending results. Empty ids issue no request. Duplicate ids are
// harmless; they land in the same literal list.
func batchQuery[T any](ctx context.Context, c *salesforce.Client, ids []string, chunkSize int, build func(in string) string) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var out []T
	for _, chunk := range chunkStrings(ids, chunkSize) {
		rows, err := salesforce.QueryAll[T](ctx, c, build(salesforce.InClause(chunk)))
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// groupBy merges rows into a key→rows map. Merge order is commutative: the
// same map results regardless of chunk arrival order.
func groupBy[T any](rows []T, key func(T) string) map[string][]T {
	grouped := make(map[string][]T)
	for _, row := range rows {
		k := key(row)
		grouped[k] = append(grouped[k], row)
	}
	return grouped
}

// indexBy merges rows into a key→row map; later rows win on duplicate keys.
func indexBy[T any](rows []T, key func(T) string) map[string]T {
	indexed := make(map[string]T, len(rows))
	for _, row := range rows {
		indexed[key(row)] = row
	}
	return indexed
}
