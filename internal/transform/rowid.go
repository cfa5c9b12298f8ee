package transform

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/casewise/migrator/internal/rowsource"
)

// SyntheticID builds a deterministic identifier for a row with no natural
// one: {SOURCE}-{HASH}-R{ordinal}. The hash is FNV-64a over the row's
// fields in sorted key order, so re-running the same file reproduces the
// same ids.
func SyntheticID(sourceID string, row rowsource.Row) string {
	keys := make([]string, 0, len(row.Fields))
	for k := range row.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(row.Fields[k]))
		h.Write([]byte{0})
	}

	return fmt.Sprintf("%s-%016X-R%d", strings.ToUpper(sourceID), h.Sum64(), row.Index)
}
