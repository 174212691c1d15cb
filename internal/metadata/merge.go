package metadata

import (
	"sort"

	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

// Merge fills existing with parsed values, touching only keys that are
// absent or blank. It returns the merged copy and the sorted keys that
// changed. Parsed keys unknown to entity.Metadata are ignored.
func Merge(existing entity.Metadata, parsed Fields) (entity.Metadata, []string) {
	merged := existing
	var changed []string
	for k, v := range parsed {
		if !entity.IsMetadataKey(k) || !merged.IsBlank(k) {
			continue
		}
		if cur, ok := merged.Get(k); ok && cur == v {
			continue
		}
		merged.Set(k, v)
		changed = append(changed, k)
	}
	sort.Strings(changed)
	return merged, changed
}
