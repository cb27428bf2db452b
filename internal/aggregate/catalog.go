package aggregate

import (
	"sort"

	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
)

// States returns the sorted, distinct state names present in records.
func States(records []dataset.RawRecord) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		if name, ok := rec.ResolveString(dataset.StateNameAlias); ok {
			seen[name] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Districts returns the sorted, distinct district names for a state.
func Districts(records []dataset.RawRecord, state string) ([]string, error) {
	if dataset.NormalizeKeyPart(state) == "" {
		return nil, ErrNotFound
	}
	matched := Filter(records, state, "")
	if len(matched) == 0 {
		return nil, ErrNotFound
	}
	seen := make(map[string]struct{})
	for _, rec := range matched {
		if name, ok := rec.ResolveString(dataset.DistrictNameAlias); ok {
			seen[name] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, ErrNotFound
	}
	return sortedKeys(seen), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
