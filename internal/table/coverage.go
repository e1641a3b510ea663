package table

import "sort"

// FindMissing returns the requested node identifiers that never appear in the
// display_name column of t, sorted. An empty result means full coverage.
func FindMissing(requested []string, t *Table) []string {
	seen := make(map[string]struct{})
	if t != nil {
		if idx := t.ColumnIndex(ColumnDisplayName); idx >= 0 {
			for _, row := range t.Rows {
				if name, ok := row[idx].(string); ok {
					seen[name] = struct{}{}
				}
			}
		}
	}

	missing := []string{}
	added := make(map[string]struct{})
	for _, id := range requested {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, dup := added[id]; dup {
			continue
		}
		added[id] = struct{}{}
		missing = append(missing, id)
	}
	sort.Strings(missing)
	return missing
}
