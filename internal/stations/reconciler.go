package stations

import "strings"

// Reconcile finds the catalog record that represents the same physical
// station as a backend nearest-station answer. Backend and local datasets
// name the same station slightly differently (abbreviations, punctuation),
// so matching is case-insensitive substring containment in either direction:
// "Bedok NPC" matches an answer of "Bedok" and vice versa. The first match
// in catalog order wins, which keeps the result stable for an unchanged
// dataset. Returns nil when nothing matches; callers omit the highlighted
// marker in that case and, since the answer carries no coordinates of its
// own, suppress the route line as well.
func (c *Catalog) Reconcile(answer NearestAnswer) *Record {
	want := strings.ToLower(strings.TrimSpace(answer.Name))
	if want == "" {
		return nil
	}

	for i := range c.records {
		have := strings.ToLower(c.records[i].Name)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return &c.records[i]
		}
	}
	return nil
}
