// Package taxonomy is the single source of truth for crime categories and
// the title normalization used to match backend-provided crime names against
// the fixed local catalog.
package taxonomy

import "strings"

// Category represents a reportable crime category.
type Category struct {
	// ID uniquely identifies the category within the catalog.
	ID string `json:"id"`

	// Title is the display title and the natural key for all
	// cross-system matching.
	Title string `json:"title"`

	// IconRef names the client-side icon asset for this category.
	IconRef string `json:"iconRef"`

	// ColorTag is the display color associated with the category.
	ColorTag string `json:"colorTag"`
}

// OthersTitle is the title of the catch-all category. Every personalization
// result includes it.
const OthersTitle = "Others"

// catalog is the fixed set of 6 categories. Order matters only for display;
// matching goes through normalized titles.
var catalog = []Category{
	{ID: "1", Title: "Outrage of Modesty", IconRef: "outrage_of_modesty", ColorTag: "#F44336"},
	{ID: "2", Title: "Snatch Theft", IconRef: "theft", ColorTag: "#4CAF50"},
	{ID: "3", Title: "Robbery", IconRef: "robbery", ColorTag: "#2196F3"},
	{ID: "4", Title: OthersTitle, IconRef: "others", ColorTag: "#00BCD4"},
	{ID: "5", Title: "Theft of Motor Vehicle", IconRef: "theft_of_motor_vehicle", ColorTag: "#AC54B4"},
	{ID: "6", Title: "Housebreaking", IconRef: "housebreaking", ColorTag: "#F26B38"},
}

// defaultTitles is the curated subset shown before personalization data
// arrives or when personalization yields nothing.
var defaultTitles = []string{
	"Outrage of Modesty",
	"Housebreaking",
	"Theft of Motor Vehicle",
	OthersTitle,
}

// Normalize trims surrounding whitespace and lowercases a category title.
// Idempotent.
func Normalize(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// All returns a copy of the full catalog in display order.
func All() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

// FindByTitle looks up a category by normalized title equality. Exact match
// only after normalization; the catalog is small and controlled, so fuzzy
// matching is deliberately out.
func FindByTitle(title string) (Category, bool) {
	want := Normalize(title)
	for _, c := range catalog {
		if Normalize(c.Title) == want {
			return c, true
		}
	}
	return Category{}, false
}

// FindByID looks up a category by its catalog ID.
func FindByID(id string) (Category, bool) {
	for _, c := range catalog {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// DefaultCategories returns the curated default sequence.
func DefaultCategories() []Category {
	out := make([]Category, 0, len(defaultTitles))
	for _, title := range defaultTitles {
		if c, ok := FindByTitle(title); ok {
			out = append(out, c)
		}
	}
	return out
}

// Personalize maps backend-provided crime names onto catalog categories,
// preserving input order and dropping unmatched names. "Others" is appended
// when absent. When no input name matches anything, the result falls back to
// DefaultCategories; the fallback decision looks at the mapped result before
// the Others append.
func Personalize(topCrimeNames []string) []Category {
	mapped := make([]Category, 0, len(topCrimeNames)+1)
	for _, name := range topCrimeNames {
		if c, ok := FindByTitle(name); ok {
			mapped = append(mapped, c)
		}
	}

	if len(mapped) == 0 {
		return DefaultCategories()
	}

	hasOthers := false
	for _, c := range mapped {
		if c.Title == OthersTitle {
			hasOthers = true
			break
		}
	}
	if !hasOthers {
		if others, ok := FindByTitle(OthersTitle); ok {
			mapped = append(mapped, others)
		}
	}

	return mapped
}
