// Package recipe defines the structured extraction result shared by all
// provider adapters.
package recipe

import "strings"

// Recipe is the candidate produced by a provider adapter, before the caller
// persists it anywhere.
type Recipe struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Ingredients    []string `json:"ingredients"`
	Steps          []string `json:"steps"`
	Cuisine        string   `json:"cuisine,omitempty"`
	Category       string   `json:"category,omitempty"`
	PrepTime       string   `json:"prep_time,omitempty"`
	CleanupTime    string   `json:"cleanup_time,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	FromStructured bool     `json:"from_structured_data,omitempty"`
}

// Valid reports whether the candidate passes the minimum acceptance bar:
// a title plus at least one ingredient and one step. Whitespace-only
// entries do not count.
func (r *Recipe) Valid() bool {
	if r == nil || strings.TrimSpace(r.Title) == "" {
		return false
	}
	return hasContent(r.Ingredients) && hasContent(r.Steps)
}

func hasContent(items []string) bool {
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			return true
		}
	}
	return false
}

// Normalize trims whitespace and drops empty list entries in place.
func (r *Recipe) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Ingredients = compact(r.Ingredients)
	r.Steps = compact(r.Steps)
}

func compact(items []string) []string {
	out := items[:0]
	for _, it := range items {
		if t := strings.TrimSpace(it); t != "" {
			out = append(out, t)
		}
	}
	return out
}
