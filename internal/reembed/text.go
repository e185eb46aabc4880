package reembed

import (
	"fmt"
	"strings"

	"github.com/KevinLaRosa/yorimichi-workers/internal/embed"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

const (
	maxFeatures     = 10
	maxOpenDays     = 3
	maxKeywords     = 8
	popularVisitMin = 1000
)

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Text is the document embedded for e: the stored description framed by
// name and category, followed by whatever the directories added. Parts are
// joined with " | ".
func Text(e *model.Entity) string {
	var parts []string
	add := func(format string, args ...any) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}
	attrs := e.Attributes

	if e.Name != "" {
		add("Name: %s", e.Name)
	}
	if e.Category != "" {
		add("Category: %s", e.Category)
	}
	if types := stringList(attrs["fsq_categories"], 0); len(types) > 0 {
		add("Types: %s", strings.Join(types, ", "))
	}
	if d := strings.TrimSpace(e.Description); d != "" {
		add("Description: %s", d)
	}
	if kw := stringList(attrs["keywords"], maxKeywords); len(kw) > 0 {
		add("Keywords: %s", strings.Join(kw, ", "))
	}
	if e.Address != "" {
		add("Address: %s", e.Address)
	}
	if st := stringList(attrs["nearest_stations"], 0); len(st) > 0 {
		add("Stations: %s", strings.Join(st, ", "))
	}

	if rating, ok := number(attrs["rating"]); ok && rating > 0 {
		add("Rating: %g/10", rating)
	}
	if tier, ok := number(attrs["price_tier"]); ok && tier > 0 {
		add("Price: %s", strings.Repeat("¥", int(tier)))
	} else if pr, ok := attrs["price_range"].(string); ok && pr != "" {
		add("Price: %s", pr)
	}
	if v, ok := attrs["verified"].(bool); ok && v {
		parts = append(parts, "Verified venue")
	}
	if f := stringList(attrs["amenities"], maxFeatures); len(f) > 0 {
		add("Features: %s", strings.Join(f, ", "))
	}
	if h := hours(attrs); h != "" {
		parts = append(parts, h)
	}
	if visits, ok := number(nested(attrs["stats"], "total_visits")); ok && visits > popularVisitMin {
		add("Popular venue with %d visits", int(visits))
	}

	return embed.Truncate(strings.Join(parts, " | "), embed.MaxInputChars)
}

// hours prefers the directory's display string, then the open days of the
// structured week, then free text scraped from the source page.
func hours(attrs map[string]any) string {
	if d, ok := nested(attrs["hours"], "display").(string); ok && d != "" {
		return "Hours: " + d
	}
	switch oh := attrs["opening_hours"].(type) {
	case map[string]any:
		var open []string
		for _, day := range weekdays {
			if w, ok := oh[day]; ok && w != nil {
				open = append(open, day)
			}
			if len(open) == maxOpenDays {
				break
			}
		}
		if len(open) > 0 {
			return "Open: " + strings.Join(open, ", ")
		}
	case string:
		if oh != "" {
			return "Hours: " + oh
		}
	}
	return ""
}

func nested(v any, key string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// stringList reads a JSON array of strings, capped at limit when limit > 0.
func stringList(v any, limit int) []string {
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
