package foursquare

var weekdays = map[int]string{
	1: "monday",
	2: "tuesday",
	3: "wednesday",
	4: "thursday",
	5: "friday",
	6: "saturday",
	7: "sunday",
}

// OpeningWindow is one converted opening window.
type OpeningWindow struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// ConvertHours maps the regular schedule to weekday names with "HH:MM"
// times. Days outside 1..7 are dropped. Times that are not four digits are
// kept as given.
func ConvertHours(h *Hours) map[string][]OpeningWindow {
	if h == nil || len(h.Regular) == 0 {
		return nil
	}
	out := make(map[string][]OpeningWindow)
	for _, slot := range h.Regular {
		day, ok := weekdays[slot.Day]
		if !ok {
			continue
		}
		out[day] = append(out[day], OpeningWindow{
			Open:  formatClock(slot.Open),
			Close: formatClock(slot.Close),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func formatClock(s string) string {
	if len(s) != 4 {
		return s
	}
	return s[:2] + ":" + s[2:]
}
