package extract

import (
	"regexp"
	"strings"
)

var knownNeighborhoods = []string{
	"Shibuya", "Shinjuku", "Harajuku", "Asakusa", "Ginza",
	"Roppongi", "Akihabara", "Ueno", "Ikebukuro", "Odaiba",
	"Nakano", "Kichijoji", "Shimokitazawa", "Daikanyama", "Ebisu",
	"Meguro", "Shinagawa", "Chiyoda", "Minato", "Taito",
}

var wardPattern = regexp.MustCompile(`(?i)(\w+)[-\s](?:ku|ward)`)

// Neighborhood guesses a Tokyo neighborhood from a free-form address: a known
// neighborhood name first, then a "<name>-ku" or "<name> Ward" form. It
// returns "" when nothing matches.
func Neighborhood(address string) string {
	if address == "" {
		return ""
	}
	lower := strings.ToLower(address)
	for _, n := range knownNeighborhoods {
		if strings.Contains(lower, strings.ToLower(n)) {
			return n
		}
	}
	if m := wardPattern.FindStringSubmatch(address); m != nil {
		return m[1]
	}
	return ""
}
