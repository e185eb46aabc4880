package geocode

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var addressReplacer = strings.NewReplacer(
	", Japan", "",
	"Tōkyō", "Tokyo",
	"Tokyo Metropolis", "Tokyo",
	"Kōtō-ku", "Koto-ku",
	"Ōta-ku", "Ota-ku",
	"Chūō-ku", "Chuo-ku",
)

// NormalizeAddress prepares a romanized address for geocoding: the country
// suffix is dropped, prefecture spellings are unified and long-vowel marks
// are folded to plain ASCII letters.
func NormalizeAddress(address string) string {
	s := addressReplacer.Replace(strings.TrimSpace(address))
	s = addressReplacer.Replace(foldMarks(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSuffix(s, ",")
}

func foldMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
