package extract

import (
	"regexp"
	"strings"
)

var (
	addressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Address:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Location:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)\d+-\d+-\d+\s+\w+,\s*\w+\s*Ward`),
	}

	hoursPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Hours?:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Open:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Opening hours?:?\s*([^\n]+)`),
		regexp.MustCompile(`(\d{1,2}:\d{2}\s*[–-]\s*\d{1,2}:\d{2})`),
	}

	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Price:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Cost:?\s*([^\n]+)`),
		regexp.MustCompile(`¥[\d,]+`),
		regexp.MustCompile(`(?i)(\d+\s*yen)`),
	}

	stationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Station|駅)[:\s]+([^\n,]+)`),
		regexp.MustCompile(`(?i)Nearest station:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Access:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)(\w+\s+Station)`),
	}
)

const (
	maxPriceMentions = 3
	maxStations      = 3
)

// group returns the first capture group of a match, or the whole match when
// the pattern has none.
func group(m []string) string {
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[0])
}

// firstMatch returns the result of the first pattern that matches text.
func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return group(m)
		}
	}
	return ""
}

// allMatches collects every match of every pattern, pattern by pattern.
func allMatches(patterns []*regexp.Regexp, text string) []string {
	var out []string
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out = append(out, group(m))
		}
	}
	return out
}

// priceMentions joins the first few price mentions with " | ".
func priceMentions(text string) string {
	mentions := allMatches(pricePatterns, text)
	if len(mentions) > maxPriceMentions {
		mentions = mentions[:maxPriceMentions]
	}
	return strings.Join(mentions, " | ")
}

// stations keeps the distinct mentions that name a station.
func stations(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range allMatches(stationPatterns, text) {
		if !strings.Contains(s, "Station") {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == maxStations {
			break
		}
	}
	return out
}
