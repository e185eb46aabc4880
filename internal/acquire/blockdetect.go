package acquire

import (
	"net/http"
	"strings"
)

// BlockType names the anti-bot page a proxy handed back instead of content.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// blockRule matches one kind of interstitial. Rules with maxBody only look
// at pages shorter than that; real articles often embed captcha or noscript
// snippets for comment forms.
type blockRule struct {
	kind    BlockType
	maxBody int
	match   func(status int, h http.Header, body string) bool
}

func containsAll(body string, needles ...string) bool {
	for _, n := range needles {
		if !strings.Contains(body, n) {
			return false
		}
	}
	return true
}

var blockRules = []blockRule{
	{kind: BlockCloudflare, match: func(status int, h http.Header, _ string) bool {
		if status != http.StatusForbidden && status != http.StatusServiceUnavailable {
			return false
		}
		return h.Get("Cf-Ray") != "" || h.Get("Cf-Cache-Status") != "" || strings.EqualFold(h.Get("Server"), "cloudflare")
	}},
	{kind: BlockCloudflare, match: func(_ int, _ http.Header, body string) bool {
		return strings.Contains(body, "checking your browser") ||
			strings.Contains(body, "cf-browser-verification") ||
			containsAll(body, "cloudflare", "challenge")
	}},
	{kind: BlockCaptcha, maxBody: 5000, match: func(_ int, _ http.Header, body string) bool {
		return strings.Contains(body, "captcha")
	}},
	{kind: BlockJSShell, maxBody: 2000, match: func(_ int, _ http.Header, body string) bool {
		return containsAll(body, "<noscript", "javascript") ||
			strings.Contains(body, `http-equiv="refresh"`)
	}},
}

// DetectBlock returns the kind of interstitial in a proxied response, or
// BlockNone for a real page.
func DetectBlock(status int, header http.Header, body []byte) BlockType {
	lower := strings.ToLower(string(body))
	for _, r := range blockRules {
		if r.maxBody > 0 && len(body) >= r.maxBody {
			continue
		}
		if r.match(status, header, lower) {
			return r.kind
		}
	}
	return BlockNone
}
