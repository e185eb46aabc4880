package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ModelTier trades output quality for LLM spend.
type ModelTier string

const (
	TierEconomy ModelTier = "economy"
	TierSmart   ModelTier = "smart"
	TierPremium ModelTier = "premium"
)

// ParseTier validates a tier name. An empty name means smart.
func ParseTier(s string) (ModelTier, error) {
	switch t := ModelTier(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TierSmart, nil
	case TierEconomy, TierSmart, TierPremium:
		return t, nil
	default:
		return "", eris.Errorf("config: unknown model tier %q", s)
	}
}

// TierModels is the per-stage model selection for one tier.
type TierModels struct {
	Tier       ModelTier
	Classify   string
	Generate   string
	Extract    string
	Rerank     string
	CostPerURL float64
	// Temperature for description generation; smart runs slightly cooler.
	GenerateTemperature float64
}

// Models resolves the models for a tier against the configured provider.
func (c *Config) Models(tier ModelTier) TierModels {
	fast, strong, best := c.Anthropic.HaikuModel, c.Anthropic.SonnetModel, c.Anthropic.OpusModel
	if c.LLM.Provider == "openai" {
		fast, strong, best = c.OpenAI.FastModel, c.OpenAI.StrongModel, c.OpenAI.StrongModel
	}

	switch tier {
	case TierEconomy:
		return TierModels{
			Tier: tier, Classify: fast, Generate: fast, Extract: fast, Rerank: fast,
			CostPerURL: c.Pricing.PerURL.Economy, GenerateTemperature: 0.85,
		}
	case TierPremium:
		return TierModels{
			Tier: tier, Classify: strong, Generate: best, Extract: strong, Rerank: fast,
			CostPerURL: c.Pricing.PerURL.Premium, GenerateTemperature: 0.85,
		}
	default:
		return TierModels{
			Tier: TierSmart, Classify: fast, Generate: strong, Extract: fast, Rerank: fast,
			CostPerURL: c.Pricing.PerURL.Smart, GenerateTemperature: 0.8,
		}
	}
}

// TargetScope picks which sitemaps feed a crawl.
type TargetScope string

const (
	ScopeHigh   TargetScope = "high"
	ScopeMedium TargetScope = "medium"
	ScopeLow    TargetScope = "low"
	ScopeAll    TargetScope = "all"
)

// ParseScope validates a scope name. An empty name means high.
func ParseScope(s string) (TargetScope, error) {
	switch sc := TargetScope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScopeHigh, nil
	case ScopeHigh, ScopeMedium, ScopeLow, ScopeAll:
		return sc, nil
	default:
		return "", eris.Errorf("config: unknown target scope %q", s)
	}
}

// SitemapURLs returns absolute sitemap URLs for a scope, in priority order.
func (c *Config) SitemapURLs(scope TargetScope) []string {
	var paths []string
	switch scope {
	case ScopeHigh:
		paths = c.Sitemaps.High
	case ScopeMedium:
		paths = c.Sitemaps.Medium
	case ScopeLow:
		paths = c.Sitemaps.Low
	case ScopeAll:
		paths = append(paths, c.Sitemaps.High...)
		paths = append(paths, c.Sitemaps.Medium...)
		paths = append(paths, c.Sitemaps.Low...)
	}

	base := c.Pipeline.SourceBaseURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			urls = append(urls, p)
			continue
		}
		urls = append(urls, base+strings.TrimPrefix(p, "/"))
	}
	return urls
}
