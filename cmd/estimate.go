package main

import (
	"context"
	"io"
	"path"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/cost"
	"github.com/KevinLaRosa/yorimichi-workers/internal/discovery"
	"github.com/KevinLaRosa/yorimichi-workers/internal/estimate"
	"github.com/KevinLaRosa/yorimichi-workers/internal/fetcher"
)

var (
	estimateTier  string
	estimateScope string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the cost and duration of a crawl",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if err := cfg.Validate("estimate"); err != nil {
			return err
		}
		tier, scope, err := tierAndScope(estimateTier, estimateScope)
		if err != nil {
			return err
		}
		return printEstimate(ctx, cmd.OutOrStdout(), newSitemapFetcher(), tier, scope)
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimateTier, "tier", "", "model tier: economy, smart or premium (default from config)")
	estimateCmd.Flags().StringVar(&estimateScope, "scope", "", "sitemap scope: high, medium, low or all (default from config)")
	rootCmd.AddCommand(estimateCmd)
}

// tierAndScope resolves flag values, falling back to the configured ones.
func tierAndScope(tierFlag, scopeFlag string) (config.ModelTier, config.TargetScope, error) {
	if tierFlag == "" {
		tierFlag = cfg.Pipeline.ModelTier
	}
	if scopeFlag == "" {
		scopeFlag = cfg.Pipeline.TargetScope
	}
	tier, err := config.ParseTier(tierFlag)
	if err != nil {
		return "", "", err
	}
	scope, err := config.ParseScope(scopeFlag)
	if err != nil {
		return "", "", err
	}
	return tier, scope, nil
}

func printEstimate(ctx context.Context, w io.Writer, f fetcher.Fetcher, tier config.ModelTier, scope config.TargetScope) error {
	breakdown, err := sitemapBreakdown(ctx, f, cfg.SitemapURLs(scope))
	if err != nil {
		return err
	}
	calc := cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))
	est, err := estimate.Compute(breakdown, string(scope), tier, calc)
	if err != nil {
		return err
	}
	return estimate.Render(w, est)
}

// sitemapBreakdown counts the URLs listed by each sitemap. Unreadable
// sitemaps are left out of the breakdown.
func sitemapBreakdown(ctx context.Context, f fetcher.Fetcher, sitemaps []string) (map[string]int, error) {
	breakdown := make(map[string]int, len(sitemaps))
	for _, sm := range sitemaps {
		ids, err := discovery.NewEnumerator(f, []string{sm}).Enumerate(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("sitemap not counted", zap.String("sitemap", sm), zap.Error(err))
			continue
		}
		breakdown[path.Base(sm)] = len(ids)
	}
	if len(breakdown) == 0 {
		return nil, eris.New("estimate: no sitemap could be read")
	}
	return breakdown, nil
}
