package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/discovery"
	"github.com/KevinLaRosa/yorimichi-workers/internal/pipeline"
)

var (
	crawlTier         string
	crawlScope        string
	crawlLimit        int
	crawlForce        bool
	crawlResume       bool
	crawlDryRun       bool
	crawlSitemapsFile string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Ingest places from the source sitemaps",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if crawlSitemapsFile != "" {
			sc, err := config.LoadSitemapsFile(crawlSitemapsFile)
			if err != nil {
				return err
			}
			cfg.Sitemaps = sc
		}
		tier, scope, err := tierAndScope(crawlTier, crawlScope)
		if err != nil {
			return err
		}
		f := newSitemapFetcher()

		if crawlDryRun {
			if err := cfg.Validate("estimate"); err != nil {
				return err
			}
			return printEstimate(ctx, cmd.OutOrStdout(), f, tier, scope)
		}

		env, err := initEnv(ctx, "crawl")
		if err != nil {
			return err
		}
		defer env.Close()

		ids, err := discovery.NewEnumerator(f, cfg.SitemapURLs(scope)).Enumerate(ctx, 0)
		if err != nil {
			return err
		}
		zap.L().Info("identifiers discovered",
			zap.Int("count", len(ids)),
			zap.String("scope", string(scope)),
			zap.String("tier", string(tier)),
		)

		p, err := env.initPipeline(crawlOptions{
			Tier:   tier,
			Limit:  crawlLimit,
			Force:  crawlForce || cfg.Pipeline.Force,
			Resume: crawlResume,
		})
		if err != nil {
			return err
		}

		stats, err := p.Run(ctx, ids)
		return finishRun(cmd.OutOrStdout(), pipeline.PassName, stats, err)
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlTier, "tier", "", "model tier: economy, smart or premium (default from config)")
	crawlCmd.Flags().StringVar(&crawlScope, "scope", "", "sitemap scope: high, medium, low or all (default from config)")
	crawlCmd.Flags().IntVar(&crawlLimit, "limit", 0, "max items to process after filtering, 0 for no limit")
	crawlCmd.Flags().BoolVar(&crawlForce, "force", false, "reprocess items already in a terminal state")
	crawlCmd.Flags().BoolVar(&crawlResume, "resume", false, "continue after the last checkpointed item")
	crawlCmd.Flags().BoolVar(&crawlDryRun, "dry-run", false, "print the cost estimate and exit")
	crawlCmd.Flags().StringVar(&crawlSitemapsFile, "sitemaps-file", "", "YAML file listing sitemaps per scope")
	rootCmd.AddCommand(crawlCmd)
}
