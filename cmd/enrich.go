package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KevinLaRosa/yorimichi-workers/internal/enrich"
)

var (
	enrichFix    bool
	enrichLimit  int
	enrichTest   bool
	enrichResume bool
	enrichForce  bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Link stored places to Foursquare and merge their details",
	Long:  "Searches Foursquare for each stored place, picks the matching venue and merges its details and photos. With --fix, re-checks places that are already linked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		r, err := env.initEnrichRunner(enrich.Options{
			Fix:    enrichFix,
			Test:   enrichTest,
			Force:  enrichForce,
			Resume: enrichResume,
			Limit:  enrichLimit,
		})
		if err != nil {
			return err
		}

		pass := enrich.PassName
		if enrichFix {
			pass = enrich.FixPassName
		}
		stats, err := r.Run(ctx)
		return finishRun(cmd.OutOrStdout(), pass, stats, err)
	},
}

var markDuplicatesCmd = &cobra.Command{
	Use:   "mark-duplicates",
	Short: "Exclude places flagged as duplicates from future enrichment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := enrich.MarkDuplicates(ctx, env.Store)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d places marked ignored\n", n)
		return err
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichFix, "fix", false, "re-check places that already carry a Foursquare id")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max places to process, 0 for no limit")
	enrichCmd.Flags().BoolVar(&enrichTest, "test", false, "search and rerank without writing")
	enrichCmd.Flags().BoolVar(&enrichResume, "resume", false, "continue after the last checkpointed place")
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "include places that were already enriched")
	rootCmd.AddCommand(enrichCmd, markDuplicatesCmd)
}
