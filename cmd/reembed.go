package main

import (
	"github.com/spf13/cobra"

	"github.com/KevinLaRosa/yorimichi-workers/internal/reembed"
)

var (
	reembedLimit  int
	reembedResume bool
	reembedTest   bool
)

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Refresh vectors that predate enrichment or come from another embedding model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initEnv(ctx, "reembed")
		if err != nil {
			return err
		}
		defer env.Close()

		r, err := env.initReembedRunner(reembed.Options{
			Limit:  reembedLimit,
			Resume: reembedResume,
			Test:   reembedTest,
		})
		if err != nil {
			return err
		}

		stats, err := r.Run(ctx)
		return finishRun(cmd.OutOrStdout(), reembed.PassName, stats, err)
	},
}

func init() {
	reembedCmd.Flags().IntVar(&reembedLimit, "limit", 0, "max places to re-embed, 0 for no limit")
	reembedCmd.Flags().BoolVar(&reembedResume, "resume", false, "continue after the last checkpointed place")
	reembedCmd.Flags().BoolVar(&reembedTest, "test", false, "build and log the documents without embedding")
	rootCmd.AddCommand(reembedCmd)
}
