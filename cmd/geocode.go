package main

import (
	"github.com/spf13/cobra"

	"github.com/KevinLaRosa/yorimichi-workers/internal/geocoding"
)

var (
	geocodeLimit  int
	geocodeResume bool
	geocodeTest   bool
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Fill in coordinates for places that only have an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initEnv(ctx, "geocode")
		if err != nil {
			return err
		}
		defer env.Close()

		r, err := env.initGeocodeRunner(geocoding.Options{
			Limit:  geocodeLimit,
			Resume: geocodeResume,
			Test:   geocodeTest,
		})
		if err != nil {
			return err
		}

		stats, err := r.Run(ctx)
		return finishRun(cmd.OutOrStdout(), geocoding.PassName, stats, err)
	},
}

func init() {
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", 0, "max places to geocode, 0 for no limit")
	geocodeCmd.Flags().BoolVar(&geocodeResume, "resume", false, "continue after the last checkpointed place")
	geocodeCmd.Flags().BoolVar(&geocodeTest, "test", false, "geocode without writing")
	rootCmd.AddCommand(geocodeCmd)
}
