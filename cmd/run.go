package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/faceprep/internal/batch"
	"github.com/andresmejia3/faceprep/internal/config"
	"github.com/andresmejia3/faceprep/internal/frontal"
	"github.com/andresmejia3/faceprep/internal/pipeline"
	"github.com/andresmejia3/faceprep/internal/utils"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Select frontal faces, normalize them and write chunk files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runPipeline(cmd.Context(), cmd.OutOrStdout(), settings)
	},
}

func init() {
	addInputFlags(runCmd)
	runCmd.Flags().StringP("images", "i", "img_align_celeba", "Directory holding the source <id>.jpg images")
	runCmd.Flags().StringP("output", "o", "batches", "Directory the chunk files are written to")
	runCmd.Flags().Int("verbose-step", batch.DefaultVerboseStep, "Log a progress event every N processed images")
	runCmd.Flags().IntP("save-step", "s", batch.DefaultSaveStep, "Maximum number of images per chunk file")
	runCmd.Flags().IntP("workers", "w", 1, "Number of parallel normalization workers")
	runCmd.Flags().Bool("skip-errors", false, "Skip images that are missing or unreadable instead of aborting")
	runCmd.Flags().Bool("progress", true, "Show a progress bar on stderr")
	runCmd.Flags().String("save-dir", "", "Also write every normalized image as a JPEG into this directory")
	rootCmd.AddCommand(runCmd)
}

// addInputFlags registers the flags shared by every command that reads the landmark table.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("landmarks", "l", "list_landmarks_align_celeba.csv", "Path to the landmark CSV")
	cmd.Flags().Float64P("threshold", "t", frontal.DefaultThreshold, "Keep images whose frontal score is strictly below this value")
}

// runPipeline executes a full run and prints its summary.
func runPipeline(ctx context.Context, out io.Writer, s *config.Settings) error {
	fmt.Fprintf(os.Stderr, "📋 Landmarks: %s\n", s.Landmarks)
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Normalization Workers...\n", s.Workers)
	if s.SkipErrors {
		fmt.Fprintf(os.Stderr, "⚠️  Unreadable images will be skipped\n")
	}

	deps := pipeline.Deps{Logger: logger}
	if DB != nil {
		deps.Ledger = DB
	}
	if s.Progress {
		deps.Progress = os.Stderr // Write bar to Stderr
	}

	res, err := pipeline.Run(ctx, s, deps)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "📊 RUN SUMMARY\n")
	fmt.Fprintf(out, "---------------------------------------------------------\n")
	fmt.Fprintf(out, "🆔 Run ID:          %s\n", res.RunID)
	fmt.Fprintf(out, "🧑 Frontal Faces:   %d of %d (threshold %.2f)\n", res.Stats.Kept, res.Stats.Total, s.Threshold)
	fmt.Fprintf(out, "📦 Chunks Written:  %d (%d images) in %s\n", len(res.Chunks), res.Stored(), s.Output)
	for _, c := range res.Chunks {
		fmt.Fprintf(out, "   %s  %d images\n", c.Name, c.Count)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(out, "⏭️  Skipped Images:  %d\n", len(res.Skipped))
		for _, sk := range res.Skipped {
			fmt.Fprintf(out, "   %06d [%s] %s\n", sk.ID, sk.Stage, sk.Error)
		}
	}
	fmt.Fprintf(out, "⏱️  Elapsed:         %s\n", utils.FormatDuration(res.Elapsed))
	fmt.Fprintf(out, "---------------------------------------------------------\n")
	return nil
}
