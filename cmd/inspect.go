package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/faceprep/internal/batch"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [dir]",
	Short: "Verify the chunk files of an output directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		dir := settings.Output
		if len(args) == 1 {
			dir = args[0]
		}
		return runInspect(cmd.OutOrStdout(), dir)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(out io.Writer, dir string) error {
	report, err := batch.Verify(dir)
	if err != nil {
		return err
	}

	if m := report.Manifest; m != nil {
		fmt.Fprintf(out, "🆔 Run %s (%s), threshold %.2f, save step %d\n", m.RunID, m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Threshold, m.SaveStep)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CHUNK\tFIRST\tLAST\tIMAGES\tSHAPE")
	fmt.Fprintln(w, "-----\t-----\t----\t------\t-----")
	for _, c := range report.Chunks {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\n", c.Name, c.FirstID, c.LastID, c.Count(), c.Shape)
	}
	w.Flush()
	fmt.Fprintf(out, "📦 %d chunks, %d images\n", len(report.Chunks), report.Total)

	if !report.OK() {
		for _, p := range report.Problems {
			fmt.Fprintf(out, "❌ %s\n", p)
		}
		return fmt.Errorf("%s: %d problems found", dir, len(report.Problems))
	}
	fmt.Fprintln(out, "✅ Chunks are complete and contiguous")
	return nil
}
