package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:         "list [run-id]",
	Short:       "List recorded runs, or the chunks of one run",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{needsDB: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if len(args) == 1 {
			return runListChunks(cmd.Context(), cmd.OutOrStdout(), args[0])
		}
		return runList(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, out io.Writer) error {
	runs, err := DB.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTATUS\tSELECTED\tCHUNKS\tIMAGES\tOUTPUT\tSTARTED")
	fmt.Fprintln(w, "------\t------\t--------\t------\t------\t------\t-------")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n", r.ID, r.Status, r.Selected, r.Chunks, r.Images, r.Output, r.StartedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runListChunks(ctx context.Context, out io.Writer, runID string) error {
	chunks, err := DB.ListChunks(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}
	if len(chunks) == 0 {
		fmt.Fprintf(out, "No chunks recorded for run %s.\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CHUNK\tFIRST\tLAST\tIMAGES")
	fmt.Fprintln(w, "-----\t-----\t----\t------")
	for _, c := range chunks {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", c.Name, c.FirstID, c.LastID, c.Count)
	}
	return w.Flush()
}
