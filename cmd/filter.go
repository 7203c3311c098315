package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/faceprep/internal/frontal"
	"github.com/andresmejia3/faceprep/internal/landmark"
	"github.com/spf13/cobra"
)

var filterOut string

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Score every face and report how many are frontal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFilter(cmd.OutOrStdout(), settings.Landmarks, settings.Threshold, filterOut)
	},
}

func init() {
	addInputFlags(filterCmd)
	filterCmd.Flags().StringVar(&filterOut, "ids-out", "", "Write the selected image IDs to this file, one per line")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(out io.Writer, path string, threshold float64, idsOut string) error {
	table, err := landmark.Load(path)
	if err != nil {
		return err
	}
	ids, err := frontal.Select(table, threshold)
	if err != nil {
		return err
	}
	st := frontal.Summarize(table, threshold)

	fmt.Fprintf(out, "🧑 Frontal faces: %d of %d (threshold %.2f)\n", st.Kept, st.Total, st.Threshold)
	if st.Total > 0 {
		fmt.Fprintf(out, "   score min %.3f / mean %.3f / max %.3f\n", st.Min, st.Mean, st.Max)
	}

	if idsOut == "" {
		return nil
	}
	f, err := os.Create(idsOut)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "📝 Wrote %d IDs to %s\n", len(ids), idsOut)
	return nil
}
