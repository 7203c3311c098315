package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	resetLedger bool
	resetFiles  bool
	resetYes    bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Run Ledger, Chunk Files, Saved Images)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetLedger && !resetFiles {
			resetLedger = true
			resetFiles = true
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		if resetLedger {
			if confirm(out, reader, "⚠️  Are you sure you want to DROP all ledger tables?") {
				if err := openDB(cmd.Context(), true); err != nil {
					return err
				}
				fmt.Fprintln(out, "🗑️  Clearing Ledger...")
				if err := DB.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("failed to reset database: %w", err)
				}
			}
		}

		if resetFiles {
			dirs := []string{settings.Output}
			if settings.SaveDir != "" {
				dirs = append(dirs, settings.SaveDir)
			}
			if confirm(out, reader, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", strings.Join(dirs, " and "))) {
				fmt.Fprintln(out, "🗑️  Clearing Output Files...")
				for _, d := range dirs {
					removeDir(d)
				}
			}
		}

		fmt.Fprintln(out, "✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetLedger, "ledger", false, "Drop the PostgreSQL run ledger")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Delete the output directory (chunks, manifest) and --save-dir")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().StringP("output", "o", "batches", "Output directory to clear")
	resetCmd.Flags().String("save-dir", "", "Saved image directory to clear")
	rootCmd.AddCommand(resetCmd)
}

func confirm(out io.Writer, r *bufio.Reader, prompt string) bool {
	if resetYes {
		return true
	}
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
