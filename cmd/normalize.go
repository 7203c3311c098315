package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/andresmejia3/faceprep/internal/landmark"
	"github.com/andresmejia3/faceprep/internal/normalize"
	"github.com/spf13/cobra"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <id>...",
	Short: "Normalize single images and save them as JPEGs",
	Long:  "Crops and resizes the given image IDs exactly as a run would, and writes resized_<size>_<id>.jpg into --save-dir.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ids := make([]int, len(args))
		for i, a := range args {
			id, err := strconv.Atoi(a)
			if err != nil || id < 1 {
				return fmt.Errorf("invalid image id %q", a)
			}
			ids[i] = id
		}
		dir := settings.SaveDir
		if dir == "" {
			dir = "processed"
		}
		return runNormalize(cmd.OutOrStdout(), settings.Landmarks, settings.Images, dir, ids)
	},
}

func init() {
	normalizeCmd.Flags().StringP("landmarks", "l", "list_landmarks_align_celeba.csv", "Path to the landmark CSV")
	normalizeCmd.Flags().StringP("images", "i", "img_align_celeba", "Directory holding the source <id>.jpg images")
	normalizeCmd.Flags().String("save-dir", "processed", "Directory the normalized JPEGs are written to")
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(out io.Writer, landmarks, images, dir string, ids []int) error {
	table, err := landmark.Load(landmarks)
	if err != nil {
		return err
	}
	n := normalize.New(normalize.DefaultGeometry)
	for _, id := range ids {
		img, err := n.Process(images, id, table)
		if err != nil {
			return err
		}
		path, err := normalize.Save(dir, img)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "🖼️  %s\n", path)
	}
	return nil
}
