package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/faceprep/internal/faceerr"
)

// ShowError prints the unified error box. When err carries a pipeline stage
// it is printed too, together with the offending image or file.
func ShowError(w io.Writer, context string, err error) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🚨 FACEPREP ERROR: %s\n", context)
	if err != nil {
		if stage := faceerr.StageOf(err); stage != "" {
			fmt.Fprintf(w, "STAGE:   %s\n", stage)
		}
		if where := culprit(err); where != "" {
			fmt.Fprintf(w, "AT:      %s\n", where)
		}
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy: it prints the error box to stderr and exits 1.
func Die(context string, err error) {
	ShowError(os.Stderr, context, err)
	os.Exit(1)
}

func culprit(err error) string {
	var (
		parse   *faceerr.ParseError
		missing *faceerr.MissingLandmarkError
		img     *faceerr.ImageError
		write   *faceerr.WriteError
		format  *faceerr.FormatError
	)
	switch {
	case errors.As(err, &img):
		return fmt.Sprintf("image %d (%s)", img.ID, img.Path)
	case errors.As(err, &missing):
		return fmt.Sprintf("image %d", missing.ID)
	case errors.As(err, &parse):
		return fmt.Sprintf("%s line %d", parse.Path, parse.Line)
	case errors.As(err, &write):
		return write.Path
	case errors.As(err, &format):
		return format.Name
	}
	return ""
}

// Fingerprint creates a deterministic hash for a file based on its path,
// size, and modification time.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

// FormatDuration renders d as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
