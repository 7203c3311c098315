package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/faceprep/internal/faceerr"
)

func TestShowError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "Image error names stage and file",
			err:  fmt.Errorf("normalize: %w", &faceerr.ImageError{ID: 7, Path: "img/000007.jpg", Err: errors.New("unexpected EOF")}),
			want: []string{"STAGE:   crop", "AT:      image 7 (img/000007.jpg)", "unexpected EOF"},
		},
		{
			name: "Parse error names line",
			err:  &faceerr.ParseError{Path: "lm.csv", Line: 3, Column: 2, Err: errors.New("bad float")},
			want: []string{"STAGE:   parse", "AT:      lm.csv line 3"},
		},
		{
			name: "Plain error has no stage",
			err:  errors.New("boom"),
			want: []string{"DETAILS: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ShowError(&buf, "Run failed", tt.err)
			out := buf.String()
			if !strings.Contains(out, "FACEPREP ERROR: Run failed") {
				t.Errorf("Missing header in %q", out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("Expected %q in output:\n%s", w, out)
				}
			}
			if tt.err != nil && faceerr.StageOf(tt.err) == "" && strings.Contains(out, "STAGE:") {
				t.Errorf("Unexpected stage line:\n%s", out)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	// Integration test using the OS filesystem
	tmp, err := os.CreateTemp("", "landmarks_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write([]byte("image_id,lefteye_x\n")); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	id, err := Fingerprint(tmp.Name())
	if err != nil || id == "" {
		t.Errorf("Failed to fingerprint: %v", err)
	}

	// Verify Determinism
	id2, _ := Fingerprint(tmp.Name())
	if id != id2 {
		t.Errorf("Hash is not deterministic. Got %s, then %s", id, id2)
	}

	// Verify Sensitivity (Change content -> Change ID)
	f, _ := os.OpenFile(tmp.Name(), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte("000001.jpg,69\n"))
	f.Close()

	id3, _ := Fingerprint(tmp.Name())
	if id == id3 {
		t.Error("Hash did not change after file modification")
	}

	if _, err := Fingerprint(tmp.Name() + ".missing"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{61 * time.Minute, "01:01:00"},
		{25*time.Hour + 30*time.Second, "25:00:30"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
