package faceerr

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestIsItemError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"missing landmark", &MissingLandmarkError{ID: 7, Len: 3}, true},
		{"wrapped image error", fmt.Errorf("worker 2: %w", &ImageError{ID: 4, Path: "000004.jpg", Err: os.ErrNotExist}), true},
		{"parse error", &ParseError{Line: 3, Err: errors.New("bad")}, false},
		{"format error", &FormatError{Name: "x.png"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsItemError(tt.err); got != tt.want {
				t.Errorf("IsItemError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStageOf(t *testing.T) {
	err := fmt.Errorf("flush: %w", &WriteError{Path: "/tmp/x.npy", Err: os.ErrPermission})
	if got := StageOf(err); got != StageWrite {
		t.Errorf("Expected stage %q, got %q", StageWrite, got)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("WriteError should unwrap to the underlying cause")
	}
	if got := StageOf(errors.New("plain")); got != "" {
		t.Errorf("Expected empty stage for plain error, got %q", got)
	}
}

func TestParseErrorMessage(t *testing.T) {
	err := &ParseError{Path: "landmarks.csv", Line: 4, Column: 3, Err: errors.New("not a number")}
	want := "landmarks.csv:4: column 3: not a number"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}
