// Package faceerr defines the error taxonomy of the preprocessing pipeline.
// Every error names the stage it came from so the CLI can report where a run died.
package faceerr

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline step that produced an error.
type Stage string

const (
	StageParse Stage = "parse"
	StageScore Stage = "score"
	StageCrop  Stage = "crop"
	StageWrite Stage = "write"
)

// StagedError is implemented by every error in this package.
type StagedError interface {
	error
	Stage() Stage
}

// ParseError reports a malformed landmark table. It is always fatal.
type ParseError struct {
	Path   string
	Line   int
	Column int // 1-based; 0 when the whole row is wrong
	Err    error
}

func (e *ParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "landmarks"
	}
	if e.Column > 0 {
		return fmt.Sprintf("%s:%d: column %d: %v", where, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", where, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
func (e *ParseError) Stage() Stage  { return StageParse }

// FormatError reports an image name that is not "<digits>.jpg".
type FormatError struct {
	Name string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("image name %q does not match <digits>.jpg", e.Name)
}

func (e *FormatError) Stage() Stage { return StageScore }

// MissingLandmarkError reports an image ID with no landmark row.
type MissingLandmarkError struct {
	ID  int
	Len int
}

func (e *MissingLandmarkError) Error() string {
	return fmt.Sprintf("image %d has no landmark record (table holds %d rows)", e.ID, e.Len)
}

func (e *MissingLandmarkError) Stage() Stage { return StageCrop }

// ImageError reports a source image that is missing or cannot be decoded.
type ImageError struct {
	ID   int
	Path string
	Err  error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %d (%s): %v", e.ID, e.Path, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }
func (e *ImageError) Stage() Stage  { return StageCrop }

// WriteError reports a failed chunk or image write.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
func (e *WriteError) Stage() Stage  { return StageWrite }

// IsItemError reports whether err only concerns a single image and may be skipped.
func IsItemError(err error) bool {
	var missing *MissingLandmarkError
	var img *ImageError
	return errors.As(err, &missing) || errors.As(err, &img)
}

// StageOf returns the stage recorded in err's chain, or "" when there is none.
func StageOf(err error) Stage {
	var se StagedError
	if errors.As(err, &se) {
		return se.Stage()
	}
	return ""
}
