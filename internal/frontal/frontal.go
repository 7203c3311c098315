// Package frontal scores facial pose from landmarks and keeps the near-frontal images.
package frontal

import (
	"math"

	"github.com/andresmejia3/faceprep/internal/landmark"
)

// DefaultThreshold is the score an image must stay strictly below to be kept.
const DefaultThreshold = 15.0

// Score measures how far a face is from a level, symmetric, untilted pose.
// Lower is more frontal. The result is never negative.
func Score(rec landmark.Record) float64 {
	lx, ly := rec.LeftEye.X, rec.LeftEye.Y
	rx, ry := rec.RightEye.X, rec.RightEye.Y
	nx := rec.Nose.X
	lmx, rmx := rec.LeftMouth.X, rec.RightMouth.X

	eyeSymmetry := math.Abs((rx - nx) - (nx - lx))
	mouthSymmetry := math.Abs((rmx - nx) - (nx - lmx))
	eyeLevel := math.Abs(ly - ry)
	eyeAngle := math.Abs(math.Atan2(ry-ly, rx-lx) * 180 / math.Pi)

	return eyeSymmetry + mouthSymmetry + eyeLevel + eyeAngle
}

// Select returns, in table order, the IDs of every image whose score is below threshold.
// A row whose name is not "<digits>.jpg" aborts the selection with a FormatError.
func Select(t *landmark.Table, threshold float64) ([]int, error) {
	var ids []int
	for _, rec := range t.Records() {
		if Score(rec) >= threshold {
			continue
		}
		id, err := landmark.ParseID(rec.Name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats summarizes the score distribution of a table against a threshold.
type Stats struct {
	Total     int
	Kept      int
	Threshold float64
	Min       float64
	Max       float64
	Mean      float64
}

// Summarize scores every row of t.
func Summarize(t *landmark.Table, threshold float64) Stats {
	s := Stats{Total: t.Len(), Threshold: threshold}
	if s.Total == 0 {
		return s
	}
	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	var sum float64
	for _, rec := range t.Records() {
		v := Score(rec)
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		if v < threshold {
			s.Kept++
		}
	}
	s.Mean = sum / float64(s.Total)
	return s
}
