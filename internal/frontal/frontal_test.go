package frontal

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/andresmejia3/faceprep/internal/faceerr"
	"github.com/andresmejia3/faceprep/internal/landmark"
)

func rec(name string, v ...float64) landmark.Record {
	return landmark.Record{
		Name:       name,
		LeftEye:    landmark.Point{X: v[0], Y: v[1]},
		RightEye:   landmark.Point{X: v[2], Y: v[3]},
		Nose:       landmark.Point{X: v[4], Y: v[5]},
		LeftMouth:  landmark.Point{X: v[6], Y: v[7]},
		RightMouth: landmark.Point{X: v[8], Y: v[9]},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		r    landmark.Record
		want float64
	}{
		{
			name: "Perfectly frontal face",
			r:    rec("000001.jpg", 30, 40, 50, 40, 40, 55, 35, 70, 45, 70),
			want: 0,
		},
		{
			name: "Nose shifted right",
			// eye: |(50-44)-(44-30)| = 8, mouth: |(45-44)-(44-35)| = 8
			r:    rec("000002.jpg", 30, 40, 50, 40, 44, 55, 35, 70, 45, 70),
			want: 16,
		},
		{
			name: "Tilted eye line",
			// level diff 10, angle atan2(10, 10) = 45 degrees
			r:    rec("000003.jpg", 30, 40, 40, 50, 35, 55, 30, 70, 40, 70),
			want: 10 + 45,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.r)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Mirroring a face left/right (swapping eyes and mouth corners and negating x)
// must not change its score.
func TestScore_MirrorSymmetry(t *testing.T) {
	samples := []landmark.Record{
		rec("a", 69, 109, 106, 113, 77, 142, 73, 152, 108, 154),
		rec("b", 69, 110, 107, 112, 81, 135, 70, 151, 108, 153),
		rec("c", 76, 112, 104, 106, 108, 128, 74, 156, 98, 158),
		rec("d", 72, 113, 108, 108, 101, 138, 71, 155, 101, 151),
	}
	const width = 178.0
	for _, r := range samples {
		m := landmark.Record{
			LeftEye:    landmark.Point{X: width - r.RightEye.X, Y: r.RightEye.Y},
			RightEye:   landmark.Point{X: width - r.LeftEye.X, Y: r.LeftEye.Y},
			Nose:       landmark.Point{X: width - r.Nose.X, Y: r.Nose.Y},
			LeftMouth:  landmark.Point{X: width - r.RightMouth.X, Y: r.RightMouth.Y},
			RightMouth: landmark.Point{X: width - r.LeftMouth.X, Y: r.LeftMouth.Y},
		}
		a, b := Score(r), Score(m)
		if a < 0 {
			t.Errorf("%s: negative score %v", r.Name, a)
		}
		if math.Abs(a-b) > 1e-9 {
			t.Errorf("%s: score %v changed to %v under mirroring", r.Name, a, b)
		}
	}
}

func TestSelect_SingleFrontalRow(t *testing.T) {
	table := landmark.NewTable([]landmark.Record{
		rec("000001.jpg", 30, 40, 50, 40, 40, 55, 35, 70, 45, 70),
	})
	ids, err := Select(table, DefaultThreshold)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("Expected [1], got %v", ids)
	}
}

func TestSelect_ThresholdIsExclusive(t *testing.T) {
	// Score is exactly 16 (see TestScore).
	table := landmark.NewTable([]landmark.Record{
		rec("000001.jpg", 30, 40, 50, 40, 44, 55, 35, 70, 45, 70),
	})
	ids, _ := Select(table, 16)
	if len(ids) != 0 {
		t.Errorf("Expected tie at threshold to be excluded, got %v", ids)
	}
	ids, _ = Select(table, 16.0001)
	if len(ids) != 1 {
		t.Errorf("Expected row just under threshold to be kept, got %v", ids)
	}
}

func TestSelect_Monotonic(t *testing.T) {
	csv := `image_id,a,b,c,d,e,f,g,h,i,j
000001.jpg,69,109,106,113,77,142,73,152,108,154
000002.jpg,69,110,107,112,81,135,70,151,108,153
000003.jpg,76,112,104,106,108,128,74,156,98,158
000004.jpg,72,113,108,108,101,138,71,155,101,151
000005.jpg,66,114,112,112,86,119,71,147,104,150
000006.jpg,71,111,106,110,94,131,74,154,102,153
`
	table, err := landmark.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}

	prev := -1
	for th := 0.0; th <= 120; th += 2.5 {
		ids, err := Select(table, th)
		if err != nil {
			t.Fatalf("Select(%v) failed: %v", th, err)
		}
		if len(ids) < prev {
			t.Fatalf("Kept set shrank from %d to %d at threshold %v", prev, len(ids), th)
		}
		for i := 1; i < len(ids); i++ {
			if ids[i] <= ids[i-1] {
				t.Fatalf("IDs not ascending at threshold %v: %v", th, ids)
			}
		}
		prev = len(ids)
	}
}

func TestSelect_FormatError(t *testing.T) {
	table := landmark.NewTable([]landmark.Record{
		rec("face-1.png", 30, 40, 50, 40, 40, 55, 35, 70, 45, 70),
	})
	_, err := Select(table, DefaultThreshold)
	var fe *faceerr.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected FormatError, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	table := landmark.NewTable([]landmark.Record{
		rec("000001.jpg", 30, 40, 50, 40, 40, 55, 35, 70, 45, 70), // 0
		rec("000002.jpg", 30, 40, 50, 40, 44, 55, 35, 70, 45, 70), // 16
	})
	s := Summarize(table, DefaultThreshold)
	if s.Total != 2 || s.Kept != 1 {
		t.Errorf("Expected total 2 kept 1, got total %d kept %d", s.Total, s.Kept)
	}
	if s.Min != 0 || s.Max != 16 || s.Mean != 8 {
		t.Errorf("Unexpected stats: %+v", s)
	}
}
