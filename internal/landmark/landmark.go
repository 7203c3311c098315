package landmark

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/andresmejia3/faceprep/internal/faceerr"
)

// NumColumns is the fixed width of a landmark row: file name plus ten coordinates.
const NumColumns = 11

// Columns lists the landmark table header in its fixed order.
var Columns = [NumColumns]string{
	"image_name",
	"lefteye_x", "lefteye_y",
	"righteye_x", "righteye_y",
	"nose_x", "nose_y",
	"leftmouth_x", "leftmouth_y",
	"rightmouth_x", "rightmouth_y",
}

var imageNameRe = regexp.MustCompile(`^(\d+)\.jpg$`)

// Point is a pixel coordinate.
type Point struct {
	X, Y float64
}

// Record holds the five facial keypoints of one image.
type Record struct {
	Name       string
	LeftEye    Point
	RightEye   Point
	Nose       Point
	LeftMouth  Point
	RightMouth Point
}

// Values returns the ten coordinates in table column order.
func (r Record) Values() [10]float64 {
	return [10]float64{
		r.LeftEye.X, r.LeftEye.Y,
		r.RightEye.X, r.RightEye.Y,
		r.Nose.X, r.Nose.Y,
		r.LeftMouth.X, r.LeftMouth.Y,
		r.RightMouth.X, r.RightMouth.Y,
	}
}

func recordFromValues(name string, v [10]float64) Record {
	return Record{
		Name:       name,
		LeftEye:    Point{v[0], v[1]},
		RightEye:   Point{v[2], v[3]},
		Nose:       Point{v[4], v[5]},
		LeftMouth:  Point{v[6], v[7]},
		RightMouth: Point{v[8], v[9]},
	}
}

// Table is the parsed landmark source. Row i belongs to image ID i+1.
// It is never modified after parsing.
type Table struct {
	records []Record
}

// NewTable builds a table from already parsed records.
func NewTable(records []Record) *Table {
	out := make([]Record, len(records))
	copy(out, records)
	return &Table{records: out}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.records) }

// Records returns the rows in source order. The slice must not be modified.
func (t *Table) Records() []Record { return t.records }

// Lookup returns the landmarks of image id (1-based).
func (t *Table) Lookup(id int) (Record, error) {
	if id < 1 || id > len(t.records) {
		return Record{}, &faceerr.MissingLandmarkError{ID: id, Len: len(t.records)}
	}
	return t.records[id-1], nil
}

// Load opens and parses a landmark CSV file.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &faceerr.ParseError{Path: path, Err: err}
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		var pe *faceerr.ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return t, nil
}

// Parse reads a landmark table. The first row is a header and is ignored.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // row width is checked below so the error names the line
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return &Table{}, nil
		}
		return nil, &faceerr.ParseError{Line: 1, Err: err}
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &faceerr.ParseError{Line: line, Err: err}
		}
		if len(row) != NumColumns {
			return nil, &faceerr.ParseError{
				Line: line,
				Err:  fmt.Errorf("expected %d columns, got %d", NumColumns, len(row)),
			}
		}

		var vals [10]float64
		for i := 0; i < 10; i++ {
			raw := strings.TrimSpace(row[i+1])
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, &faceerr.ParseError{Line: line, Column: i + 2, Err: fmt.Errorf("%s: %q is not a number", Columns[i+1], raw)}
			}
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &faceerr.ParseError{Line: line, Column: i + 2, Err: fmt.Errorf("%s: %q is not a valid pixel coordinate", Columns[i+1], raw)}
			}
			vals[i] = v
		}
		records = append(records, recordFromValues(strings.TrimSpace(row[0]), vals))
	}

	return &Table{records: records}, nil
}

// ParseID extracts the integer ID from a "<digits>.jpg" image name.
func ParseID(name string) (int, error) {
	m := imageNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, &faceerr.FormatError{Name: name}
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &faceerr.FormatError{Name: name}
	}
	return id, nil
}

// ImageName returns the source file name of image id, e.g. "000042.jpg".
func ImageName(id int) string {
	return fmt.Sprintf("%06d.jpg", id)
}
