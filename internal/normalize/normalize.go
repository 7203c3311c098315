// Package normalize crops a face image around its eyes and mouth and resizes it
// to a fixed square.
package normalize

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/andresmejia3/faceprep/internal/faceerr"
	"github.com/andresmejia3/faceprep/internal/landmark"
	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Geometry holds the crop constants, all in pixels.
type Geometry struct {
	Crop        int // side of the square crop window
	EyeMargin   int // distance from the left eye to the left crop edge
	MouthMargin int // distance from the mouth line up to the top crop edge
	Output      int // side of the resized output
}

// DefaultGeometry is the 80px crop used for the aligned CelebA images.
var DefaultGeometry = Geometry{Crop: 80, EyeMargin: 20, MouthMargin: 60, Output: 80}

// Validate rejects geometries that cannot produce an image.
func (g Geometry) Validate() error {
	if g.Crop <= 0 || g.Output <= 0 {
		return fmt.Errorf("crop (%d) and output (%d) sizes must be positive", g.Crop, g.Output)
	}
	if g.EyeMargin < 0 || g.MouthMargin < 0 {
		return fmt.Errorf("margins must not be negative (eye %d, mouth %d)", g.EyeMargin, g.MouthMargin)
	}
	return nil
}

// Window returns the crop rectangle for an image of the given size.
//
// Horizontally the window starts EyeMargin left of the left eye. If that edge
// falls below 0 the window is pinned to the left border; otherwise, if the
// right eye plus EyeMargin passes width-1, it is pinned to end at width-1.
// The left check always wins. Vertically the window starts MouthMargin above
// the mean mouth height and is pinned the same way against 0 and height-1.
// Fractional edges are rounded half to even.
func Window(width, height int, rec landmark.Record, g Geometry) image.Rectangle {
	crop := float64(g.Crop)
	eye := float64(g.EyeMargin)
	mouth := float64(g.MouthMargin)

	var left, right float64
	switch {
	case rec.LeftEye.X-eye < 0:
		left = 0
		right = left + crop
	case rec.RightEye.X+eye > float64(width-1):
		// Keyed on the right eye, so a wide face can still overrun width-1.
		right = float64(width - 1)
		left = right - crop
	default:
		left = rec.LeftEye.X - eye
		right = left + crop
	}

	mouthY := (rec.LeftMouth.Y + rec.RightMouth.Y) / 2
	var upper, lower float64
	switch {
	case mouthY-mouth < 0:
		upper = 0
		lower = upper + crop
	case mouthY+(crop-mouth) > float64(height-1):
		lower = float64(height - 1)
		upper = lower - crop
	default:
		upper = mouthY - mouth
		lower = upper + crop
	}

	return image.Rectangle{
		Min: image.Point{X: roundEdge(left), Y: roundEdge(upper)},
		Max: image.Point{X: roundEdge(right), Y: roundEdge(lower)},
	}
}

func roundEdge(v float64) int {
	return int(math.RoundToEven(v))
}

// Image is a normalized face: packed 8-bit RGB, row-major, shape (Height, Width, 3).
type Image struct {
	ID     int
	Width  int
	Height int
	Pix    []uint8
}

// NRGBA converts the packed pixels back to an opaque image.
func (m *Image) NRGBA() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i, j := 0, 0; i < len(m.Pix); i, j = i+3, j+4 {
		dst.Pix[j+0] = m.Pix[i+0]
		dst.Pix[j+1] = m.Pix[i+1]
		dst.Pix[j+2] = m.Pix[i+2]
		dst.Pix[j+3] = 0xff
	}
	return dst
}

// Normalizer crops and resizes face images. The zero value is not usable; use New.
type Normalizer struct {
	Geometry Geometry
	Filter   imaging.ResampleFilter
}

// New returns a Normalizer with bicubic (Catmull-Rom) resampling.
func New(g Geometry) *Normalizer {
	return &Normalizer{Geometry: g, Filter: imaging.CatmullRom}
}

// Normalize crops src to its landmark window and resizes it to Output x Output.
// Parts of the window that fall outside src are black.
func (n *Normalizer) Normalize(id int, src image.Image, rec landmark.Record) *Image {
	b := src.Bounds()
	win := Window(b.Dx(), b.Dy(), rec, n.Geometry).Add(b.Min)

	canvas := imaging.New(win.Dx(), win.Dy(), color.Black)
	canvas = imaging.Paste(canvas, src, b.Min.Sub(win.Min))

	resized := imaging.Resize(canvas, n.Geometry.Output, n.Geometry.Output, n.Filter)
	return pack(id, resized)
}

// Process loads image id from dir and normalizes it with its landmarks.
func (n *Normalizer) Process(dir string, id int, table *landmark.Table) (*Image, error) {
	rec, err := table.Lookup(id)
	if err != nil {
		return nil, err
	}
	src, err := LoadImage(dir, id)
	if err != nil {
		return nil, err
	}
	return n.Normalize(id, src, rec), nil
}

func pack(id int, src *image.NRGBA) *Image {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := &Image{ID: id, Width: w, Height: h, Pix: make([]uint8, w*h*3)}
	di := 0
	for y := 0; y < h; y++ {
		si := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		for x := 0; x < w; x++ {
			out.Pix[di+0] = src.Pix[si+0]
			out.Pix[di+1] = src.Pix[si+1]
			out.Pix[di+2] = src.Pix[si+2]
			di += 3
			si += 4
		}
	}
	return out
}

// LoadImage decodes the source image of id from dir.
func LoadImage(dir string, id int) (image.Image, error) {
	path := filepath.Join(dir, landmark.ImageName(id))
	img, err := imaging.Open(path)
	if err != nil {
		return nil, &faceerr.ImageError{ID: id, Path: path, Err: err}
	}
	return img, nil
}

// SavedName is the file name Save uses for a normalized image.
func SavedName(img *Image) string {
	return fmt.Sprintf("resized_%d_%06d.jpg", img.Width, img.ID)
}

// Save writes img into dir as a JPEG and returns its path.
func Save(dir string, img *Image) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &faceerr.WriteError{Path: dir, Err: err}
	}
	path := filepath.Join(dir, SavedName(img))
	if err := imaging.Save(img.NRGBA(), path, imaging.JPEGQuality(95)); err != nil {
		return "", &faceerr.WriteError{Path: path, Err: err}
	}
	return path, nil
}
