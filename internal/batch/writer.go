// Package batch accumulates normalized images and checkpoints them to disk as
// fixed-size chunk files.
package batch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/faceprep/internal/faceerr"
	"github.com/andresmejia3/faceprep/internal/normalize"
	"github.com/kshedden/gonpy"
)

const (
	DefaultSaveStep    = 50000
	DefaultVerboseStep = 1000

	// ChunkExt is the extension of chunk files.
	ChunkExt = ".npy"
)

// Observer receives progress telemetry. It is advisory only.
type Observer interface {
	// Completed is called every VerboseStep processed items with the latest ID.
	Completed(id int)
	// Saved is called after each chunk is on disk.
	Saved(c Chunk, elapsed time.Duration)
	// Skipped is called for every item dropped with Skip.
	Skipped(id int, err error)
}

// Chunk describes one persisted batch.
type Chunk struct {
	Name    string `yaml:"name"`
	FirstID int    `yaml:"first_id"`
	LastID  int    `yaml:"last_id"`
	Count   int    `yaml:"count"`
	IDs     []int  `yaml:"ids,flow"`
}

// ChunkName returns the file name of a chunk covering [first, last].
func ChunkName(first, last int) string {
	return fmt.Sprintf("%06d_%06d%s", first, last, ChunkExt)
}

// Options configures a Writer.
type Options struct {
	Dir         string
	SaveStep    int
	VerboseStep int
	// Total is the length of the ID sequence; the item that reaches it forces the final flush.
	Total    int
	Observer Observer
}

// Writer is the single owner of the batch buffer. It is not safe for concurrent use.
type Writer struct {
	opts        Options
	buf         []*normalize.Image
	processed   int
	lastFlushed int
	tic         time.Time
	chunks      []Chunk
	skipped     []int
}

type nopObserver struct{}

func (nopObserver) Completed(int)              {}
func (nopObserver) Saved(Chunk, time.Duration) {}
func (nopObserver) Skipped(int, error)         {}

// NewWriter prepares the target directory and returns an empty Writer.
func NewWriter(opts Options) (*Writer, error) {
	if opts.SaveStep <= 0 {
		opts.SaveStep = DefaultSaveStep
	}
	if opts.VerboseStep <= 0 {
		opts.VerboseStep = DefaultVerboseStep
	}
	if opts.Total < 0 {
		return nil, fmt.Errorf("negative total %d", opts.Total)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, &faceerr.WriteError{Path: opts.Dir, Err: err}
	}

	capacity := opts.SaveStep
	if opts.Total < capacity {
		capacity = opts.Total
	}
	return &Writer{
		opts: opts,
		buf:  make([]*normalize.Image, 0, capacity),
		tic:  time.Now(),
	}, nil
}

// Append adds the next image of the sequence to the buffer.
func (w *Writer) Append(img *normalize.Image) error {
	if len(w.buf) > 0 {
		first := w.buf[0]
		if img.Width != first.Width || img.Height != first.Height {
			return fmt.Errorf("image %d is %dx%d, batch holds %dx%d", img.ID, img.Width, img.Height, first.Width, first.Height)
		}
	}
	w.buf = append(w.buf, img)
	return w.advance(img.ID)
}

// Skip records that id was dropped. It still counts toward the sequence so the
// final flush happens on the last ID.
func (w *Writer) Skip(id int, err error) error {
	w.skipped = append(w.skipped, id)
	w.opts.Observer.Skipped(id, err)
	return w.advance(id)
}

func (w *Writer) advance(id int) error {
	w.processed++
	if w.processed > w.opts.Total {
		return fmt.Errorf("item %d exceeds the declared sequence length %d", id, w.opts.Total)
	}

	if w.processed%w.opts.VerboseStep == 0 {
		w.opts.Observer.Completed(id)
	}

	if len(w.buf) >= w.opts.SaveStep || w.processed == w.opts.Total {
		return w.flush(id)
	}
	return nil
}

func (w *Writer) flush(id int) error {
	if len(w.buf) == 0 {
		return nil
	}

	c := Chunk{
		Name:    ChunkName(w.lastFlushed+1, id),
		FirstID: w.lastFlushed + 1,
		LastID:  id,
		Count:   len(w.buf),
		IDs:     make([]int, len(w.buf)),
	}
	for i, img := range w.buf {
		c.IDs[i] = img.ID
	}

	if err := writeChunk(filepath.Join(w.opts.Dir, c.Name), w.buf); err != nil {
		return err
	}

	w.opts.Observer.Saved(c, time.Since(w.tic))
	w.chunks = append(w.chunks, c)

	// Drop references so the images can be collected before the next batch fills.
	clear(w.buf)
	w.buf = w.buf[:0]
	w.lastFlushed = id
	w.tic = time.Now()
	return nil
}

// writeChunk stacks imgs into one (n, H, W, 3) uint8 array. The file appears
// under its final name only once it is complete.
func writeChunk(path string, imgs []*normalize.Image) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".chunk-*")
	if err != nil {
		return &faceerr.WriteError{Path: path, Err: err}
	}
	out := &tempChunk{Writer: bufio.NewWriterSize(tmp, 1<<20), f: tmp}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp.Name())
		}
	}()

	h, wd := imgs[0].Height, imgs[0].Width
	pix := make([]uint8, 0, len(imgs)*h*wd*3)
	for _, img := range imgs {
		pix = append(pix, img.Pix...)
	}

	nw, err := gonpy.NewWriter(out)
	if err != nil {
		return &faceerr.WriteError{Path: path, Err: err}
	}
	nw.Shape = []int{len(imgs), h, wd, 3}
	if err = nw.WriteUint8(pix); err != nil {
		return &faceerr.WriteError{Path: path, Err: err}
	}
	// WriteUint8 closes the writer but drops the error.
	if err = out.Close(); err != nil {
		return &faceerr.WriteError{Path: path, Err: err}
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return &faceerr.WriteError{Path: path, Err: err}
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return &faceerr.WriteError{Path: path, Err: err}
	}
	return nil
}

// tempChunk flushes and closes the temp file once, keeping the first error.
type tempChunk struct {
	*bufio.Writer
	f      *os.File
	closed bool
	err    error
}

func (c *tempChunk) Close() error {
	if c.closed {
		return c.err
	}
	c.closed = true
	c.err = c.Flush()
	if err := c.f.Close(); c.err == nil {
		c.err = err
	}
	return c.err
}

// Processed returns how many items have been appended or skipped.
func (w *Writer) Processed() int { return w.processed }

// Done reports whether the whole sequence has been processed and flushed.
func (w *Writer) Done() bool { return w.processed == w.opts.Total && len(w.buf) == 0 }

// Chunks returns the chunks written so far, in order.
func (w *Writer) Chunks() []Chunk { return w.chunks }

// Skipped returns the IDs dropped with Skip, in order.
func (w *Writer) Skipped() []int { return w.skipped }
