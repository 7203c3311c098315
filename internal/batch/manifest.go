package batch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/andresmejia3/faceprep/internal/faceerr"
	"github.com/kshedden/gonpy"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file written next to the chunks of a run.
const ManifestName = "manifest.yaml"

var chunkNameRe = regexp.MustCompile(`^(\d{6,})_(\d{6,})\.npy$`)

// SkippedItem records an image dropped during a run.
type SkippedItem struct {
	ID    int    `yaml:"id"`
	Stage string `yaml:"stage"`
	Error string `yaml:"error"`
}

// Manifest describes a finished run and the chunks it produced.
type Manifest struct {
	RunID       string        `yaml:"run_id"`
	Fingerprint string        `yaml:"landmarks_fingerprint"`
	CreatedAt   time.Time     `yaml:"created_at"`
	Landmarks   string        `yaml:"landmarks"`
	Images      string        `yaml:"images"`
	Threshold   float64       `yaml:"threshold"`
	SaveStep    int           `yaml:"save_step"`
	Size        int           `yaml:"size"`
	Total       int           `yaml:"total"`
	Chunks      []Chunk       `yaml:"chunks"`
	Skipped     []SkippedItem `yaml:"skipped,omitempty"`
}

// WriteManifest stores m as dir/manifest.yaml.
func WriteManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &faceerr.WriteError{Path: path, Err: err}
	}
	return nil
}

// ReadManifest loads dir/manifest.yaml. A missing manifest returns fs.ErrNotExist.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// ChunkFile is one chunk found on disk.
type ChunkFile struct {
	Name    string
	FirstID int
	LastID  int
	Shape   []int
}

// Count returns the number of images stored in the chunk.
func (c ChunkFile) Count() int {
	if len(c.Shape) == 0 {
		return 0
	}
	return c.Shape[0]
}

// Report is the result of Verify.
type Report struct {
	Chunks   []ChunkFile
	Total    int
	Manifest *Manifest
	Problems []string
}

// OK reports whether no problems were found.
func (r *Report) OK() bool { return len(r.Problems) == 0 }

func (r *Report) problem(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify reads every chunk in dir in ID order and checks that together
// they form one gap-free, ordered sequence of equally shaped images.
func Verify(dir string) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var found []ChunkFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if cf, ok := parseChunkName(e.Name()); ok {
			found = append(found, cf)
		}
	}
	// Names grow past six digits, so order by ID rather than by string.
	sort.Slice(found, func(i, j int) bool {
		if found[i].FirstID != found[j].FirstID {
			return found[i].FirstID < found[j].FirstID
		}
		return found[i].LastID < found[j].LastID
	})

	r := &Report{}
	for _, cf := range found {
		if err := readChunkFile(filepath.Join(dir, cf.Name), &cf); err != nil {
			r.problem("%s: %v", cf.Name, err)
			continue
		}
		r.Chunks = append(r.Chunks, cf)
		r.Total += cf.Count()
	}

	for i, c := range r.Chunks {
		if c.LastID < c.FirstID {
			r.problem("%s: range is reversed", c.Name)
		}
		if c.Count() > c.LastID-c.FirstID+1 {
			r.problem("%s: holds %d images for a range of %d IDs", c.Name, c.Count(), c.LastID-c.FirstID+1)
		}
		if i == 0 {
			continue
		}
		prev := r.Chunks[i-1]
		if c.FirstID != prev.LastID+1 {
			r.problem("%s: expected to start at %d after %s", c.Name, prev.LastID+1, prev.Name)
		}
		if len(c.Shape) == 4 && len(prev.Shape) == 4 && (c.Shape[1] != prev.Shape[1] || c.Shape[2] != prev.Shape[2]) {
			r.problem("%s: image size %dx%d differs from %s", c.Name, c.Shape[2], c.Shape[1], prev.Name)
		}
	}

	m, err := ReadManifest(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		r.problem("%s: %v", ManifestName, err)
	default:
		r.Manifest = m
		checkManifest(r, m)
	}
	return r, nil
}

func checkManifest(r *Report, m *Manifest) {
	if len(m.Chunks) != len(r.Chunks) {
		r.problem("manifest lists %d chunks, found %d", len(m.Chunks), len(r.Chunks))
	}
	onDisk := make(map[string]ChunkFile, len(r.Chunks))
	for _, c := range r.Chunks {
		onDisk[c.Name] = c
	}

	stored := 0
	last := 0
	for _, mc := range m.Chunks {
		stored += mc.Count
		cf, ok := onDisk[mc.Name]
		if !ok {
			r.problem("manifest chunk %s is missing", mc.Name)
			continue
		}
		if cf.Count() != mc.Count || len(mc.IDs) != mc.Count {
			r.problem("%s: manifest count %d (%d ids), file holds %d", mc.Name, mc.Count, len(mc.IDs), cf.Count())
		}
		for _, id := range mc.IDs {
			if id <= last || id < mc.FirstID || id > mc.LastID {
				r.problem("%s: id %d out of order or outside [%d, %d]", mc.Name, id, mc.FirstID, mc.LastID)
				break
			}
			last = id
		}
	}
	if stored+len(m.Skipped) != m.Total {
		r.problem("manifest total %d, chunks hold %d and %d were skipped", m.Total, stored, len(m.Skipped))
	}
}

// parseChunkName extracts the ID range from a chunk file name.
func parseChunkName(name string) (ChunkFile, bool) {
	m := chunkNameRe.FindStringSubmatch(name)
	if m == nil {
		return ChunkFile{}, false
	}
	first, err1 := strconv.Atoi(m[1])
	last, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return ChunkFile{}, false
	}
	return ChunkFile{Name: name, FirstID: first, LastID: last}, true
}

// readChunkFile fills in the shape of cf from its header and checks that the
// file holds exactly the data the header describes.
func readChunkFile(path string, cf *ChunkFile) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// gonpy panics on a shape entry that is not an integer.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed header: %v", p)
		}
	}()
	nr, err := gonpy.NewReader(f)
	if err != nil {
		return err
	}
	cf.Shape = nr.Shape
	if nr.Dtype != "u1" || nr.ColumnMajor {
		return fmt.Errorf("unexpected dtype %s (fortran order %v)", nr.Dtype, nr.ColumnMajor)
	}
	if len(nr.Shape) != 4 || nr.Shape[3] != 3 {
		return fmt.Errorf("unexpected shape %v, want (n, h, w, 3)", nr.Shape)
	}

	want := int64(1)
	for _, d := range nr.Shape {
		want *= int64(d)
	}
	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if got := info.Size() - offset; got != want {
		return fmt.Errorf("holds %d data bytes, header describes %d", got, want)
	}
	return nil
}
