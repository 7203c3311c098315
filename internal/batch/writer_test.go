package batch

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/faceprep/internal/faceerr"
	"github.com/andresmejia3/faceprep/internal/normalize"
	"github.com/kshedden/gonpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	completed []int
	saved     []Chunk
	skipped   []int
}

func (r *recorder) Completed(id int) {
	r.completed = append(r.completed, id)
}

func (r *recorder) Saved(c Chunk, _ time.Duration) {
	r.saved = append(r.saved, c)
}

func (r *recorder) Skipped(id int, _ error) {
	r.skipped = append(r.skipped, id)
}

// tiny returns a 2x2 image whose bytes all equal its ID.
func tiny(id int) *normalize.Image {
	return &normalize.Image{ID: id, Width: 2, Height: 2, Pix: bytes.Repeat([]byte{byte(id)}, 2*2*3)}
}

func TestWriter_ChunksByRange(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := NewWriter(Options{Dir: dir, SaveStep: 2, VerboseStep: 2, Total: 5, Observer: rec})
	require.NoError(t, err)

	for _, id := range []int{1, 2, 3, 4, 5} {
		require.NoError(t, w.Append(tiny(id)))
	}

	require.True(t, w.Done())
	require.Len(t, w.Chunks(), 3)
	assert.Equal(t, "000001_000002.npy", w.Chunks()[0].Name)
	assert.Equal(t, "000003_000004.npy", w.Chunks()[1].Name)
	assert.Equal(t, "000005_000005.npy", w.Chunks()[2].Name)
	assert.Equal(t, []int{2, 2, 1}, []int{w.Chunks()[0].Count, w.Chunks()[1].Count, w.Chunks()[2].Count})
	assert.Equal(t, []int{2, 4}, rec.completed)
	assert.Equal(t, w.Chunks(), rec.saved)

	f, err := os.Open(filepath.Join(dir, "000003_000004.npy"))
	require.NoError(t, err)
	defer f.Close()
	nr, err := gonpy.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 3}, nr.Shape)
	assert.False(t, nr.ColumnMajor)

	data, err := nr.GetUint8()
	require.NoError(t, err)
	require.Len(t, data, 2*2*2*3)
	assert.Equal(t, byte(3), data[0])
	assert.Equal(t, byte(4), data[len(data)-1])
}

func TestWriter_ChunkNamesFollowSparseIDs(t *testing.T) {
	w, err := NewWriter(Options{Dir: t.TempDir(), SaveStep: 2, Total: 3})
	require.NoError(t, err)

	for _, id := range []int{4, 9, 17} {
		require.NoError(t, w.Append(tiny(id)))
	}

	require.Len(t, w.Chunks(), 2)
	assert.Equal(t, "000001_000009.npy", w.Chunks()[0].Name)
	assert.Equal(t, []int{4, 9}, w.Chunks()[0].IDs)
	assert.Equal(t, "000010_000017.npy", w.Chunks()[1].Name)
}

func TestWriter_ExactMultipleWritesNoEmptyChunk(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Options{Dir: dir, SaveStep: 2, Total: 4})
	require.NoError(t, err)
	for id := 1; id <= 4; id++ {
		require.NoError(t, w.Append(tiny(id)))
	}
	assert.Len(t, w.Chunks(), 2)

	r, err := Verify(dir)
	require.NoError(t, err)
	assert.True(t, r.OK(), r.Problems)
	assert.Equal(t, 4, r.Total)
}

func TestWriter_SkipCountsTowardSequence(t *testing.T) {
	rec := &recorder{}
	w, err := NewWriter(Options{Dir: t.TempDir(), SaveStep: 10, Total: 3, Observer: rec})
	require.NoError(t, err)

	require.NoError(t, w.Append(tiny(1)))
	require.NoError(t, w.Append(tiny(2)))
	require.NoError(t, w.Skip(3, &faceerr.ImageError{ID: 3, Err: errors.New("corrupt")}))

	require.True(t, w.Done())
	require.Len(t, w.Chunks(), 1)
	assert.Equal(t, "000001_000003.npy", w.Chunks()[0].Name)
	assert.Equal(t, 2, w.Chunks()[0].Count)
	assert.Equal(t, []int{3}, w.Skipped())
	assert.Equal(t, []int{3}, rec.skipped)
	assert.Equal(t, 3, w.Processed())
}

func TestWriter_SkipsDoNotFillChunks(t *testing.T) {
	// A chunk closes once it holds SaveStep images; skipped IDs only widen its range.
	w, err := NewWriter(Options{Dir: t.TempDir(), SaveStep: 3, Total: 6})
	require.NoError(t, err)

	for id := 1; id <= 6; id++ {
		if id == 1 || id == 4 || id == 6 {
			require.NoError(t, w.Skip(id, errors.New("unreadable")))
			continue
		}
		require.NoError(t, w.Append(tiny(id)))
	}

	require.True(t, w.Done())
	require.Len(t, w.Chunks(), 1)
	assert.Equal(t, "000001_000005.npy", w.Chunks()[0].Name)
	assert.Equal(t, []int{2, 3, 5}, w.Chunks()[0].IDs)
	assert.Equal(t, 6, w.Processed())
}

func TestWriter_AllSkippedWritesNothing(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Options{Dir: dir, Total: 1})
	require.NoError(t, err)
	require.NoError(t, w.Skip(1, errors.New("gone")))

	assert.True(t, w.Done())
	assert.Empty(t, w.Chunks())
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestWriter_RejectsOverflowAndMixedSizes(t *testing.T) {
	w, err := NewWriter(Options{Dir: t.TempDir(), SaveStep: 5, Total: 2})
	require.NoError(t, err)
	require.NoError(t, w.Append(tiny(1)))

	odd := &normalize.Image{ID: 2, Width: 3, Height: 3, Pix: make([]byte, 27)}
	assert.Error(t, w.Append(odd))

	require.NoError(t, w.Append(tiny(2)))
	assert.Error(t, w.Append(tiny(3)))
}

func TestWriter_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Options{Dir: dir, SaveStep: 1, Total: 1})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	err = w.Append(tiny(1))
	var we *faceerr.WriteError
	assert.ErrorAs(t, err, &we)
}

func TestVerify_DetectsGapAndTruncation(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Options{Dir: dir, SaveStep: 2, Total: 4})
	require.NoError(t, err)
	for id := 1; id <= 4; id++ {
		require.NoError(t, w.Append(tiny(id)))
	}
	require.NoError(t, WriteManifest(dir, &Manifest{RunID: "r1", SaveStep: 2, Size: 2, Total: 4, Chunks: w.Chunks()}))

	r, err := Verify(dir)
	require.NoError(t, err)
	require.True(t, r.OK(), r.Problems)
	require.NotNil(t, r.Manifest)
	assert.Equal(t, "r1", r.Manifest.RunID)

	// Truncate the second chunk.
	path := filepath.Join(dir, "000003_000004.npy")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-1))

	r, err = Verify(dir)
	require.NoError(t, err)
	assert.False(t, r.OK())

	// Remove it entirely: the manifest no longer matches.
	require.NoError(t, os.Remove(path))
	r, err = Verify(dir)
	require.NoError(t, err)
	assert.False(t, r.OK())
}

func TestVerify_DetectsRangeGap(t *testing.T) {
	dir := t.TempDir()
	for _, c := range [][2]int{{1, 2}, {4, 5}} {
		require.NoError(t, writeChunk(filepath.Join(dir, ChunkName(c[0], c[1])), []*normalize.Image{tiny(c[0])}))
	}

	r, err := Verify(dir)
	require.NoError(t, err)
	require.Len(t, r.Chunks, 2)
	assert.Len(t, r.Problems, 1)
	assert.Nil(t, r.Manifest)
}

func TestManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		RunID:     "abc",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Threshold: 15,
		Total:     3,
		Chunks:    []Chunk{{Name: ChunkName(1, 3), FirstID: 1, LastID: 3, Count: 2, IDs: []int{1, 3}}},
		Skipped:   []SkippedItem{{ID: 2, Stage: string(faceerr.StageCrop), Error: "boom"}},
	}
	require.NoError(t, WriteManifest(dir, m))

	got, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	got.CreatedAt = m.CreatedAt
	assert.Equal(t, m, got)

	_, err = ReadManifest(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerify_OrdersChunksByID(t *testing.T) {
	dir := t.TempDir()
	for _, c := range [][2]int{{999999, 999999}, {1000000, 1000001}, {999990, 999998}} {
		require.NoError(t, writeChunk(filepath.Join(dir, ChunkName(c[0], c[1])), []*normalize.Image{tiny(c[0])}))
	}

	r, err := Verify(dir)
	require.NoError(t, err)
	assert.True(t, r.OK(), r.Problems)
	require.Len(t, r.Chunks, 3)
	assert.Equal(t, "999990_999998.npy", r.Chunks[0].Name)
	assert.Equal(t, "999999_999999.npy", r.Chunks[1].Name)
	assert.Equal(t, "1000000_1000001.npy", r.Chunks[2].Name)
}

func TestVerify_RejectsForeignFiles(t *testing.T) {
	dir := t.TempDir()

	// Right shape, wrong dtype.
	fw, err := gonpy.NewFileWriter(filepath.Join(dir, ChunkName(1, 1)))
	require.NoError(t, err)
	fw.Shape = []int{1, 2, 2, 3}
	require.NoError(t, fw.WriteFloat64(make([]float64, 12)))

	// Not an array at all.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChunkName(2, 2)), []byte("not numpy"), 0644))

	r, err := Verify(dir)
	require.NoError(t, err)
	assert.Empty(t, r.Chunks)
	assert.Len(t, r.Problems, 2)
}
