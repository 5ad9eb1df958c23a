package gallery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoexifExtract(t *testing.T) {
	dir := t.TempDir()
	withDate := filepath.Join(dir, "dated.jpg")
	noDate := filepath.Join(dir, "undated.jpg")
	noExif := filepath.Join(dir, "plain.png")
	corrupt := filepath.Join(dir, "corrupt.jpg")

	writeJPEG(t, withDate, 16, 16, "2019:05:04 10:11:12", 0)
	writeJPEG(t, noDate, 16, 16, "", 1)
	writePNG(t, noExif, 16, 16)
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not a jpeg"), 0o644))

	m := testMetrics()
	e := &GoexifExtractor{metrics: m}

	taken, fields := e.Extract(withDate)
	assert.Equal(t, localUnix("2019:05:04 10:11:12"), taken)
	require.NotNil(t, fields)
	assert.Equal(t, "2019:05:04 10:11:12", fields["DateTimeOriginal"])

	// EXIF without a capture time keeps its fields
	taken, fields = e.Extract(noDate)
	assert.Zero(t, taken)
	require.NotNil(t, fields)
	assert.Equal(t, "1", fields["Orientation"])

	tests := []struct {
		name string
		path string
	}{
		{name: "no exif", path: noExif},
		{name: "corrupt", path: corrupt},
		{name: "missing", path: filepath.Join(dir, "missing.jpg")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taken, fields := e.Extract(tt.path)
			assert.Zero(t, taken)
			assert.Nil(t, fields)
		})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MetadataFailures.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MetadataFailures.WithLabelValues("unreadable")))
}

func TestNewExtractor(t *testing.T) {
	e, err := NewExtractor("", nil)
	require.NoError(t, err)
	assert.IsType(t, &GoexifExtractor{}, e)

	_, err = NewExtractor("magic", nil)
	require.Error(t, err)
}

func TestCachingExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 4, 4)
	backdate(t, path, time.Hour)

	f := &fakeExtractor{taken: map[string]int64{"a.png": 42}}
	c := NewCachingExtractor(f, time.Hour)

	for range 3 {
		taken, _ := c.Extract(path)
		assert.Equal(t, int64(42), taken)
	}
	assert.Equal(t, int64(1), f.calls.Load())
	assert.Equal(t, 1, c.Len())

	// a changed file is read again
	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))
	f.taken["a.png"] = 43
	taken, _ := c.Extract(path)
	assert.Equal(t, int64(43), taken)
	assert.Equal(t, int64(2), f.calls.Load())

	// missing files are never cached
	taken, fields := c.Extract(filepath.Join(dir, "gone.png"))
	assert.Zero(t, taken)
	assert.Nil(t, fields)
	assert.Equal(t, 1, c.Len())
	assert.NoError(t, c.Close())
}
