package gallery

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	c := Defaults()
	c.Source = t.TempDir()
	c.Destination = t.TempDir()
	c.Gallery.Workers = 2
	return c
}

func testMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// writeJPEG writes a JPEG carrying an EXIF segment with the given capture time
// (empty for none) and orientation (0 for none).
func writeJPEG(t *testing.T, path string, w, h int, taken string, orientation uint16) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 90}))
	bs := buf.Bytes()

	app1 := exifSegment(taken, orientation)
	out := append([]byte{}, bs[:2]...)
	out = append(out, app1...)
	out = append(out, bs[2:]...)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value uint32
}

// exifSegment builds a little-endian APP1 EXIF segment.
func exifSegment(taken string, orientation uint16) []byte {
	le := binary.LittleEndian
	var ifd0 []ifdEntry
	if orientation != 0 {
		ifd0 = append(ifd0, ifdEntry{tag: 0x0112, typ: 3, count: 1, value: uint32(orientation)})
	}

	ifd0Size := uint32(2 + 12*len(ifd0) + 4)
	if taken != "" {
		ifd0Size += 12
	}
	exifIFD := 8 + ifd0Size
	strOffset := exifIFD + 2 + 12 + 4
	if taken != "" {
		ifd0 = append(ifd0, ifdEntry{tag: 0x8769, typ: 4, count: 1, value: exifIFD})
	}

	var tiff bytes.Buffer
	tiff.WriteString("II")
	binary.Write(&tiff, le, uint16(42))
	binary.Write(&tiff, le, uint32(8))
	binary.Write(&tiff, le, uint16(len(ifd0)))
	for _, e := range ifd0 {
		binary.Write(&tiff, le, e.tag)
		binary.Write(&tiff, le, e.typ)
		binary.Write(&tiff, le, e.count)
		binary.Write(&tiff, le, e.value)
	}
	binary.Write(&tiff, le, uint32(0))

	if taken != "" {
		s := append([]byte(taken), 0)
		binary.Write(&tiff, le, uint16(1))
		binary.Write(&tiff, le, uint16(0x9003))
		binary.Write(&tiff, le, uint16(2))
		binary.Write(&tiff, le, uint32(len(s)))
		binary.Write(&tiff, le, strOffset)
		binary.Write(&tiff, le, uint32(0))
		tiff.Write(s)
	}

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	seg := []byte{0xFF, 0xE1}
	seg = binary.BigEndian.AppendUint16(seg, uint16(len(payload)+2))
	return append(seg, payload...)
}

func localUnix(s string) int64 {
	t, err := time.ParseInLocation(exifDate, s, time.Local)
	if err != nil {
		panic(err)
	}
	return t.Unix()
}

func decodeSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	ic, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return ic.Width, ic.Height
}

// fakeExtractor returns fixed timestamps by base name and counts calls.
type fakeExtractor struct {
	taken map[string]int64
	calls atomic.Int64
}

func (f *fakeExtractor) Extract(path string) (int64, map[string]string) {
	f.calls.Add(1)
	ts, ok := f.taken[filepath.Base(path)]
	if !ok {
		return 0, nil
	}
	return ts, map[string]string{"DateTimeOriginal": time.Unix(ts, 0).Format(exifDate)}
}

// backdate sets a file's times to d in the past.
func backdate(t *testing.T, path string, d time.Duration) {
	t.Helper()
	ts := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, ts, ts))
}
