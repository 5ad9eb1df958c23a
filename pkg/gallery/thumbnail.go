package gallery

import (
	"fmt"
	"image"
	"image/gif"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
	"k8s.io/klog/v2"
)

// thumbDirName is the thumbnail directory within each gallery's output directory.
const thumbDirName = "thumbs"

// ThumbnailCache regenerates thumbnails only when their source has changed.
type ThumbnailCache struct {
	Quality int
	metrics *Metrics
}

// NewThumbnailCache returns a cache writing JPEGs at the given quality.
func NewThumbnailCache(quality int, m *Metrics) *ThumbnailCache {
	return &ThumbnailCache{Quality: quality, metrics: m}
}

// Stale reports whether dst is missing or older than src.
func (t *ThumbnailCache) Stale(src string, dst string) (bool, error) {
	sst, err := os.Stat(src)
	if err != nil {
		return false, fmt.Errorf("stat: %w", err)
	}

	dinfo, err := os.Stat(dst)
	if err != nil {
		klog.V(1).Infof("updating %s: does not exist", dst)
		return true, nil
	}

	if sst.ModTime().After(dinfo.ModTime()) {
		klog.V(1).Infof("updating %s: source newer", dst)
		return true, nil
	}
	return false, nil
}

// Ensure writes a thumbnail of src to dst if the existing one is stale.
// It returns true if a thumbnail was written.
func (t *ThumbnailCache) Ensure(src string, dst string, box ThumbSize, mode ScaleMode) (bool, error) {
	stale, err := t.Stale(src, dst)
	if err != nil {
		t.metrics.thumbnail("failed")
		return false, err
	}

	if !stale {
		klog.V(2).Infof("%s is up to date", dst)
		t.metrics.thumbnail("cached")
		return false, nil
	}

	if err := t.create(src, dst, box, mode); err != nil {
		t.metrics.thumbnail("failed")
		return false, fmt.Errorf("thumbnail %s: %w", src, err)
	}

	t.metrics.thumbnail("generated")
	return true, nil
}

func (t *ThumbnailCache) create(src string, dst string, box ThumbSize, mode ScaleMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	enc, err := encoderFor(dst, t.Quality)
	if err != nil {
		return err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	rimg, err := scale(img, box, mode)
	if err != nil {
		return err
	}

	klog.Infof("writing thumbnail to %s (%dx%d)", dst, rimg.Bounds().Dx(), rimg.Bounds().Dy())

	// a partially written file must never be newer than its source
	tmp := filepath.Join(filepath.Dir(dst), ".tmp-"+filepath.Base(dst))
	if err := imgio.Save(tmp, rimg, enc); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// scale resizes i into box according to mode.
func scale(i image.Image, box ThumbSize, mode ScaleMode) (image.Image, error) {
	w := i.Bounds().Dx()
	h := i.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image: %+v", i.Bounds())
	}

	switch mode {
	case ScaleFill:
		return imaging.Fill(i, box.X, box.Y, imaging.Center, imaging.Lanczos), nil
	case ScaleFit, "":
		x, y := fitSize(w, h, box)
		if x == w && y == h {
			return i, nil
		}
		return transform.Resize(i, x, y, transform.Lanczos), nil
	default:
		return nil, fmt.Errorf("unknown scale mode %q", mode)
	}
}

// fitSize returns the largest size within box that keeps the w:h aspect ratio.
// Images already within the box are left as they are.
func fitSize(w int, h int, box ThumbSize) (int, int) {
	s := math.Min(float64(box.X)/float64(w), float64(box.Y)/float64(h))
	if s >= 1 {
		return w, h
	}
	x := max(1, int(math.Round(float64(w)*s)))
	y := max(1, int(math.Round(float64(h)*s)))
	return x, y
}

func encoderFor(path string, quality int) (imgio.Encoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return imgio.JPEGEncoder(quality), nil
	case ".png":
		return imgio.PNGEncoder(), nil
	case ".gif":
		return func(w io.Writer, img image.Image) error {
			return gif.Encode(w, img, nil)
		}, nil
	default:
		return nil, fmt.Errorf("no encoder for %q", path)
	}
}
