package gallery

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/patrickmn/go-cache"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"k8s.io/klog/v2"
)

var (
	// ErrNoMetadata means the file was readable but carried no EXIF block.
	ErrNoMetadata = errors.New("no embedded metadata")
	// ErrUnreadable means the file could not be opened or decoded.
	ErrUnreadable = errors.New("unreadable")
)

var exifDate = "2006:01:02 15:04:05"

// Extractor reads capture metadata from an image. Implementations never fail:
// a missing or unreadable file yields a zero timestamp and nil fields.
type Extractor interface {
	Extract(path string) (taken int64, fields map[string]string)
}

// NewExtractor returns the extractor named in the settings. Extractors that hold
// external resources also implement io.Closer.
func NewExtractor(name string, m *Metrics) (Extractor, error) {
	switch name {
	case "", "goexif":
		return &GoexifExtractor{metrics: m}, nil
	case "exiftool":
		e, err := NewExiftoolExtractor(m)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
}

// CloseExtractor releases e if it holds external resources.
func CloseExtractor(e Extractor) {
	c, ok := e.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		klog.Warningf("close extractor: %v", err)
	}
}

// logFailure reports an absorbed extraction failure. The reason only affects logging.
func logFailure(m *Metrics, path string, err error) {
	switch {
	case errors.Is(err, ErrNoMetadata):
		klog.V(1).Infof("no EXIF data in %s: %v", path, err)
		m.metadataFailure("none")
	default:
		klog.Infof("error reading EXIF data for %s: %v", path, err)
		m.metadataFailure("unreadable")
	}
}

type exifWalker struct {
	m map[string]string
}

func (w *exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			w.m[string(name)] = strings.TrimRight(s, "\x00 ")
			return nil
		}
	}
	w.m[string(name)] = tag.String()
	return nil
}

// GoexifExtractor reads EXIF in-process.
type GoexifExtractor struct {
	metrics *Metrics
}

// Extract implements Extractor.
func (g *GoexifExtractor) Extract(path string) (int64, map[string]string) {
	taken, fields, err := g.read(path)
	if err != nil {
		logFailure(g.metrics, path, err)
		return 0, nil
	}
	return taken, fields
}

func (g *GoexifExtractor) read(path string) (int64, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		if exif.IsCriticalError(err) {
			return 0, nil, fmt.Errorf("%w: decode: %w", ErrNoMetadata, err)
		}
		// non-critical errors still leave a usable x
		klog.V(2).Infof("partial EXIF in %s: %v", path, err)
	}

	w := &exifWalker{m: map[string]string{}}
	if err := x.Walk(w); err != nil {
		return 0, nil, fmt.Errorf("%w: walk: %w", ErrNoMetadata, err)
	}

	// a readable EXIF block without a capture time still yields its fields
	t, err := x.DateTime()
	if err != nil {
		klog.V(1).Infof("no capture time in %s: %v", path, err)
		return 0, w.m, nil
	}
	return t.Unix(), w.m, nil
}

// ExiftoolExtractor reads metadata by way of an external exiftool process.
type ExiftoolExtractor struct {
	mu      sync.Mutex
	et      *exiftool.Exiftool
	metrics *Metrics
}

// NewExiftoolExtractor starts exiftool. Close must be called to stop it.
func NewExiftoolExtractor(m *Metrics) (*ExiftoolExtractor, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	return &ExiftoolExtractor{et: et, metrics: m}, nil
}

// Extract implements Extractor.
func (e *ExiftoolExtractor) Extract(path string) (int64, map[string]string) {
	taken, fields, err := e.read(path)
	if err != nil {
		logFailure(e.metrics, path, err)
		return 0, nil
	}
	return taken, fields
}

func (e *ExiftoolExtractor) read(path string) (int64, map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	e.mu.Lock()
	fis := e.et.ExtractMetadata(path)
	e.mu.Unlock()

	if len(fis) == 0 {
		return 0, nil, fmt.Errorf("%w: exiftool returned nothing", ErrUnreadable)
	}
	fi := fis[0]
	if fi.Err != nil {
		return 0, nil, fmt.Errorf("%w: extract: %w", ErrUnreadable, fi.Err)
	}

	fields := map[string]string{}
	for k, v := range fi.Fields {
		klog.V(2).Infof("%q=%v", k, v)
		fields[k] = fmt.Sprint(v)
	}

	ds, err := fi.GetString("DateTimeOriginal")
	if err != nil {
		klog.V(1).Infof("no capture time in %s: %v", path, err)
		return 0, fields, nil
	}

	t, err := time.ParseInLocation(exifDate, ds, time.Local)
	if err != nil {
		klog.V(1).Infof("unparseable capture time %q in %s: %v", ds, path, err)
		return 0, fields, nil
	}
	return t.Unix(), fields, nil
}

// Close stops the exiftool process.
func (e *ExiftoolExtractor) Close() error {
	return e.et.Close()
}

type cached struct {
	modTime time.Time
	taken   int64
	fields  map[string]string
}

// CachingExtractor remembers results per path until the file changes, so that
// rebuilds in watch mode do not re-read unchanged images.
type CachingExtractor struct {
	next  Extractor
	cache *cache.Cache
}

// NewCachingExtractor wraps next; entries expire after ttl.
func NewCachingExtractor(next Extractor, ttl time.Duration) *CachingExtractor {
	return &CachingExtractor{next: next, cache: cache.New(ttl, 2*ttl)}
}

// Extract implements Extractor.
func (c *CachingExtractor) Extract(path string) (int64, map[string]string) {
	st, err := os.Stat(path)
	if err != nil {
		return c.next.Extract(path)
	}

	if v, ok := c.cache.Get(path); ok {
		if e, ok := v.(cached); ok && e.modTime.Equal(st.ModTime()) {
			return e.taken, e.fields
		}
	}

	taken, fields := c.next.Extract(path)
	c.cache.Set(path, cached{modTime: st.ModTime(), taken: taken, fields: fields}, cache.DefaultExpiration)
	return taken, fields
}

// Len is the number of cached entries.
func (c *CachingExtractor) Len() int {
	return c.cache.ItemCount()
}

// Close releases the wrapped extractor.
func (c *CachingExtractor) Close() error {
	CloseExtractor(c.next)
	return nil
}
