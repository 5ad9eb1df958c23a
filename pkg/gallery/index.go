package gallery

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Collect scans every gallery of the site described by c.
func Collect(c *Config, e Extractor, m *Metrics) *Index {
	s := NewScanner(c, e, NewThumbnailCache(c.Gallery.Quality, m))
	return NewBuilder(c, s, m).Build()
}

// Builder assembles the gallery index from the galleries root.
type Builder struct {
	c       *Config
	scanner *Scanner
	metrics *Metrics
}

// NewBuilder returns a builder that scans galleries with s.
func NewBuilder(c *Config, s *Scanner, m *Metrics) *Builder {
	return &Builder{c: c, scanner: s, metrics: m}
}

// Build scans every gallery and returns the index. Failures are logged and
// leave a best-effort, possibly partial, index.
func (b *Builder) Build() *Index {
	start := time.Now()
	root := b.c.GalleriesDir()
	klog.Infof("build: %s -> %s", root, b.c.OutputDir())

	dirs, err := galleryDirs(root)
	if err != nil {
		klog.Errorf("error generating galleries: %v", err)
	}

	gs := make([]*Gallery, len(dirs))
	var eg errgroup.Group
	eg.SetLimit(b.scanner.workers)
	for idx, d := range dirs {
		eg.Go(func() error {
			gs[idx] = b.scanner.Scan(d)
			return nil
		})
	}
	_ = eg.Wait()

	if err := sortGalleries(gs, b.c.Gallery.SortField); err != nil {
		klog.Warningf("error sorting galleries: %v", err)
	}
	if b.c.Gallery.SortReverse {
		slices.Reverse(gs)
	}

	x := &Index{Title: b.c.Gallery.Title, All: gs, Galleries: []*Gallery{}}
	for _, g := range gs {
		if g.Hidden {
			klog.V(1).Infof("%s is hidden: leaving it out of the index", g.Name)
			continue
		}
		x.Galleries = append(x.Galleries, g)
	}

	b.metrics.built(x, start)
	klog.Infof("index: %d galleries (%d hidden) in %s", len(x.Galleries), len(x.All)-len(x.Galleries), time.Since(start))
	return x
}

// galleryDirs returns the sorted names of the visible subdirectories of root.
func galleryDirs(root string) ([]string, error) {
	des, err := godirwalk.ReadDirents(root, nil)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	dirs := []string{}
	for _, de := range des {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		ok, err := de.IsDirOrSymlinkToDir()
		if err != nil {
			klog.Warningf("stat %s: %v", de.Name(), err)
			continue
		}
		if ok {
			dirs = append(dirs, de.Name())
		}
	}
	slices.Sort(dirs)
	return dirs, nil
}

// fieldComparer returns an ascending comparison of galleries by a view model field.
func fieldComparer(field string) (func(a, b *Gallery) int, error) {
	switch field {
	case "date_time":
		return func(a, b *Gallery) int { return cmp.Compare(a.Taken, b.Taken) }, nil
	case "name", "gallery":
		return func(a, b *Gallery) int { return strings.Compare(a.Name, b.Name) }, nil
	case "title":
		return func(a, b *Gallery) int { return strings.Compare(a.Title, b.Title) }, nil
	case "best_image":
		return func(a, b *Gallery) int { return strings.Compare(a.BestImage, b.BestImage) }, nil
	default:
		return nil, fmt.Errorf("unknown sort_field %q", field)
	}
}

// sortGalleries orders gs by field descending, breaking ties by name ascending.
// On error gs is left in its existing order.
func sortGalleries(gs []*Gallery, field string) error {
	f, err := fieldComparer(field)
	if err != nil {
		return err
	}
	slices.SortStableFunc(gs, func(a, b *Gallery) int {
		if c := f(b, a); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return nil
}
