package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"
)

// Scanner builds galleries from their source directories.
type Scanner struct {
	c       *Config
	extract Extractor
	thumbs  *ThumbnailCache
	workers int
	// decodes bounds live decoded images across every gallery sharing this scanner.
	decodes *semaphore.Weighted
}

// NewScanner returns a scanner for the site described by c.
func NewScanner(c *Config, e Extractor, t *ThumbnailCache) *Scanner {
	n := workerCount(c.Gallery.Workers)
	return &Scanner{
		c:       c,
		extract: e,
		thumbs:  t,
		workers: n,
		decodes: semaphore.NewWeighted(int64(n)),
	}
}

// listImages returns the sorted image file names in dir.
func listImages(dir string, exts []string) ([]string, error) {
	des, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	names := []string{}
	for _, de := range des {
		name := de.Name()
		if strings.HasPrefix(name, ".") || de.IsDir() {
			continue
		}
		if !slices.Contains(exts, strings.ToLower(filepath.Ext(name))) {
			klog.V(2).Infof("skipping %s: not an image", name)
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Images lists a gallery's images without touching thumbnails.
func (s *Scanner) Images(dirName string) []*Image {
	relDir := filepath.Join(s.c.Gallery.Dir, dirName)
	names, err := listImages(filepath.Join(s.c.Source, relDir), s.c.Gallery.Extensions)
	if err != nil {
		klog.Warningf("couldn't find gallery by name %q: %v", dirName, err)
		return nil
	}

	is := make([]*Image, 0, len(names))
	for _, n := range names {
		is = append(is, NewImage(n, relDir, s.c.Source, s.extract))
	}
	return is
}

// Scan builds the gallery in the dirName subdirectory of the galleries root,
// generating any stale thumbnails along the way.
func (s *Scanner) Scan(dirName string) *Gallery {
	gc := s.c.Gallery.For(dirName)
	relDir := filepath.Join(s.c.Gallery.Dir, dirName)

	g := &Gallery{
		DirName: dirName,
		Name:    displayName(dirName, gc),
		RelDir:  relDir,
		OutDir:  filepath.Join(s.c.Destination, relDir),
		Hidden:  gc.Hidden,
	}
	g.Title = s.c.Gallery.TitlePrefix + g.Name

	thumbDir := filepath.Join(g.OutDir, thumbDirName)
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		klog.Errorf("%s: mkdir %s: %v", g.Name, thumbDir, err)
	}

	g.Images = s.Images(dirName)
	s.thumbnails(g, thumbDir)

	taken := make(map[string]int64, len(g.Images))
	for _, i := range g.Images {
		taken[i.Name] = i.Taken()
	}

	sortImages(g.Images, gc.SortReverse)

	if len(g.Images) > 0 {
		g.BestImage = g.Images[0].Name
	}
	if gc.BestImage != "" {
		g.BestImage = gc.BestImage
	}

	t, ok := taken[g.BestImage]
	if !ok {
		klog.Warningf("%s: best_image %q not found!", g.Name, g.BestImage)
	}
	g.Taken = t

	klog.Infof("%s: %d images (%d thumbnails generated, %d cached, %d failed)",
		g.Name, len(g.Images), g.Thumbs.Generated, g.Thumbs.Cached, g.Thumbs.Failed)
	return g
}

// thumbnails extracts metadata and refreshes the thumbnail of every image in g.
// A failing image is logged and counted; it never stops the others.
func (s *Scanner) thumbnails(g *Gallery, thumbDir string) {
	box := s.c.Gallery.ThumbnailSize
	mode := s.c.Gallery.ScaleMethod
	results := make([]error, len(g.Images))
	generated := make([]bool, len(g.Images))

	var eg errgroup.Group
	eg.SetLimit(s.workers)
	for idx, i := range g.Images {
		eg.Go(func() error {
			i.Taken()

			if err := s.decodes.Acquire(context.Background(), 1); err != nil {
				results[idx] = err
				return nil
			}
			defer s.decodes.Release(1)

			generated[idx], results[idx] = s.thumbs.Ensure(i.InPath(), filepath.Join(thumbDir, i.Name), box, mode)
			klog.V(1).Infof("%s %d/%d images", g.Name, idx+1, len(g.Images))
			return nil
		})
	}
	_ = eg.Wait()

	for idx, err := range results {
		switch {
		case err != nil:
			klog.Errorf("error generating thumbnail for %s: %v", g.Images[idx].InPath(), err)
			g.Thumbs.Failed++
		case generated[idx]:
			g.Thumbs.Generated++
		default:
			g.Thumbs.Cached++
		}
	}
}

// sortImages orders images by capture time then name. Unless reversed, the
// result is then re-sorted by case-insensitive name, which takes precedence.
func sortImages(is []*Image, reverse bool) {
	slices.SortFunc(is, (*Image).Compare)
	if reverse {
		slices.Reverse(is)
		return
	}
	slices.SortStableFunc(is, func(a, b *Image) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}

var wordRe = regexp.MustCompile(`\w+`)

// displayName is the configured gallery name, or the humanized directory name.
func displayName(dirName string, gc GalleryConfig) string {
	if gc.Name != "" {
		return gc.Name
	}
	return humanize(dirName)
}

// humanize turns "summer_trip-2019" into "Summer Trip 2019".
func humanize(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return wordRe.ReplaceAllStringFunc(s, func(w string) string {
		return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	})
}
