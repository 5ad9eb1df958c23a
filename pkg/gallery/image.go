package gallery

import (
	"cmp"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Image is a single photo within a gallery.
type Image struct {
	Name string
	// RelDir is the gallery directory relative to the site source root.
	RelDir string

	root    string
	extract Extractor

	once   sync.Once
	taken  int64
	fields map[string]string
}

// NewImage returns an image named name in relDir, read relative to root.
// Metadata is extracted lazily, at most once.
func NewImage(name string, relDir string, root string, e Extractor) *Image {
	return &Image{Name: name, RelDir: relDir, root: root, extract: e}
}

// Path is the image path relative to the site source root.
func (i *Image) Path() string {
	return filepath.Join(i.RelDir, i.Name)
}

// InPath is the path the image is read from.
func (i *Image) InPath() string {
	return filepath.Join(i.root, i.Path())
}

func (i *Image) load() {
	i.once.Do(func() {
		if i.extract == nil {
			return
		}
		i.taken, i.fields = i.extract.Extract(i.InPath())
	})
}

// Taken is the capture time in Unix seconds, or 0 if unknown.
func (i *Image) Taken() int64 {
	i.load()
	return i.taken
}

// Metadata is the flattened EXIF dump, or nil if none could be read.
func (i *Image) Metadata() map[string]string {
	i.load()
	return i.fields
}

// Compare orders images by capture time, then by name.
func (i *Image) Compare(o *Image) int {
	if c := cmp.Compare(i.Taken(), o.Taken()); c != 0 {
		return c
	}
	return strings.Compare(i.Name, o.Name)
}

// ImageView is the serializable form of an Image.
type ImageView struct {
	Name     string            `json:"name"`
	Src      string            `json:"src"`
	ThumbSrc string            `json:"thumb_src"`
	DateTime int64             `json:"date_time"`
	Exif     map[string]string `json:"exif"`
}

// ViewModel returns the serializable form of the image.
func (i *Image) ViewModel() ImageView {
	dir := filepath.ToSlash(i.RelDir)
	return ImageView{
		Name:     i.Name,
		Src:      "/" + path.Join(dir, i.Name),
		ThumbSrc: "/" + path.Join(dir, thumbDirName, i.Name),
		DateTime: i.Taken(),
		Exif:     i.Metadata(),
	}
}

// Gallery is one directory of images.
type Gallery struct {
	// DirName is the directory base name, which keys per-gallery configuration.
	DirName string
	Name    string
	Title   string
	// RelDir is the gallery directory relative to the site source root.
	RelDir string
	// OutDir is where thumbnails and originals are written.
	OutDir string

	Images    []*Image
	BestImage string
	// Taken is the capture time of the best image.
	Taken  int64
	Hidden bool

	Thumbs ThumbStats
}

// ThumbStats counts thumbnail outcomes for a gallery scan.
type ThumbStats struct {
	Generated int
	Cached    int
	Failed    int
}

// Image returns the image with the given name, or nil.
func (g *Gallery) Image(name string) *Image {
	for _, i := range g.Images {
		if i.Name == name {
			return i
		}
	}
	return nil
}

// GalleryView is the serializable form of a Gallery.
type GalleryView struct {
	BestImage string            `json:"best_image"`
	Gallery   string            `json:"gallery"`
	Images    []ImageView       `json:"images"`
	DateTime  int64             `json:"date_time"`
	Name      string            `json:"name"`
	Title     string            `json:"title"`
	Exif      map[string]string `json:"exif"`
	Sitemap   *bool             `json:"sitemap,omitempty"`
}

// ViewModel returns the serializable form of the gallery.
func (g *Gallery) ViewModel() GalleryView {
	is := make([]ImageView, 0, len(g.Images))
	for _, i := range g.Images {
		is = append(is, i.ViewModel())
	}

	v := GalleryView{
		BestImage: g.BestImage,
		Gallery:   g.Name,
		Images:    is,
		DateTime:  g.Taken,
		Name:      g.Name,
		Title:     g.Title,
		Exif:      map[string]string{},
	}
	if g.Hidden {
		noSitemap := false
		v.Sitemap = &noSitemap
	}
	return v
}

// Index is the ordered list of galleries.
type Index struct {
	Title string
	// Galleries are the visible galleries in index order.
	Galleries []*Gallery
	// All holds every scanned gallery, hidden ones included, in index order.
	All []*Gallery
}

// Gallery returns the scanned gallery for a directory name, hidden or not.
func (x *Index) Gallery(dirName string) *Gallery {
	for _, g := range x.All {
		if g.DirName == dirName {
			return g
		}
	}
	return nil
}

// IndexView is the serializable form of an Index.
type IndexView struct {
	Title     string        `json:"title"`
	Galleries []GalleryView `json:"galleries"`
}

// ViewModel returns the serializable form of the index.
func (x *Index) ViewModel() IndexView {
	gs := make([]GalleryView, 0, len(x.Galleries))
	for _, g := range x.Galleries {
		gs = append(gs, g.ViewModel())
	}
	return IndexView{Title: x.Title, Galleries: gs}
}
