// Package gallery builds browsable photo galleries from a directory tree of images.
package gallery

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// ScaleMode controls how an image is resized into the thumbnail box.
type ScaleMode string

const (
	// ScaleFit preserves aspect ratio, bounded by the box.
	ScaleFit ScaleMode = "fit"
	// ScaleFill resizes and crops to exactly the box.
	ScaleFill ScaleMode = "fill"
)

// An explicit empty title or prefix is kept, so these are prefilled in Load
// rather than set by env-default.
const (
	defaultTitle       = "Photos"
	defaultTitlePrefix = "Photos: "
)

// DefaultExtensions are the image extensions recognized when none are configured.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// Config is a site configuration file, in the shape of a Jekyll _config.yml.
type Config struct {
	Source      string   `yaml:"source" env:"GALLERY_SOURCE" env-default:"."`
	Destination string   `yaml:"destination" env:"GALLERY_DESTINATION" env-default:"_site"`
	Gallery     Settings `yaml:"gallery"`
}

// ThumbSize is a thumbnail bounding box.
type ThumbSize struct {
	X int `yaml:"x" env-default:"400"`
	Y int `yaml:"y" env-default:"400"`
}

// Settings holds the gallery block of the site configuration.
type Settings struct {
	Dir           string                   `yaml:"dir" env:"GALLERY_DIR" env-default:"photos"`
	ThumbnailSize ThumbSize                `yaml:"thumbnail_size"`
	ScaleMethod   ScaleMode                `yaml:"scale_method" env:"GALLERY_SCALE_METHOD" env-default:"fit"`
	SortField     string                   `yaml:"sort_field" env:"GALLERY_SORT_FIELD" env-default:"date_time"`
	SortReverse   bool                     `yaml:"sort_reverse" env:"GALLERY_SORT_REVERSE"`
	Title         string                   `yaml:"title" env:"GALLERY_TITLE"`
	TitlePrefix   string                   `yaml:"title_prefix" env:"GALLERY_TITLE_PREFIX"`
	Galleries     map[string]GalleryConfig `yaml:"galleries"`

	Quality       int      `yaml:"quality" env:"GALLERY_QUALITY" env-default:"85"`
	Workers       int      `yaml:"workers"`
	Extractor     string   `yaml:"extractor" env:"GALLERY_EXTRACTOR" env-default:"goexif"`
	SkipOriginals bool     `yaml:"skip_originals" env:"GALLERY_SKIP_ORIGINALS"`
	Extensions    []string `yaml:"extensions"`
}

// GalleryConfig overrides settings for a single gallery directory.
type GalleryConfig struct {
	Name        string `yaml:"name"`
	Hidden      bool   `yaml:"hidden"`
	BestImage   string `yaml:"best_image"`
	SortReverse bool   `yaml:"sort_reverse"`
}

// Load reads a site configuration. An empty path yields the defaults plus any
// GALLERY_* environment overrides.
func Load(path string) (*Config, error) {
	c := &Config{Gallery: Settings{Title: defaultTitle, TitlePrefix: defaultTitlePrefix}}
	if path == "" {
		if err := cleanenv.ReadEnv(c); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, c); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	c.Gallery.normalize()
	if err := c.Gallery.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Defaults returns a configuration with every default applied.
func Defaults() *Config {
	c, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("defaults: %v", err))
	}
	return c
}

func (s *Settings) normalize() {
	if len(s.Extensions) == 0 {
		s.Extensions = DefaultExtensions
	}
	exts := make([]string, 0, len(s.Extensions))
	for _, e := range s.Extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	s.Extensions = exts
	s.ScaleMethod = ScaleMode(strings.ToLower(string(s.ScaleMethod)))
}

// Validate rejects settings the pipeline cannot act on.
func (s *Settings) Validate() error {
	switch s.ScaleMethod {
	case ScaleFit, ScaleFill:
	default:
		return fmt.Errorf("unknown scale_method %q: want %q or %q", s.ScaleMethod, ScaleFit, ScaleFill)
	}
	if s.ThumbnailSize.X <= 0 || s.ThumbnailSize.Y <= 0 {
		return fmt.Errorf("invalid thumbnail_size %dx%d", s.ThumbnailSize.X, s.ThumbnailSize.Y)
	}
	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("invalid quality %d", s.Quality)
	}
	return nil
}

// For returns the overrides for a gallery directory, or the zero value.
func (s *Settings) For(dirName string) GalleryConfig {
	return s.Galleries[dirName]
}

// GalleriesDir is the galleries root within the site source.
func (c *Config) GalleriesDir() string {
	return filepath.Join(c.Source, c.Gallery.Dir)
}

// OutputDir is the galleries root within the site destination.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Destination, c.Gallery.Dir)
}
