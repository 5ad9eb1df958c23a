package gallery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

const (
	indexFile   = "index.json"
	galleryFile = "gallery.json"
)

// Render writes the view models of x, and unless disabled mirrors the original
// images, into the site destination.
func Render(c *Config, x *Index) error {
	for _, g := range x.All {
		if !c.Gallery.SkipOriginals {
			copyOriginals(g)
		}
		if err := writeJSON(filepath.Join(g.OutDir, galleryFile), g.ViewModel()); err != nil {
			return fmt.Errorf("write gallery %s: %w", g.Name, err)
		}
	}

	if err := writeJSON(filepath.Join(c.OutputDir(), indexFile), x.ViewModel()); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// copyOriginals copies each source image of g into g.OutDir when the copy is
// missing, differs in size, or is older than the source. It returns the number copied.
func copyOriginals(g *Gallery) int {
	n := 0
	for _, i := range g.Images {
		src := i.InPath()
		dst := filepath.Join(g.OutDir, i.Name)

		sst, err := os.Stat(src)
		if err != nil {
			klog.Errorf("stat %s: %v", src, err)
			continue
		}

		dinfo, err := os.Stat(dst)
		if err == nil && sst.Size() == dinfo.Size() && !sst.ModTime().After(dinfo.ModTime()) {
			continue
		}

		klog.V(1).Infof("copying %s -> %s", src, dst)
		if err := copy.Copy(src, dst); err != nil {
			klog.Errorf("copy %s: %v", src, err)
			continue
		}
		n++
	}
	return n
}

func writeJSON(path string, v any) error {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	klog.V(1).Infof("writing %s", path)
	return os.WriteFile(path, bs, 0o644)
}
