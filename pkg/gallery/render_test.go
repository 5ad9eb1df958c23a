package gallery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	bs, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bs, v))
}

func TestRender(t *testing.T) {
	c := buildSite(t)
	x := Collect(c, &GoexifExtractor{}, nil)
	require.NoError(t, Render(c, x))

	var idx IndexView
	readJSON(t, filepath.Join(c.OutputDir(), "index.json"), &idx)
	assert.Equal(t, "Photos", idx.Title)
	require.Len(t, idx.Galleries, 2)
	assert.Equal(t, "New Times", idx.Galleries[0].Name)
	assert.Equal(t, localUnix("2022:01:01 00:00:00"), idx.Galleries[0].DateTime)
	require.Len(t, idx.Galleries[0].Images, 1)
	assert.Equal(t, "/photos/new-times/thumbs/1.jpg", idx.Galleries[0].Images[0].ThumbSrc)

	var raw map[string]any
	readJSON(t, filepath.Join(c.OutputDir(), "secret", "gallery.json"), &raw)
	assert.Equal(t, false, raw["sitemap"])
	assert.Equal(t, "Photos: Secret", raw["title"])

	var visible map[string]any
	readJSON(t, filepath.Join(c.OutputDir(), "old_times", "gallery.json"), &visible)
	assert.NotContains(t, visible, "sitemap")

	for _, d := range []string{"old_times", "new-times", "secret"} {
		assert.FileExists(t, filepath.Join(c.OutputDir(), d, "1.jpg"))
	}
}

func TestCopyOriginals(t *testing.T) {
	c := buildSite(t)
	x := Collect(c, &fakeExtractor{}, nil)
	g := x.Gallery("old_times")
	require.NotNil(t, g)

	assert.Equal(t, 1, copyOriginals(g))
	assert.Equal(t, 0, copyOriginals(g), "unchanged originals are not copied again")

	require.NoError(t, os.WriteFile(filepath.Join(c.GalleriesDir(), "old_times", "1.jpg"), []byte("edited"), 0o644))
	assert.Equal(t, 1, copyOriginals(g))
}

func TestRenderSkipOriginals(t *testing.T) {
	c := buildSite(t)
	c.Gallery.SkipOriginals = true
	x := Collect(c, &fakeExtractor{}, nil)
	require.NoError(t, Render(c, x))

	assert.NoFileExists(t, filepath.Join(c.OutputDir(), "old_times", "1.jpg"))
	assert.FileExists(t, filepath.Join(c.OutputDir(), "old_times", "gallery.json"))
}
