package templates

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0o755))
	}
}

func writeGrayPNG(t *testing.T, path string, w, h int, v uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writePack(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i, label := range Labels {
		writeGrayPNG(t, filepath.Join(dir, label.FileName()), 10+i, 8, uint8(40*(i+1)))
	}
}

func TestParsePackName(t *testing.T) {
	w, h, ok := ParsePackName("1920x1080")
	assert.True(t, ok)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, ok = ParsePackName("1280X720")
	assert.True(t, ok)

	for _, bad := range []string{"default", "1920x", "x1080", "19x20x30", "0x10"} {
		_, _, ok := ParsePackName(bad)
		assert.False(t, ok, bad)
	}
}

func TestResolveExactMatch(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1920x1080", "1280x720", "default")

	dir, name, err := NewResolver(root, DefaultAspectTolerance).Resolve(1280, 720)
	require.NoError(t, err)
	assert.Equal(t, "1280x720", name)
	assert.Equal(t, filepath.Join(root, "1280x720"), dir)
}

func TestResolveBestFitNearSize(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1920x1080")

	dir, name, err := NewResolver(root, 0.02).Resolve(1918, 1079)
	require.NoError(t, err)
	assert.Equal(t, "1920x1080", name)
	assert.Equal(t, filepath.Join(root, "1920x1080"), dir)
}

func TestResolveBestFitPrefersClosestSize(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1920x1080", "1280x720", "1600x1200")

	_, name, err := NewResolver(root, 0.02).Resolve(1366, 768)
	require.NoError(t, err)
	assert.Equal(t, "1280x720", name)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1920x1080", "default")

	dir, name, err := NewResolver(root, 0.02).Resolve(1024, 768)
	require.NoError(t, err)
	assert.Equal(t, DefaultPackName, name)
	assert.Equal(t, filepath.Join(root, "default"), dir)
}

func TestResolveFallsBackToRoot(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "notapack")

	dir, name, err := NewResolver(root, 0.02).Resolve(800, 600)
	require.NoError(t, err)
	assert.Equal(t, "", name)
	assert.Equal(t, root, dir)
}

func TestResolveMissingLibrary(t *testing.T) {
	_, _, err := NewResolver(filepath.Join(t.TempDir(), "missing"), 0.02).Resolve(800, 600)
	assert.True(t, errors.Is(err, ErrPackNotFound))
}

func TestLoadPack(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "1920x1080")
	writePack(t, dir)

	pack, err := Load(dir, "1920x1080")
	require.NoError(t, err)
	assert.Equal(t, 1920, pack.NominalWidth)
	assert.Equal(t, 1080, pack.NominalHeight)

	tpls := pack.Templates()
	require.Len(t, tpls, 3)
	for i, tpl := range tpls {
		assert.Equal(t, Labels[i], tpl.Label)
		assert.Equal(t, 10+i, tpl.Width)
		assert.Equal(t, 8, tpl.Height)
		assert.Equal(t, uint8(40*(i+1)), tpl.Image.GrayAt(0, 0).Y)
	}
}

func TestLoadPackMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeGrayPNG(t, filepath.Join(dir, "win.png"), 4, 4, 10)
	writeGrayPNG(t, filepath.Join(dir, "draw.png"), 4, 4, 10)

	_, err := Load(dir, "")
	var loadErr *TemplateLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, filepath.Join(dir, "loss.png"), loadErr.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadPackUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "win.png"), []byte("not a png"), 0o644))

	_, err := Load(dir, "")
	var loadErr *TemplateLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, filepath.Join(dir, "win.png"), loadErr.Path)
}

func TestToGrayConvertsColor(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 7, 6))
	src.Set(5, 5, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	src.Set(6, 5, color.RGBA{A: 255})

	gray := ToGray(src)
	assert.Equal(t, image.Rect(0, 0, 2, 1), gray.Bounds())
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(1, 0).Y)
}

func TestCacheReusesPacks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "default")
	writePack(t, dir)

	cache := NewCache()
	p1, err := cache.Get(dir, DefaultPackName)
	require.NoError(t, err)
	p2, err := cache.Get(dir, DefaultPackName)
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}
