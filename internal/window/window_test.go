package window

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jordanella.com/rps-autoplay/internal/cv"
)

func TestMatchTitle(t *testing.T) {
	list := []Window{
		{Title: "Notepad", Bounds: cv.NewRegion(0, 0, 800, 600)},
		{Title: "Hidden Game", Bounds: cv.Region{}},
		{Title: "My GAME Client", Bounds: cv.NewRegion(100, 50, 1280, 720)},
		{Title: "game (minimized)", Minimized: true},
	}

	w, ok := MatchTitle(list, "game client")
	assert.True(t, ok)
	assert.Equal(t, cv.NewRegion(100, 50, 1280, 720), w.Bounds)

	w, ok = MatchTitle(list, "game")
	assert.True(t, ok)
	assert.Equal(t, "My GAME Client", w.Title)

	w, ok = MatchTitle(list, "minimized")
	assert.True(t, ok)
	assert.True(t, w.Minimized)

	_, ok = MatchTitle(list, "browser")
	assert.False(t, ok)

	_, ok = MatchTitle(list, "  ")
	assert.False(t, ok)
}

func TestNopFinder(t *testing.T) {
	var f Finder = NopFinder{}
	_, ok := f.FindByTitle("x")
	assert.False(t, ok)
	_, ok = f.ForegroundClient()
	assert.False(t, ok)
	assert.NoError(t, f.Focus("x"))
}
