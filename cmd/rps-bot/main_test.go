package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/rps-autoplay/internal/bot"
	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/cv"
)

func TestParseBBox(t *testing.T) {
	r, err := parseBBox("")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = parseBBox(" -1920, 10, 800 ,600 ")
	require.NoError(t, err)
	assert.Equal(t, cv.NewRegion(-1920, 10, 800, 600), *r)

	for _, bad := range []string{"1,2,3", "a,b,c,d", "0,0,0,10", "0,0,10,-5"} {
		_, err := parseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunOptionsKeepConfiguredCountdown(t *testing.T) {
	cfg := config.NewDefaultConfig()
	require.Equal(t, 5, cfg.GUI.CountdownSeconds)

	opts := runOptions(cfg, false, false, "", nil)
	assert.Equal(t, bot.ModeRun, opts.Mode)
	assert.Equal(t, 5, opts.CountdownSeconds)

	cfg.GUI.CountdownSeconds = 3
	bbox := cv.NewRegion(0, 0, 800, 600)
	opts = runOptions(cfg, true, false, "Game", &bbox)
	assert.Equal(t, bot.ModeCalibrateOnly, opts.Mode)
	assert.Equal(t, 3, opts.CountdownSeconds)
	assert.Equal(t, "Game", opts.TitleFilter)
	assert.Equal(t, &bbox, opts.BBox)

	opts = runOptions(cfg, false, true, "", nil)
	assert.Equal(t, bot.ModeUseSaved, opts.Mode)
	assert.Equal(t, 3, opts.CountdownSeconds)
}
