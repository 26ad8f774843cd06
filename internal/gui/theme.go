package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// DefaultWindowSize fits the controls above a short log
var DefaultWindowSize = fyne.NewSize(720, 560)

var accent = color.NRGBA{R: 0, G: 137, B: 123, A: 255}

// BotTheme is the default theme locked to its dark variant with a teal accent
type BotTheme struct {
	fyne.Theme
}

// NewBotTheme wraps the fyne default theme
func NewBotTheme() *BotTheme {
	return &BotTheme{Theme: theme.DefaultTheme()}
}

func (t *BotTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return accent
	}
	return t.Theme.Color(name, theme.VariantDark)
}

func (t *BotTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNamePadding {
		return 3
	}
	return t.Theme.Size(name)
}
