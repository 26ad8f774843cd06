package templates

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/gift"
)

// Label is the classification assigned to a result screen
type Label string

const (
	LabelNone Label = ""
	LabelWin  Label = "win"
	LabelLoss Label = "loss"
	LabelDraw Label = "draw"
)

// Labels lists the required labels in match order
var Labels = []Label{LabelWin, LabelLoss, LabelDraw}

// Valid reports whether l is one of the known labels
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// FileName returns the reference image name for the label
func (l Label) FileName() string {
	return string(l) + ".png"
}

// ErrPackNotFound is returned when the template library cannot be resolved at all
var ErrPackNotFound = errors.New("template pack not found")

// TemplateLoadError reports a missing or unreadable reference image
type TemplateLoadError struct {
	Path string
	Err  error
}

func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("failed to load template %s: %v", e.Path, e.Err)
}

func (e *TemplateLoadError) Unwrap() error {
	return e.Err
}

// Template is a single grayscale reference image
type Template struct {
	Label  Label
	Path   string
	Image  *image.Gray
	Width  int
	Height int
}

// Pack is the set of reference images for one nominal resolution
type Pack struct {
	Name          string
	Dir           string
	NominalWidth  int
	NominalHeight int
	templates     map[Label]*Template
}

// DisplayName returns the pack name, or "(root)" for a flat library
func (p *Pack) DisplayName() string {
	if p.Name == "" {
		return "(root)"
	}
	return p.Name
}

// Get returns the template for a label
func (p *Pack) Get(label Label) (*Template, bool) {
	t, ok := p.templates[label]
	return t, ok
}

// Templates returns the templates in match order
func (p *Pack) Templates() []*Template {
	out := make([]*Template, 0, len(Labels))
	for _, label := range Labels {
		if t, ok := p.templates[label]; ok {
			out = append(out, t)
		}
	}
	return out
}

// NewPack builds a pack from already decoded images. Missing labels are an error.
func NewPack(name, dir string, images map[Label]*image.Gray) (*Pack, error) {
	p := &Pack{Name: name, Dir: dir, templates: make(map[Label]*Template, len(Labels))}
	p.NominalWidth, p.NominalHeight, _ = ParsePackName(name)
	for _, label := range Labels {
		img, ok := images[label]
		if !ok || img == nil {
			return nil, &TemplateLoadError{Path: filepath.Join(dir, label.FileName()), Err: os.ErrNotExist}
		}
		b := img.Bounds()
		p.templates[label] = &Template{
			Label:  label,
			Path:   filepath.Join(dir, label.FileName()),
			Image:  img,
			Width:  b.Dx(),
			Height: b.Dy(),
		}
	}
	return p, nil
}

// Load reads win.png, loss.png and draw.png from dir as 8-bit grayscale
func Load(dir, name string) (*Pack, error) {
	images := make(map[Label]*image.Gray, len(Labels))
	for _, label := range Labels {
		path := filepath.Join(dir, label.FileName())
		img, err := loadGray(path)
		if err != nil {
			return nil, &TemplateLoadError{Path: path, Err: err}
		}
		images[label] = img
	}
	return NewPack(name, dir, images)
}

// LoadBound loads a pack previously bound by calibration. An empty name is the library root.
func LoadBound(root, name string) (*Pack, error) {
	return Load(filepath.Join(root, name), name)
}

func loadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return ToGray(src), nil
}

// ToGray converts any image to a compact 8-bit grayscale image with origin (0,0)
func ToGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Rect.Min == (image.Point{}) && g.Stride == g.Rect.Dx() {
		return g
	}
	filter := gift.New(gift.Grayscale())
	dst := image.NewGray(filter.Bounds(src.Bounds()))
	filter.Draw(dst, src)
	return dst
}
