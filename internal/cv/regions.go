package cv

import (
	"fmt"
	"image"
)

// Region is a rectangle in screen coordinates
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewRegion creates a new region
func NewRegion(left, top, width, height int) Region {
	return Region{Left: left, Top: top, Width: width, Height: height}
}

// RegionFromRect converts an image.Rectangle to a Region
func RegionFromRect(r image.Rectangle) Region {
	return Region{Left: r.Min.X, Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Right returns the exclusive right edge
func (r Region) Right() int {
	return r.Left + r.Width
}

// Bottom returns the exclusive bottom edge
func (r Region) Bottom() int {
	return r.Top + r.Height
}

// Empty reports whether the region has no area
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains checks if a point is within the region
func (r Region) Contains(p image.Point) bool {
	return p.X >= r.Left && p.X < r.Right() && p.Y >= r.Top && p.Y < r.Bottom()
}

// Offset shifts the region by dx, dy
func (r Region) Offset(dx, dy int) Region {
	r.Left += dx
	r.Top += dy
	return r
}

// RelativeTo expresses r in the coordinate space whose origin is origin's top-left
func (r Region) RelativeTo(origin Region) Region {
	return r.Offset(-origin.Left, -origin.Top)
}

// Clamp returns the intersection of r with bounds
func (r Region) Clamp(bounds Region) Region {
	return RegionFromRect(r.Rect().Intersect(bounds.Rect()))
}

// ExpandAround builds a region of size (w*factor, h*factor) centred on the
// centre of the box at (x, y, w, h)
func ExpandAround(x, y, w, h int, factor float64) Region {
	cx, cy := x+w/2, y+h/2
	ew := int(float64(w) * factor)
	eh := int(float64(h) * factor)
	return Region{Left: cx - ew/2, Top: cy - eh/2, Width: ew, Height: eh}
}

// Rect converts Region to image.Rectangle for use with CV operations
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right(), r.Bottom())
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.Left, r.Top, r.Width, r.Height)
}
