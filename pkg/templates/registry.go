package templates

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPackName is the fallback pack directory
const DefaultPackName = "default"

// DefaultAspectTolerance is the largest aspect ratio difference accepted for a best-fit pack
const DefaultAspectTolerance = 0.02

var packNamePattern = regexp.MustCompile(`^(\d+)[xX](\d+)$`)

// PackInfo describes a resolution pack directory found in the library
type PackInfo struct {
	Name   string
	Width  int
	Height int
}

// ParsePackName extracts the nominal resolution from a "<w>x<h>" name
func ParsePackName(name string) (width, height int, ok bool) {
	m := packNamePattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(m[1])
	h, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// ListPacks returns every resolution pack directory directly under root,
// in directory listing order
func ListPacks(root string) ([]PackInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list template library: %w", err)
	}

	var packs []PackInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if w, h, ok := ParsePackName(entry.Name()); ok {
			packs = append(packs, PackInfo{Name: entry.Name(), Width: w, Height: h})
		}
	}
	return packs, nil
}

// Resolver picks the template pack for a capture size
type Resolver struct {
	Root      string
	AspectTol float64
}

// NewResolver creates a resolver for the library at root
func NewResolver(root string, aspectTol float64) *Resolver {
	if aspectTol < 0 {
		aspectTol = DefaultAspectTolerance
	}
	return &Resolver{Root: root, AspectTol: aspectTol}
}

// Resolve selects the pack directory for a w x h capture region.
// Order: exact "<w>x<h>" folder, closest aspect ratio within tolerance
// (ties broken by size difference), default/, then the library root.
func (r *Resolver) Resolve(w, h int) (dir, name string, err error) {
	info, err := os.Stat(r.Root)
	if err != nil || !info.IsDir() {
		return "", "", fmt.Errorf("%w: library %s is not a directory", ErrPackNotFound, r.Root)
	}

	packs, err := ListPacks(r.Root)
	if err != nil {
		return "", "", err
	}

	exact := fmt.Sprintf("%dx%d", w, h)
	for _, p := range packs {
		if p.Name == exact {
			return filepath.Join(r.Root, p.Name), p.Name, nil
		}
	}

	if best, ok := r.bestFit(packs, w, h); ok {
		return filepath.Join(r.Root, best.Name), best.Name, nil
	}

	defaultDir := filepath.Join(r.Root, DefaultPackName)
	if info, err := os.Stat(defaultDir); err == nil && info.IsDir() {
		return defaultDir, DefaultPackName, nil
	}
	return r.Root, "", nil
}

func (r *Resolver) bestFit(packs []PackInfo, w, h int) (PackInfo, bool) {
	if w <= 0 || h <= 0 {
		return PackInfo{}, false
	}
	target := float64(w) / float64(h)

	var best PackInfo
	found := false
	bestAR, bestSize := math.Inf(1), math.MaxInt
	for _, p := range packs {
		arDiff := math.Abs(float64(p.Width)/float64(p.Height) - target)
		if arDiff > r.AspectTol {
			continue
		}
		sizeDiff := abs(p.Width-w) + abs(p.Height-h)
		if arDiff < bestAR || (arDiff == bestAR && sizeDiff < bestSize) {
			best, bestAR, bestSize, found = p, arDiff, sizeDiff, true
		}
	}
	return best, found
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
