package cv

import (
	"image"
	"math"

	"github.com/corona10/goimagehash"
)

// FrameHash is a 64-bit average hash of a frame
type FrameHash = *goimagehash.ImageHash

// AverageHash reduces the frame to 8x8 and sets one bit per cell brighter
// than the mean
func AverageHash(frame image.Image) (FrameHash, error) {
	return goimagehash.AverageHash(frame)
}

// Hamming returns the number of differing bits between two hashes.
// A missing hash compares as maximally different.
func Hamming(a, b FrameHash) int {
	if a == nil || b == nil {
		return math.MaxInt32
	}
	d, err := a.Distance(b)
	if err != nil {
		return math.MaxInt32
	}
	return d
}
