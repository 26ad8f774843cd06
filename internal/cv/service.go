package cv

import (
	"fmt"
	"image"
	"sync"
	"time"

	"jordanella.com/rps-autoplay/pkg/templates"
)

// Service captures a fixed region of interest and classifies it against a pack
type Service struct {
	capturer Capturer
	matcher  *Matcher
	pack     *templates.Pack
	roi      Region

	// Last captured frame, kept for diagnostics
	lastFrame     *image.Gray
	lastFrameTime time.Time

	mu sync.RWMutex
}

// NewService creates a CV service bound to an absolute ROI
func NewService(capturer Capturer, matcher *Matcher, pack *templates.Pack, roi Region) *Service {
	return &Service{
		capturer: capturer,
		matcher:  matcher,
		pack:     pack,
		roi:      roi,
	}
}

// ROI returns the absolute capture region
func (s *Service) ROI() Region {
	return s.roi
}

// Pack returns the bound template pack
func (s *Service) Pack() *templates.Pack {
	return s.pack
}

// CaptureGray grabs the ROI as a grayscale frame
func (s *Service) CaptureGray() (*image.Gray, error) {
	frame, err := GrabGray(s.capturer, s.roi)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastFrame = frame
	s.lastFrameTime = time.Now()
	s.mu.Unlock()

	return frame, nil
}

// Classify runs the matcher against the bound pack
func (s *Service) Classify(frame *image.Gray) (templates.Label, float64, error) {
	label, score, err := s.matcher.Detect(frame, s.pack)
	if err != nil {
		return templates.LabelNone, score, fmt.Errorf("failed to classify frame: %w", err)
	}
	return label, score, nil
}

// LastFrame returns the most recent capture and when it was taken
func (s *Service) LastFrame() (*image.Gray, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrame, s.lastFrameTime
}
