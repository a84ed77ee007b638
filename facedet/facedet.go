// Package facedet detects faces with an OpenCV Haar cascade and adapts the
// result to the autoframe.FaceDetector contract.
//
// Cascade classifiers report matches, not scores: every accepted box is
// returned with confidence 1.0, with false positives controlled by the
// MinNeighbors threshold instead. The controller treats confidence as
// opaque payload, so this is sufficient for single-face framing.
package facedet

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/e7canasta/autoframe"
)

// Config configures a cascade detector.
type Config struct {
	// CascadeFile is the path to the Haar cascade XML, e.g.
	// haarcascade_frontalface_default.xml.
	CascadeFile string
	// ScaleFactor is the image pyramid step (default 1.1).
	ScaleFactor float64
	// MinNeighbors is the match threshold (default 4). Higher = fewer
	// false positives.
	MinNeighbors int
	// MinSize is the smallest face edge in pixels (default 40). Smaller
	// candidates are noise at meeting-camera distances.
	MinSize int
}

// Cascade implements autoframe.FaceDetector.
//
// OpenCV classifiers are not safe for concurrent detection; the mutex keeps
// the adapter safe even though the pipeline worker is the only caller in
// practice.
type Cascade struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      int
	closed       bool
}

// NewCascade loads the cascade file. Fail-fast: a missing or corrupt model
// surfaces here, before a run ever starts.
func NewCascade(cfg Config) (*Cascade, error) {
	if cfg.CascadeFile == "" {
		return nil, fmt.Errorf("facedet: cascade file is required")
	}
	if cfg.ScaleFactor == 0 {
		cfg.ScaleFactor = 1.1
	}
	if cfg.ScaleFactor <= 1.0 {
		return nil, fmt.Errorf("facedet: scale factor %.2f must be > 1.0", cfg.ScaleFactor)
	}
	if cfg.MinNeighbors == 0 {
		cfg.MinNeighbors = 4
	}
	if cfg.MinSize == 0 {
		cfg.MinSize = 40
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadeFile) {
		classifier.Close()
		return nil, fmt.Errorf("facedet: failed to load cascade file %q", cfg.CascadeFile)
	}

	slog.Info("facedet: cascade loaded",
		"file", cfg.CascadeFile,
		"min_neighbors", cfg.MinNeighbors,
		"min_size", cfg.MinSize,
	)
	return &Cascade{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      cfg.MinSize,
	}, nil
}

// Detect returns candidate face regions with boxes clamped to the frame
// bounds. A frame with no faces yields an empty slice and nil error.
func (c *Cascade) Detect(frame autoframe.Frame) ([]autoframe.Detection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("facedet: detector is closed")
	}
	if len(frame.Data) < 4*frame.Width*frame.Height {
		return nil, fmt.Errorf("facedet: frame buffer too short (%d bytes for %dx%d)",
			len(frame.Data), frame.Width, frame.Height)
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC4, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("facedet: failed to wrap frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBAToGray)

	rects := c.classifier.DetectMultiScaleWithParams(
		gray,
		c.scaleFactor,
		c.minNeighbors,
		0,
		image.Pt(c.minSize, c.minSize),
		image.Pt(0, 0),
	)

	frameBounds := image.Rect(0, 0, frame.Width, frame.Height)
	dets := make([]autoframe.Detection, 0, len(rects))
	for _, r := range rects {
		box := r.Intersect(frameBounds)
		if box.Empty() {
			continue
		}
		dets = append(dets, autoframe.Detection{
			Bounds:     box,
			Confidence: 1.0,
			Center:     box.Min.Add(image.Pt(box.Dx()/2, box.Dy()/2)),
		})
	}
	return dets, nil
}

// Close releases the classifier. Idempotent.
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.classifier.Close()
}
