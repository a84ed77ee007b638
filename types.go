package autoframe

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/e7canasta/autoframe/internal/tracking"
)

// Public API errors.
var (
	// ErrConnectionLost is surfaced through Status after sustained frame
	// read failure ends a run.
	ErrConnectionLost = errors.New("autoframe: camera connection lost")
)

// Frame is a single video frame with metadata. Pixel data is packed RGBA,
// 4 bytes per pixel, row-major with no padding. Width and height are fixed
// for the lifetime of one pipeline run.
type Frame struct {
	// Data contains packed RGBA pixel data (len >= 4*Width*Height).
	Data []byte
	// Width in pixels.
	Width int
	// Height in pixels.
	Height int
	// Seq is the monotonic sequence number assigned by the source.
	Seq uint64
	// Timestamp is when the frame was captured.
	Timestamp time.Time
	// TraceID is a unique identifier for distributed tracing.
	TraceID string
}

// RGBA wraps the frame's pixel data as an *image.RGBA without copying.
// Returns nil if the buffer does not match the declared dimensions.
func (f Frame) RGBA() *image.RGBA {
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) < 4*f.Width*f.Height {
		return nil
	}
	return &image.RGBA{
		Pix:    f.Data,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Detection is one candidate face region reported by the detector for a
// single tick. It is owned transiently by the tick that created it and is
// never mutated.
type Detection struct {
	// Bounds is the face bounding box in pixel space.
	Bounds image.Rectangle
	// Confidence is the detector's score in [0, 1].
	Confidence float64
	// Center is the box center in pixel space.
	Center image.Point
}

// TrackingStatus describes detection continuity. Re-exported from the
// internal tracking package as the stable contract.
type TrackingStatus = tracking.Status

const (
	// Tracking means a face was detected on the most recent tick.
	Tracking = tracking.Tracking
	// LostRecent means detection was lost within the memory duration; the
	// last position is still trusted.
	LostRecent = tracking.LostRecent
	// LostLong means detection has been lost beyond the memory duration,
	// or no face was ever seen.
	LostLong = tracking.LostLong
)

// Config is the flat configuration record for a controller. All fields are
// validated at construction; the record is replaceable at runtime via
// UpdateConfig and is never observed half-written by a tick.
type Config struct {
	// TargetFaceRatio is the desired face height as a fraction of frame
	// height, in (0, 1).
	TargetFaceRatio float64
	// MinZoom is the lower zoom bound. Must be >= 1.0 (zoom 1.0 uses the
	// full original frame; zooming out further has nothing to sample).
	MinZoom float64
	// MaxZoom is the upper zoom bound. Must be >= MinZoom.
	MaxZoom float64
	// SmoothingFactor is the EMA alpha shared by the x, y and zoom filters.
	// Lower = smoother, higher = more responsive. Clamped to [0, 1].
	SmoothingFactor float64
	// MaxShiftPerFrame is the per-tick pan limit in pixels.
	MaxShiftPerFrame float64
	// MemoryDuration is how long a lost face's last position stays trusted.
	MemoryDuration time.Duration
	// TargetFPS is the target tick rate of the pipeline loop.
	TargetFPS float64
}

// DefaultConfig returns the standard meeting-camera configuration.
func DefaultConfig() Config {
	return Config{
		TargetFaceRatio:  0.4,
		MinZoom:          1.0,
		MaxZoom:          3.0,
		SmoothingFactor:  0.15,
		MaxShiftPerFrame: 50,
		MemoryDuration:   2 * time.Second,
		TargetFPS:        30,
	}
}

// Validate checks the configuration invariants (fail-fast, at construction
// and on every hot swap).
func (c Config) Validate() error {
	if c.TargetFaceRatio <= 0 || c.TargetFaceRatio >= 1 {
		return fmt.Errorf("autoframe: target face ratio %.3f out of range (0, 1)", c.TargetFaceRatio)
	}
	if c.MinZoom < 1.0 {
		return fmt.Errorf("autoframe: min zoom %.2f must be >= 1.0", c.MinZoom)
	}
	if c.MaxZoom < c.MinZoom {
		return fmt.Errorf("autoframe: max zoom %.2f below min zoom %.2f", c.MaxZoom, c.MinZoom)
	}
	if c.SmoothingFactor < 0 || c.SmoothingFactor > 1 {
		return fmt.Errorf("autoframe: smoothing factor %.3f out of range [0, 1]", c.SmoothingFactor)
	}
	if c.MaxShiftPerFrame <= 0 {
		return fmt.Errorf("autoframe: max shift per frame %.1f must be positive", c.MaxShiftPerFrame)
	}
	if c.MemoryDuration <= 0 {
		return fmt.Errorf("autoframe: memory duration %v must be positive", c.MemoryDuration)
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("autoframe: target FPS %.2f must be positive", c.TargetFPS)
	}
	return nil
}

// Status is a snapshot of controller state, safe to read from any
// goroutine.
type Status struct {
	// Running reports whether the pipeline worker is active.
	Running bool
	// FPS is the rolling throughput estimate over 1-second windows.
	FPS float64
	// TrackingStatus is the continuity state from the last completed tick.
	TrackingStatus TrackingStatus
	// FaceDetected is true when a face was detected on the last tick.
	FaceDetected bool
	// Zoom is the zoom level applied on the last tick with a target.
	Zoom float64
	// PreviewDropped counts preview frames dropped because the channel was
	// full.
	PreviewDropped uint64
	// Err is the most recent error state: tick-local errors while the run
	// continues, or the fatal error that ended it. Nil when healthy.
	Err error
}
