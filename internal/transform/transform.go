// Package transform computes and applies the per-tick zoom/pan that keeps a
// detected face at a target size in the output frame.
//
// Numeric contract: zoom = 1.0 means the full original frame is used; higher
// zoom crops tighter. The crop rectangle always stays fully inside the frame
// (no out-of-bounds sampling, no padding) and is resampled back up to the
// original resolution with bilinear interpolation, so the output resolution
// is constant for the lifetime of a run.
package transform

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/e7canasta/autoframe/internal/smoothing"
)

// Config controls framing. Immutable per tick; replaced via UpdateConfig
// between ticks.
type Config struct {
	// TargetFaceRatio is the desired face height as a fraction of frame
	// height, in (0, 1).
	TargetFaceRatio float64
	// MinZoom is the lower zoom bound. Must be >= 1.0: zooming out past the
	// full frame would require sampling outside it.
	MinZoom float64
	// MaxZoom is the upper zoom bound.
	MaxZoom float64
	// Alpha is the smoothing factor shared by the x, y and zoom filters.
	Alpha float64
	// MaxShift is the per-tick pan limit in pixels.
	MaxShift float64
}

// Processor applies zoom and pan transformations to center and frame a
// detected face. Owned and mutated by the pipeline worker only.
type Processor struct {
	cfg      Config
	smoother *smoothing.Transform
	lastZoom float64
}

// New creates a processor. The caller validates cfg (MinZoom >= 1.0 is a
// required invariant; violating it is a configuration error upstream).
func New(cfg Config) *Processor {
	return &Processor{
		cfg:      cfg,
		smoother: smoothing.NewTransform(cfg.Alpha, cfg.MaxShift),
		lastZoom: 1.0,
	}
}

// Process produces the output frame for one tick.
//
// Without a target the input passes through unchanged, bit-identical. With a
// target the desired zoom and face center are smoothed, then a crop of
// (W/zoom, H/zoom) centered on the smoothed point is clamped into the frame
// and resampled back to the original dimensions.
func (p *Processor) Process(src *image.RGBA, target image.Rectangle, hasTarget bool) *image.RGBA {
	if src == nil {
		return src
	}
	if !hasTarget {
		return src
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return src
	}

	centerX := float64(target.Min.X) + float64(target.Dx())/2
	centerY := float64(target.Min.Y) + float64(target.Dy())/2
	targetZoom := p.zoomFor(target.Dy(), height)

	sx, sy, szoom := p.smoother.Smooth(centerX, centerY, targetZoom)
	p.lastZoom = szoom

	return p.applyTransform(src, int(sx), int(sy), szoom)
}

// zoomFor returns the clamped zoom that brings a face of faceHeight pixels
// to the target ratio of frameHeight. A degenerate face height means "no
// zoom requested", never a division by zero.
func (p *Processor) zoomFor(faceHeight, frameHeight int) float64 {
	if faceHeight <= 0 {
		return p.cfg.MinZoom
	}
	currentRatio := float64(faceHeight) / float64(frameHeight)
	zoom := p.cfg.TargetFaceRatio / currentRatio
	if zoom < p.cfg.MinZoom {
		zoom = p.cfg.MinZoom
	}
	if zoom > p.cfg.MaxZoom {
		zoom = p.cfg.MaxZoom
	}
	return zoom
}

func (p *Processor) applyTransform(src *image.RGBA, centerX, centerY int, zoom float64) *image.RGBA {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	cropW := int(float64(width) / zoom)
	cropH := int(float64(height) / zoom)
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}

	// Clamp the top-left corner so the crop stays fully inside the frame.
	x1 := clampInt(centerX-cropW/2, bounds.Min.X, bounds.Max.X-cropW)
	y1 := clampInt(centerY-cropH/2, bounds.Min.Y, bounds.Max.Y-cropH)
	crop := image.Rect(x1, y1, x1+cropW, y1+cropH)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// UpdateConfig swaps the active configuration and propagates the smoothing
// factor and shift limit. Accumulated smoothing history is intentionally
// kept: resetting here would cause a visible jump on a settings change.
func (p *Processor) UpdateConfig(cfg Config) {
	p.cfg = cfg
	p.smoother.SetAlpha(cfg.Alpha)
	p.smoother.SetMaxShift(cfg.MaxShift)
}

// Reset clears the smoothing history (used when a run ends).
func (p *Processor) Reset() {
	p.smoother.Reset()
	p.lastZoom = 1.0
}

// Zoom returns the zoom applied by the most recent Process call with a
// target, 1.0 before any.
func (p *Processor) Zoom() float64 {
	return p.lastZoom
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
