// Package capture acquires raw frames from a local V4L2 webcam through
// GStreamer and exposes them behind the autoframe.FrameSource contract.
//
// The pipeline is:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter(RGBA) → appsink
//
// Frames arrive asynchronously from the GStreamer thread into a one-slot
// buffer; a new frame replaces interest in the old one (max-buffers=1,
// drop=true at the appsink, non-blocking hand-off here). Read pulls the
// most recent frame or reports a failed read after a bounded wait — it
// never blocks the pipeline loop indefinitely.
package capture

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/autoframe"
)

// defaultReadTimeout bounds a single Read. Generous against one late frame
// at low rates, short enough that the controller's failure threshold
// reacts to a dead device within a few seconds.
const defaultReadTimeout = 500 * time.Millisecond

// Config configures a webcam source.
type Config struct {
	// Device is the V4L2 device path, e.g. "/dev/video0".
	Device string
	// Width and Height select the capture resolution.
	Width, Height int
	// FPS is the capture rate (0.1 - 60).
	FPS float64
	// ReadTimeout overrides the per-Read wait. Zero means the default.
	ReadTimeout time.Duration
}

// Stats is a snapshot of source counters.
type Stats struct {
	// FrameCount is the total number of frames decoded.
	FrameCount uint64
	// FramesDropped counts frames discarded because Read was not keeping up.
	FramesDropped uint64
	// BytesRead is the total pixel bytes delivered by the pipeline.
	BytesRead uint64
}

// Webcam implements autoframe.FrameSource over a V4L2 device.
type Webcam struct {
	device        string
	width, height int
	readTimeout   time.Duration

	pipeline *gst.Pipeline
	appsink  *app.Sink

	frames chan autoframe.Frame

	frameCount    uint64
	framesDropped uint64
	bytesRead     uint64

	closed atomic.Bool
}

// NewWebcam opens the device and starts the capture pipeline. Fail-fast:
// an unavailable device or missing GStreamer surfaces here, before a run
// ever starts.
func NewWebcam(cfg Config) (*Webcam, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("capture: device path is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("capture: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < 0.1 || cfg.FPS > 60 {
		return nil, fmt.Errorf("capture: invalid FPS %.2f (must be 0.1-60)", cfg.FPS)
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	w := &Webcam{
		device:      cfg.Device,
		width:       cfg.Width,
		height:      cfg.Height,
		readTimeout: readTimeout,
		frames:      make(chan autoframe.Frame, 1),
	}

	if err := w.buildPipeline(cfg); err != nil {
		return nil, err
	}
	if err := w.pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("capture: failed to start pipeline: %w", err)
	}

	slog.Info("capture: webcam opened",
		"device", cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FPS,
	)
	return w, nil
}

// Read returns the most recent frame, or ok=false if none arrives within
// the read timeout. The controller treats a failed read as transient and
// escalates only after its consecutive-failure threshold.
func (w *Webcam) Read() (autoframe.Frame, bool) {
	if w.closed.Load() {
		return autoframe.Frame{}, false
	}
	select {
	case frame := <-w.frames:
		return frame, true
	case <-time.After(w.readTimeout):
		return autoframe.Frame{}, false
	}
}

// Stats returns current counters. Safe from any goroutine.
func (w *Webcam) Stats() Stats {
	return Stats{
		FrameCount:    atomic.LoadUint64(&w.frameCount),
		FramesDropped: atomic.LoadUint64(&w.framesDropped),
		BytesRead:     atomic.LoadUint64(&w.bytesRead),
	}
}

// Close stops the pipeline and releases the device. Idempotent.
func (w *Webcam) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	if err := w.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("capture: failed to stop pipeline: %w", err)
	}
	slog.Info("capture: webcam closed", "device", w.device)
	return nil
}

// onNewSample runs on the GStreamer streaming thread. It copies the pixel
// data (GStreamer reuses the buffer) and hands the frame off without
// blocking; if Read is not keeping up, the stale frame is replaced.
func (w *Webcam) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single bad sample must not kill the stream.
		slog.Warn("capture: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("capture: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("capture: empty buffer received")
		return gst.FlowOK
	}
	pixels := make([]byte, len(data))
	copy(pixels, data)
	buffer.Unmap()

	seq := atomic.AddUint64(&w.frameCount, 1)
	atomic.AddUint64(&w.bytesRead, uint64(len(pixels)))

	frame := autoframe.Frame{
		Data:      pixels,
		Width:     w.width,
		Height:    w.height,
		Seq:       seq,
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
	}

	// Replace the buffered frame so Read always sees the latest.
	for {
		select {
		case w.frames <- frame:
			return gst.FlowOK
		default:
		}
		select {
		case <-w.frames:
			atomic.AddUint64(&w.framesDropped, 1)
		default:
		}
	}
}
