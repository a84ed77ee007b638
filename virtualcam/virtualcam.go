// Package virtualcam pushes framed output into a v4l2loopback device
// through GStreamer, making it available to any application that consumes
// a webcam. It implements the autoframe.FrameSink contract.
//
// The pipeline is:
//
//	appsrc(RGBA) → videoconvert → v4l2sink
//
// Delivery is best-effort by contract: a frame the device cannot accept is
// reported as an error and dropped by the caller, never queued.
package virtualcam

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/autoframe"
)

// Config configures a virtual camera sink.
type Config struct {
	// Device is the v4l2loopback device path, e.g. "/dev/video10".
	Device string
	// Width and Height declare the output resolution. Every frame sent
	// must match.
	Width, Height int
	// FPS is the nominal output rate advertised to consumers.
	FPS float64
}

// Camera implements autoframe.FrameSink over a v4l2loopback device.
type Camera struct {
	device        string
	width, height int

	pipeline *gst.Pipeline
	appsrc   *app.Source

	framesSent uint64
	closed     atomic.Bool
}

// New opens the loopback device and starts the output pipeline. Fail-fast:
// a missing v4l2loopback module or busy device surfaces here.
func New(cfg Config) (*Camera, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("virtualcam: device path is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("virtualcam: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("virtualcam: invalid FPS %.2f", cfg.FPS)
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("virtualcam: failed to create pipeline: %w", err)
	}

	appsrc, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("virtualcam: failed to create appsrc: %w", err)
	}
	caps := fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1",
		cfg.Width, cfg.Height, int(cfg.FPS))
	appsrc.SetCaps(gst.NewCapsFromString(caps))
	appsrc.SetProperty("is-live", true)
	appsrc.SetProperty("block", false) // sink contract: never stall the loop
	appsrc.SetProperty("format", int(gst.FormatTime))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("virtualcam: failed to create videoconvert: %w", err)
	}

	v4l2sink, err := gst.NewElement("v4l2sink")
	if err != nil {
		return nil, fmt.Errorf("virtualcam: failed to create v4l2sink: %w", err)
	}
	v4l2sink.SetProperty("device", cfg.Device)
	v4l2sink.SetProperty("sync", false)

	pipeline.AddMany(appsrc.Element, converter, v4l2sink)
	if err := gst.ElementLinkMany(appsrc.Element, converter, v4l2sink); err != nil {
		return nil, fmt.Errorf("virtualcam: failed to link pipeline elements: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("virtualcam: failed to start pipeline: %w", err)
	}

	slog.Info("virtualcam: virtual camera created",
		"device", cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FPS,
	)
	return &Camera{
		device:   cfg.Device,
		width:    cfg.Width,
		height:   cfg.Height,
		pipeline: pipeline,
		appsrc:   appsrc,
	}, nil
}

// Send delivers one frame to the loopback device. Dimension mismatches and
// push failures are returned to the caller, which treats them as advisory.
func (c *Camera) Send(frame autoframe.Frame) error {
	if c.closed.Load() {
		return fmt.Errorf("virtualcam: camera is closed")
	}
	if frame.Width != c.width || frame.Height != c.height {
		return fmt.Errorf("virtualcam: frame %dx%d does not match device %dx%d",
			frame.Width, frame.Height, c.width, c.height)
	}
	if len(frame.Data) < 4*c.width*c.height {
		return fmt.Errorf("virtualcam: frame buffer too short (%d bytes)", len(frame.Data))
	}

	buffer := gst.NewBufferFromBytes(frame.Data)
	if ret := c.appsrc.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("virtualcam: push failed: %v", ret)
	}
	atomic.AddUint64(&c.framesSent, 1)
	return nil
}

// FramesSent returns how many frames reached the device. Safe from any
// goroutine.
func (c *Camera) FramesSent() uint64 {
	return atomic.LoadUint64(&c.framesSent)
}

// Close signals end-of-stream and releases the device. Idempotent.
func (c *Camera) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.appsrc.EndStream()
	if err := c.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("virtualcam: failed to stop pipeline: %w", err)
	}
	slog.Info("virtualcam: virtual camera closed", "device", c.device)
	return nil
}
