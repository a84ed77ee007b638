package autoframe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/autoframe/internal/tracking"
	"github.com/e7canasta/autoframe/internal/transform"
)

const (
	// maxReadFailures is how many consecutive failed reads are tolerated
	// before the run is declared lost.
	maxReadFailures = 3
	// previewCapacity bounds the observation channel. When full, new frames
	// are dropped; the loop never stalls waiting for a consumer.
	previewCapacity = 2
	// stopTimeout bounds how long Stop waits for the worker before
	// releasing resources regardless.
	stopTimeout = 2 * time.Second
	// minTickSleep is the minimum pacing sleep per tick, so the loop never
	// monopolizes a core even when behind schedule.
	minTickSleep = time.Millisecond
)

// Controller orchestrates one auto-framing run: source → detector →
// tracking → transformer → sink, once per tick, with timing, FPS accounting
// and failure escalation.
//
// Lifecycle is Idle → Running → Idle. A Controller is intended for a single
// run: Stop releases the injected source, detector and sink.
//
// All exported methods are safe for concurrent use.
type Controller struct {
	source   FrameSource
	detector FaceDetector
	sink     FrameSink

	mu          sync.RWMutex
	cfg         Config
	cfgDirty    bool
	running     bool
	released    bool
	err         error
	fps         float64
	zoom        float64
	trackStatus TrackingStatus

	// Owned by the pipeline worker; no locking needed.
	tracker   *tracking.State
	processor *transform.Processor

	preview      chan Frame
	previewDrops atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a controller with fail-fast validation. The source, detector
// and sink must already be open; construction errors of those collaborators
// surface before a run ever starts.
func New(source FrameSource, detector FaceDetector, sink FrameSink, cfg Config) (*Controller, error) {
	if source == nil {
		return nil, fmt.Errorf("autoframe: frame source is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("autoframe: face detector is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("autoframe: frame sink is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		source:      source,
		detector:    detector,
		sink:        sink,
		cfg:         cfg,
		zoom:        1.0,
		trackStatus: LostLong,
		preview:     make(chan Frame, previewCapacity),
	}, nil
}

// Start launches the pipeline worker. Calling Start on a running controller
// is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	if c.released {
		c.mu.Unlock()
		return fmt.Errorf("autoframe: controller already stopped and released")
	}

	// Per-run state: created fresh on every start.
	c.tracker = tracking.New(c.cfg.MemoryDuration)
	c.processor = transform.New(transformConfig(c.cfg))
	c.err = nil
	c.running = true
	c.cfgDirty = false

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	cfg := c.cfg
	c.mu.Unlock()

	go c.run(ctx, done)

	slog.Info("autoframe: controller started",
		"target_fps", cfg.TargetFPS,
		"face_ratio", cfg.TargetFaceRatio,
		"zoom_range", fmt.Sprintf("%.1f-%.1f", cfg.MinZoom, cfg.MaxZoom),
	)
	return nil
}

// Stop requests a cooperative stop, observed at the next tick boundary,
// then releases the source, detector and sink in that order. If the worker
// does not exit within stopTimeout, resources are released regardless —
// a timely exit beats a hung release. Idempotent.
func (c *Controller) Stop() error {
	c.mu.Lock()
	done := c.done
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if done == nil {
		// Never started.
		return nil
	}
	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
	case <-time.After(stopTimeout):
		slog.Warn("autoframe: worker did not stop in time, releasing resources anyway",
			"timeout", stopTimeout)
	}

	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.running = false
	c.mu.Unlock()

	err := errors.Join(
		c.source.Close(),
		c.detector.Close(),
		c.sink.Close(),
	)
	if err != nil {
		slog.Warn("autoframe: resource release reported errors", "error", err)
	}
	slog.Info("autoframe: controller stopped")
	return err
}

// UpdateConfig swaps the active configuration. The swap is atomic and
// becomes visible at the start of the next tick; the running tick keeps the
// configuration it started with. Smoothing history is kept, so a settings
// change never causes a visible jump.
func (c *Controller) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.cfgDirty = true
	c.mu.Unlock()
	slog.Info("autoframe: configuration updated",
		"face_ratio", cfg.TargetFaceRatio,
		"smoothing", cfg.SmoothingFactor,
		"target_fps", cfg.TargetFPS,
	)
	return nil
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Running:        c.running,
		FPS:            c.fps,
		TrackingStatus: c.trackStatus,
		FaceDetected:   c.trackStatus == Tracking,
		Zoom:           c.zoom,
		PreviewDropped: c.previewDrops.Load(),
		Err:            c.err,
	}
}

// PreviewFrame waits up to timeout for the next output frame from the
// observation channel. Returns ok=false when no frame arrives in time;
// errors never cross this boundary. A non-positive timeout polls without
// waiting.
func (c *Controller) PreviewFrame(timeout time.Duration) (Frame, bool) {
	if timeout <= 0 {
		select {
		case f := <-c.preview:
			return f, true
		default:
			return Frame{}, false
		}
	}
	select {
	case f := <-c.preview:
		return f, true
	case <-time.After(timeout):
		return Frame{}, false
	}
}

// run is the pipeline worker. It is the sole mutator of tracking state,
// smoothing state and FPS counters.
func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	meter := newFPSMeter(time.Now())
	readFailures := 0

	for {
		// Stop requests are observed at the tick boundary, never mid-tick.
		select {
		case <-ctx.Done():
			slog.Debug("autoframe: stop observed at tick boundary")
			return
		default:
		}

		tickStart := time.Now()
		cfg := c.tickConfig()

		fatal, produced := c.tick(cfg, &readFailures, meter)
		if fatal {
			return
		}
		if !produced {
			// Failed read: retry immediately, the failure threshold bounds
			// the burst.
			continue
		}

		period := time.Duration(float64(time.Second) / cfg.TargetFPS)
		elapsed := time.Since(tickStart)
		if elapsed > period {
			slog.Debug("autoframe: slow tick",
				"elapsed", elapsed,
				"target", period,
			)
		}
		sleep := period - elapsed
		if sleep < minTickSleep {
			sleep = minTickSleep
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// tickConfig returns this tick's immutable configuration, applying any
// pending hot swap to the processor first.
func (c *Controller) tickConfig() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfgDirty {
		c.cfgDirty = false
		c.processor.UpdateConfig(transformConfig(c.cfg))
	}
	return c.cfg
}

// tick advances the pipeline once. fatal reports that the run must end;
// produced reports that a frame made it through the pipeline (a failed
// read produces nothing and skips pacing).
func (c *Controller) tick(cfg Config, readFailures *int, meter *fpsMeter) (fatal, produced bool) {
	frame, ok := c.source.Read()
	if !ok {
		*readFailures++
		if *readFailures > maxReadFailures {
			slog.Error("autoframe: camera connection lost",
				"consecutive_failures", *readFailures)
			c.mu.Lock()
			c.err = ErrConnectionLost
			c.running = false
			c.mu.Unlock()
			return true, false
		}
		slog.Debug("autoframe: frame read failed, retrying",
			"consecutive_failures", *readFailures)
		return false, false
	}
	*readFailures = 0

	dets, err := c.detector.Detect(frame)
	if err != nil {
		// Tick-local: recorded, logged, and the loop moves on.
		slog.Error("autoframe: face detection failed", "error", err, "seq", frame.Seq)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		return false, true
	}

	best, found := largestDetection(dets)
	status := c.tracker.Update(best.Bounds, found, time.Now())
	target, hasTarget := c.tracker.TargetBox()

	out := frame
	if rgba := frame.RGBA(); rgba != nil {
		processed := c.processor.Process(rgba, target, hasTarget)
		if processed != rgba {
			out = Frame{
				Data:      processed.Pix,
				Width:     frame.Width,
				Height:    frame.Height,
				Seq:       frame.Seq,
				Timestamp: frame.Timestamp,
				TraceID:   frame.TraceID,
			}
		}
	}

	// Best-effort delivery: sink failures are advisory.
	if err := c.sink.Send(out); err != nil {
		slog.Warn("autoframe: sink delivery failed", "error", err, "seq", out.Seq)
	}

	// Non-blocking publish to the observation channel.
	select {
	case c.preview <- out:
	default:
		c.previewDrops.Add(1)
	}

	fps, closed, warn := meter.tick(time.Now())
	if warn {
		slog.Warn("autoframe: sustained low frame rate",
			"fps", fmt.Sprintf("%.1f", fps),
			"threshold", lowFPSThreshold,
		)
	}

	c.mu.Lock()
	if closed {
		c.fps = fps
	}
	c.trackStatus = status
	c.zoom = c.processor.Zoom()
	c.mu.Unlock()

	return false, true
}

func transformConfig(cfg Config) transform.Config {
	return transform.Config{
		TargetFaceRatio: cfg.TargetFaceRatio,
		MinZoom:         cfg.MinZoom,
		MaxZoom:         cfg.MaxZoom,
		Alpha:           cfg.SmoothingFactor,
		MaxShift:        cfg.MaxShiftPerFrame,
	}
}
