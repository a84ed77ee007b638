package autoframe

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubSource yields synthetic RGBA frames; failAfter limits how many reads
// succeed (0 = fail every read, -1 = never fail).
type stubSource struct {
	width, height int
	failAfter     int64

	reads  atomic.Int64
	closed atomic.Bool
}

func (s *stubSource) Read() (Frame, bool) {
	n := s.reads.Add(1)
	if s.failAfter >= 0 && n > s.failAfter {
		return Frame{}, false
	}
	return Frame{
		Data:      make([]byte, 4*s.width*s.height),
		Width:     s.width,
		Height:    s.height,
		Seq:       uint64(n),
		Timestamp: time.Now(),
	}, true
}

func (s *stubSource) Close() error {
	s.closed.Store(true)
	return nil
}

// stubDetector returns a fixed detection (or none), optionally erroring.
type stubDetector struct {
	mu     sync.Mutex
	dets   []Detection
	err    error
	closed bool
}

func (d *stubDetector) Detect(Frame) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dets, d.err
}

func (d *stubDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// stubSink records delivered frames.
type stubSink struct {
	mu     sync.Mutex
	frames []Frame
	err    error
	closed bool
}

func (s *stubSink) Send(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *stubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetFPS = 200 // keep test ticks short
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewValidatesComponentsAndConfig(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: -1}
	det := &stubDetector{}
	sink := &stubSink{}

	if _, err := New(nil, det, sink, fastConfig()); err == nil {
		t.Error("New accepted a nil source")
	}
	if _, err := New(src, nil, sink, fastConfig()); err == nil {
		t.Error("New accepted a nil detector")
	}
	if _, err := New(src, det, nil, fastConfig()); err == nil {
		t.Error("New accepted a nil sink")
	}
	bad := fastConfig()
	bad.MinZoom = 0.5
	if _, err := New(src, det, sink, bad); err == nil {
		t.Error("New accepted min zoom below 1.0")
	}
}

func TestFramesFlowThroughPipeline(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: -1}
	det := &stubDetector{dets: []Detection{{Bounds: image.Rect(20, 10, 44, 26)}}}
	sink := &stubSink{}

	c, err := New(src, det, sink, fastConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool { return sink.count() >= 3 },
		"sink never received frames")

	st := c.Status()
	if !st.Running {
		t.Error("controller not running while producing frames")
	}
	if st.TrackingStatus != Tracking || !st.FaceDetected {
		t.Errorf("tracking status = %v detected=%v, want tracking", st.TrackingStatus, st.FaceDetected)
	}
	if st.Zoom < 1.0 {
		t.Errorf("zoom = %v, want >= 1.0", st.Zoom)
	}

	sink.mu.Lock()
	frame := sink.frames[0]
	sink.mu.Unlock()
	if frame.Width != 64 || frame.Height != 36 {
		t.Errorf("output resolution %dx%d, want source resolution", frame.Width, frame.Height)
	}
}

// TestConnectionLostAfterSustainedReadFailure: 3 failed reads are tolerated,
// the 4th is fatal — loop goes Idle with a connection-lost error.
func TestConnectionLostAfterSustainedReadFailure(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: 0}
	det := &stubDetector{}
	sink := &stubSink{}

	c, err := New(src, det, sink, fastConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return !c.Status().Running },
		"run did not stop after sustained read failure")

	st := c.Status()
	if !errors.Is(st.Err, ErrConnectionLost) {
		t.Errorf("Status().Err = %v, want ErrConnectionLost", st.Err)
	}
	if got := src.reads.Load(); got != 4 {
		t.Errorf("source reads = %d, want 4 (3 tolerated + 1 triggering)", got)
	}

	// Stop after the fatal path still releases resources, exactly once.
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !src.closed.Load() || !det.closed || !sink.closed {
		t.Error("Stop did not release all resources")
	}
}

func TestSuccessfulReadResetsFailureCounter(t *testing.T) {
	// Alternate fail/success by hand: fail twice, then succeed forever.
	src := &alternatingSource{failFirst: 2, width: 64, height: 36}
	det := &stubDetector{}
	sink := &stubSink{}

	c, _ := New(src, det, sink, fastConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool { return sink.count() >= 5 },
		"pipeline did not recover from transient read failures")
	if !c.Status().Running {
		t.Error("transient failures below threshold must not stop the run")
	}
}

type alternatingSource struct {
	failFirst     int64
	width, height int
	reads         atomic.Int64
}

func (s *alternatingSource) Read() (Frame, bool) {
	n := s.reads.Add(1)
	if n <= s.failFirst {
		return Frame{}, false
	}
	return Frame{
		Data:      make([]byte, 4*s.width*s.height),
		Width:     s.width,
		Height:    s.height,
		Seq:       uint64(n),
		Timestamp: time.Now(),
	}, true
}

func (s *alternatingSource) Close() error { return nil }

func TestSinkFailureIsAdvisory(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: -1}
	det := &stubDetector{}
	sink := &stubSink{err: fmt.Errorf("virtual camera busy")}

	c, _ := New(src, det, sink, fastConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool { return src.reads.Load() >= 10 },
		"loop stalled on failing sink")
	if !c.Status().Running {
		t.Error("sink failures must not stop the run")
	}
}

func TestDetectorErrorIsTickLocal(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: -1}
	detErr := fmt.Errorf("model unavailable")
	det := &stubDetector{err: detErr}
	sink := &stubSink{}

	c, _ := New(src, det, sink, fastConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool { return c.Status().Err != nil },
		"detector error never recorded")
	if !c.Status().Running {
		t.Error("detector errors must be tick-local, not run-fatal")
	}
}

func TestPreviewFrameTimedReceive(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: -1}
	det := &stubDetector{}
	sink := &stubSink{}

	c, _ := New(src, det, sink, fastConfig())

	// Idle controller: timed receive reports "no frame available".
	if _, ok := c.PreviewFrame(20 * time.Millisecond); ok {
		t.Fatal("PreviewFrame returned a frame before Start")
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if _, ok := c.PreviewFrame(time.Second); !ok {
		t.Fatal("PreviewFrame timed out while the pipeline was producing")
	}

	// An unconsumed preview channel fills (capacity 2) and the producer
	// drops instead of blocking.
	waitFor(t, 2*time.Second, func() bool { return c.Status().PreviewDropped > 0 },
		"producer never dropped with a full preview channel")
	if !c.Status().Running {
		t.Error("full preview channel must never stall the loop")
	}
}

func TestPassThroughWithoutTarget(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: -1}
	det := &stubDetector{} // never detects
	sink := &stubSink{}

	c, _ := New(src, det, sink, fastConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	frame, ok := c.PreviewFrame(time.Second)
	if !ok {
		t.Fatal("no preview frame")
	}
	for i, b := range frame.Data {
		if b != 0 {
			t.Fatalf("byte %d modified in pass-through frame", i)
		}
	}
	if st := c.Status(); st.TrackingStatus != LostLong {
		t.Errorf("tracking status = %v with no detections ever, want lost_long", st.TrackingStatus)
	}
}

func TestUpdateConfigHotSwap(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: -1}
	det := &stubDetector{dets: []Detection{{Bounds: image.Rect(20, 10, 44, 26)}}}
	sink := &stubSink{}

	c, _ := New(src, det, sink, fastConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool { return sink.count() >= 2 }, "no output")

	bad := fastConfig()
	bad.TargetFaceRatio = 2.0
	if err := c.UpdateConfig(bad); err == nil {
		t.Error("UpdateConfig accepted an invalid config")
	}

	next := fastConfig()
	next.TargetFaceRatio = 0.6
	next.SmoothingFactor = 0.5
	if err := c.UpdateConfig(next); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	before := sink.count()
	waitFor(t, 2*time.Second, func() bool { return sink.count() > before+2 },
		"pipeline stopped after hot swap")
	if !c.Status().Running {
		t.Error("hot swap must not interrupt the run")
	}
}

func TestStopIsIdempotentAndStartAfterReleaseFails(t *testing.T) {
	src := &stubSource{width: 64, height: 36, failAfter: -1}
	det := &stubDetector{}
	sink := &stubSink{}

	c, _ := New(src, det, sink, fastConfig())

	// Stop before Start is a no-op.
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start while running should be a no-op, got %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	if c.Status().Running {
		t.Error("controller reports running after Stop")
	}
	if !src.closed.Load() {
		t.Error("source not released")
	}
	if err := c.Start(); err == nil {
		t.Error("Start after release must fail: collaborators are closed")
	}
}
