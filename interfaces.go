package autoframe

// FrameSource yields raw frames on demand.
//
// Implementations must guarantee:
//   - Read() does not block indefinitely: a frame that is not available
//     within the source's own deadline is reported as a failed read.
//   - A failed read is transient from the source's point of view; the
//     controller decides when sustained failure becomes fatal.
//   - Frame dimensions are constant for the lifetime of the source.
//   - Close() is idempotent.
type FrameSource interface {
	// Read returns the next frame, or ok=false on a failed read.
	Read() (frame Frame, ok bool)

	// Close releases the underlying device.
	Close() error
}

// FaceDetector locates candidate face regions in a frame. Treated as an
// opaque, possibly costly call; the controller retains at most one
// detection per tick (largest area wins).
//
// Implementations must guarantee:
//   - Returned boxes lie within the frame bounds.
//   - A frame with no faces yields an empty slice and nil error.
//   - Close() is idempotent.
type FaceDetector interface {
	// Detect returns zero or more candidate detections for the frame.
	Detect(frame Frame) ([]Detection, error)

	// Close releases detector resources.
	Close() error
}

// FrameSink accepts output frames at a target rate. Delivery is
// best-effort: the controller logs sink errors and continues.
//
// Implementations must guarantee:
//   - Send() does not block the pipeline for longer than one tick period;
//     frames the sink cannot accept are dropped, not queued.
//   - Close() is idempotent.
type FrameSink interface {
	// Send delivers one output frame.
	Send(frame Frame) error

	// Close releases the output device.
	Close() error
}
