// Package autoframe keeps a person framed in a live video stream.
//
// The controller locates a face, decides a crop/zoom that keeps the face at
// a target size, smooths that decision over time so the output is visually
// stable, and emits a continuous frame stream at the source resolution.
//
// # Core Philosophy
//
// "Drop frames, never queue. Latency > Completeness."
//
// The pipeline produces at most one output frame per tick and never waits
// for a consumer. Preview delivery is best-effort through a bounded channel;
// if the consumer is slow, new frames are dropped rather than queued.
//
// # Architecture
//
// One dedicated worker advances the pipeline once per tick:
//
//	source → detector → tracking state → transformer → sink
//	                                            └→ preview channel (bounded)
//
// Data flows strictly downward each tick. The worker is the sole mutator of
// tracking state, smoothing state and FPS counters, so none of them carry
// locks. The preview channel is the single synchronization point with the
// rest of the process.
//
// # Basic Usage
//
//	src, _ := capture.NewWebcam(capture.Config{Device: "/dev/video0", Width: 1280, Height: 720, FPS: 30})
//	det, _ := facedet.NewCascade(facedet.Config{CascadeFile: "haarcascade_frontalface_default.xml"})
//	cam, _ := virtualcam.New(virtualcam.Config{Device: "/dev/video10", Width: 1280, Height: 720, FPS: 30})
//
//	ctrl, _ := autoframe.New(src, det, cam, autoframe.DefaultConfig())
//	ctrl.Start()
//	defer ctrl.Stop()
//
//	if frame, ok := ctrl.PreviewFrame(100 * time.Millisecond); ok {
//	    // inspect frame
//	}
//
// # Failure Model
//
// A single failed frame read is retried automatically; sustained failure
// (more than 3 consecutive reads) stops the run and surfaces
// ErrConnectionLost through Status. Sink delivery failures and low-FPS
// conditions are advisory: logged, never fatal. Errors never cross the
// preview channel boundary — consumers only ever see frames or "none
// available".
package autoframe
