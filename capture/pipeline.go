package capture

import (
	"fmt"
	"math"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// buildPipeline assembles the capture pipeline. All elements have static
// pads, so everything links at construction time.
func (w *Webcam) buildPipeline(cfg Config) error {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("capture: failed to create pipeline: %w", err)
	}

	v4l2src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("capture: failed to create v4l2src: %w", err)
	}
	v4l2src.SetProperty("device", cfg.Device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("capture: failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // auto-detect cores

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("capture: failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return fmt.Errorf("capture: failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)     // drop, never duplicate
	videorate.SetProperty("skip-to-first", true) // skip to first frame on start

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("capture: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(framerateCaps(cfg.Width, cfg.Height, cfg.FPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("capture: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // real-time, no clock sync
	appsink.SetProperty("max-buffers", 1) // keep only the latest frame
	appsink.SetProperty("drop", true)
	appsink.SetProperty("qos", true) // let upstream drop before converting

	pipeline.AddMany(v4l2src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(v4l2src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("capture: failed to link pipeline elements: %w", err)
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: w.onNewSample,
	})

	w.pipeline = pipeline
	w.appsink = appsink
	return nil
}

// framerateCaps builds the caps string that locks format, resolution and
// rate. FPS is expressed as a fraction so non-integer rates survive.
func framerateCaps(width, height int, fps float64) string {
	num, den := framerateFraction(fps)
	return fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/%d",
		width, height, num, den)
}

func framerateFraction(fps float64) (num, den int) {
	if fps == math.Trunc(fps) {
		return int(fps), 1
	}
	return int(math.Round(fps * 1000)), 1000
}
