// Command autoframe runs the auto-framing pipeline between a physical
// webcam and a v4l2loopback virtual camera: faces are detected, tracked and
// kept centered at a target size, and the framed stream is written to the
// loopback device for any video application to consume.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/autoframe"
	"github.com/e7canasta/autoframe/capture"
	"github.com/e7canasta/autoframe/facedet"
	"github.com/e7canasta/autoframe/virtualcam"
)

const version = "v0.1.0"

func main() {
	device := flag.String("device", "/dev/video0", "Webcam V4L2 device")
	outDevice := flag.String("out", "/dev/video10", "v4l2loopback output device")
	cascade := flag.String("cascade", "haarcascade_frontalface_default.xml", "Haar cascade XML file")
	width := flag.Int("width", 1280, "Capture width")
	height := flag.Int("height", 720, "Capture height")
	fps := flag.Float64("fps", 30, "Target frame rate")
	faceRatio := flag.Float64("face-ratio", 0.4, "Target face height as fraction of frame height")
	minZoom := flag.Float64("min-zoom", 1.0, "Minimum zoom (>= 1.0)")
	maxZoom := flag.Float64("max-zoom", 3.0, "Maximum zoom")
	smoothing := flag.Float64("smoothing", 0.15, "Smoothing factor (lower = smoother)")
	maxShift := flag.Float64("max-shift", 50, "Maximum pan per frame in pixels")
	memory := flag.Duration("memory", 2*time.Second, "How long a lost face position stays trusted")
	statsInterval := flag.Duration("stats-interval", 10*time.Second, "Seconds between status reports")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("autoframe %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg := autoframe.Config{
		TargetFaceRatio:  *faceRatio,
		MinZoom:          *minZoom,
		MaxZoom:          *maxZoom,
		SmoothingFactor:  *smoothing,
		MaxShiftPerFrame: *maxShift,
		MemoryDuration:   *memory,
		TargetFPS:        *fps,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Collaborators fail fast: an unavailable camera, loopback device or
	// cascade model stops us here, before the run starts.
	src, err := capture.NewWebcam(capture.Config{
		Device: *device,
		Width:  *width,
		Height: *height,
		FPS:    *fps,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	det, err := facedet.NewCascade(facedet.Config{CascadeFile: *cascade})
	if err != nil {
		src.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cam, err := virtualcam.New(virtualcam.Config{
		Device: *outDevice,
		Width:  *width,
		Height: *height,
		FPS:    *fps,
	})
	if err != nil {
		src.Close()
		det.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctrl, err := autoframe.New(src, det, cam, cfg)
	if err != nil {
		src.Close()
		det.Close()
		cam.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := ctrl.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			slog.Info("autoframe: shutdown signal received, stopping")
			if err := ctrl.Stop(); err != nil {
				slog.Warn("autoframe: shutdown reported errors", "error", err)
			}
			return

		case <-ticker.C:
			st := ctrl.Status()
			slog.Info("autoframe: status",
				"running", st.Running,
				"fps", fmt.Sprintf("%.1f", st.FPS),
				"tracking", st.TrackingStatus.String(),
				"zoom", fmt.Sprintf("%.2f", st.Zoom),
				"sent", cam.FramesSent(),
				"preview_dropped", st.PreviewDropped,
			)
			if !st.Running {
				if st.Err != nil {
					slog.Error("autoframe: run ended", "error", st.Err)
				}
				ctrl.Stop()
				os.Exit(1)
			}
		}
	}
}
