package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ivlev/scrollfilm/internal/capture"
	"github.com/ivlev/scrollfilm/internal/config"
	"github.com/ivlev/scrollfilm/internal/engine"
	"github.com/ivlev/scrollfilm/internal/source"
	"github.com/ivlev/scrollfilm/internal/stream"
	"github.com/ivlev/scrollfilm/internal/system"
	"github.com/ivlev/scrollfilm/internal/video"
)

var BuildVersion = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: scrollfilm <inspect|record> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "  inspect  print segments, sections and scroll tracks of a stream\n")
	fmt.Fprintf(os.Stderr, "  record   render a scroll through a stream into a video\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := &config.Config{BuildVersion: BuildVersion}
	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	fs.StringVar(&cfg.StreamPath, "stream", "", "Path to the stream YAML (default: newest in streams/)")
	fs.StringVar(&cfg.FramesDir, "frames", "frames", "Directory with {segment}/frame_nnnn files")
	fs.StringVar(&cfg.FramesURL, "frames-url", "", "Origin serving frames (overrides -frames)")
	fs.StringVar(&cfg.FrameExt, "ext", source.DefaultExt, "Frame file extension")
	fs.IntVar(&cfg.PDFDPI, "dpi", 150, "DPI for PDF storyboard segments")
	fs.BoolVar(&cfg.Strict, "strict", false, "Fail on dangling segment references instead of dropping them")
	fs.IntVar(&cfg.Workers, "workers", 0, "Concurrent frame loads (0 - from host CPU and memory)")
	fs.BoolVar(&cfg.Fast, "fast", false, "Bilinear scaling instead of Catmull-Rom")
	fs.IntVar(&cfg.Width, "width", 1440, "Viewport width")
	fs.IntVar(&cfg.Height, "height", 900, "Viewport height")
	fs.Float64Var(&cfg.DPR, "dpr", 1, "Device pixel ratio")
	fs.StringVar(&cfg.Preset, "preset", "", "Viewport preset: 16:9, 9:16, 4:5, desktop, mobile")

	fs.StringVar(&cfg.OutputVideo, "output", "", "Output video (default: output/<stream>_<time>.mp4)")
	fs.StringVar(&cfg.PlanPath, "plan", "", "Capture plan YAML (overrides the sweep flags)")
	fs.IntVar(&cfg.FPS, "fps", 24, "FPS")
	fs.Float64Var(&cfg.Duration, "duration", 30, "Recording length in seconds")
	fs.StringVar(&cfg.StartSection, "start", "", "Section to start the sweep at (default: top)")
	fs.StringVar(&cfg.EndSection, "end", "", "Section to end the sweep at (default: bottom)")
	fs.StringVar(&cfg.Ease, "ease", "", "Scroll easing: in-out-quad, in-out-cubic, linear")
	fs.StringVar(&cfg.QRCode, "qr", "", "URL to stamp as a QR code into the corner")
	fs.StringVar(&cfg.VideoEncoder, "encoder", "", "ffmpeg encoder (default: best available H.264)")
	fs.IntVar(&cfg.Quality, "quality", 0, "Video quality (0 - auto, x264: CRF 1-51, VideoToolbox: bitrate = Q*100kbit/s)")
	fs.BoolVar(&cfg.ShowStats, "stats", false, "Print a performance report and append it to benchmark.log")
	fs.Parse(os.Args[2:])

	if cfg.StreamPath == "" {
		latest, err := system.FindLatestFile("streams", ".yaml", ".yml")
		if err != nil {
			log.Fatalf("[-] No stream given and none found: %v", err)
		}
		cfg.StreamPath = latest
		fmt.Printf("[*] Using latest stream: %s\n", latest)
	}

	if err := cfg.ApplyPreset(); err != nil {
		log.Fatalf("[-] %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "inspect":
		err = inspect(cfg)
	case "record":
		err = record(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("[-] %v", err)
	}
}

func newLoader(cfg *config.Config, st *stream.Config) (source.Loader, func(), int) {
	pdf := source.NewPDFLoader(cfg.PDFDPI)
	closeFn := func() {
		if err := pdf.Close(); err != nil {
			log.Printf("[!] Closing storyboards: %v", err)
		}
	}

	if cfg.FramesURL != "" {
		fmt.Printf("[*] Frames from %s\n", cfg.FramesURL)
		return &source.Mux{Frames: source.NewHTTPLoader(cfg.FramesURL, cfg.FrameExt), PDF: pdf}, closeFn, cfg.Workers
	}

	dir := source.NewDirLoader(cfg.FramesDir, cfg.FrameExt)
	workers := cfg.Workers
	if workers <= 0 && len(st.Segments) > 0 && st.Segments[0].PDF == "" {
		if w, h, err := dir.Dimensions(st.Segments[0]); err == nil {
			workers = system.LoadConcurrency(int64(w) * int64(h) * 4)
			fmt.Printf("[*] Frames are %dx%d, loading %d at a time\n", w, h, workers)
		}
	}
	return &source.Mux{Frames: dir, PDF: pdf}, closeFn, workers
}

func inspect(cfg *config.Config) error {
	st, err := stream.ReadConfig(cfg.StreamPath)
	if err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		fmt.Printf("[!] %v\n", err)
	}

	fmt.Printf("--- [STREAM: %s] ---\n", st.Title)
	fmt.Printf("[*] Segments: %d | Frames: %d | Sections: %d\n", len(st.Segments), st.TotalFrames(), len(st.Sections))
	for _, seg := range st.Segments {
		first := source.FramePath(cfg.FramesDir, seg, 1, cfg.FrameExt)
		if seg.PDF != "" {
			first = seg.PDF
		}
		fmt.Printf("    segment %3d  %4d frames  %s\n", seg.ID, seg.FrameCount, first)
	}

	loader := source.LoaderFunc(func(ctx context.Context, seg stream.Segment, n int) (image.Image, error) {
		return nil, fmt.Errorf("inspect does not load frames")
	})
	e, err := engine.New(st, loader, engine.Options{Strict: cfg.Strict})
	if err != nil {
		return err
	}
	defer e.Close()

	e.Resize(float64(cfg.Width), float64(cfg.Height), cfg.DPR)
	e.Step()

	fmt.Printf("[*] Viewport %dx%d, document %.0fpx\n", cfg.Width, cfg.Height, e.DocumentHeight())
	for _, t := range e.Tracks() {
		sec := st.Sections[t.Index]
		frames := 0
		for _, id := range sec.SegmentIDs {
			if seg, ok := st.Segment(id); ok {
				frames += seg.FrameCount
			}
		}
		ppf := "-"
		if frames > 0 {
			ppf = fmt.Sprintf("%.1f", t.Height/float64(frames))
		}
		fmt.Printf("    %-20s top %7.0f  height %6.0f  words %5d  frames %4d  px/frame %s\n",
			t.SectionID, t.Top, t.Height, sec.Content.Words(), frames, ppf)
	}
	fmt.Println("----------------------------")
	return nil
}

func record(ctx context.Context, cfg *config.Config) error {
	system.InitResourceLimits()

	st, err := stream.ReadConfig(cfg.StreamPath)
	if err != nil {
		return err
	}

	var plan *capture.Plan
	if cfg.PlanPath != "" {
		if plan, err = capture.ReadPlan(cfg.PlanPath); err != nil {
			return fmt.Errorf("reading plan: %w", err)
		}
		fmt.Printf("[*] Using capture plan: %s\n", cfg.PlanPath)
	} else {
		plan = capture.SweepPlan(cfg.Width, cfg.Height, cfg.FPS, cfg.Duration, cfg.StartSection, cfg.EndSection)
		plan.DPR, plan.Ease, plan.QRCode = cfg.DPR, cfg.Ease, cfg.QRCode
	}

	output := cfg.OutputVideo
	if output == "" {
		output = config.DefaultOutput(cfg.StreamPath, time.Now())
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return err
	}

	encoderName := cfg.VideoEncoder
	if encoderName == "" {
		encoderName = system.GetBestH264Encoder()
		if encoderName != "libx264" {
			fmt.Printf("[*] Hardware encoder detected: %s\n", encoderName)
		}
	}
	quality := cfg.Quality
	if quality == 0 {
		quality = video.DefaultQuality(encoderName)
	}

	var overlay *video.Overlay
	if plan.QRCode != "" {
		if overlay, err = video.NewQROverlay(plan.QRCode, plan.Height/6, plan.Height/30); err != nil {
			return err
		}
	}

	loader, closeLoader, workers := newLoader(cfg, st)
	defer closeLoader()

	e, err := engine.New(st, loader, engine.Options{
		Strict:      cfg.Strict,
		Concurrency: workers,
		AssetBase:   cfg.FramesDir,
		AssetExt:    cfg.FrameExt,
		Fast:        cfg.Fast,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	fmt.Println("--- [SCROLLFILM: CAPTURE] ---")
	fmt.Printf("[*] Stream: %s | Frames: %d | Sections: %d\n", cfg.StreamPath, e.TotalFrames(), len(st.Sections))
	fmt.Printf("[*] Viewport: %dx%d @%.1fx | %d FPS for %.1fs\n", plan.Width, plan.Height, plan.DPR, plan.FPS, plan.Duration)
	fmt.Println("-----------------------------")

	rep, err := capture.Record(ctx, e, plan, func(size image.Point) (video.FrameEncoder, error) {
		enc := video.NewFFmpegEncoder(video.Params{
			Width:   size.X,
			Height:  size.Y,
			FPS:     plan.FPS,
			Encoder: encoderName,
			Quality: quality,
			Output:  output,
		})
		enc.Overlay = overlay
		return enc, nil
	})
	if err != nil {
		return err
	}

	if cfg.ShowStats {
		fmt.Print(rep)

		logEntry := fmt.Sprintf("[%s] Build: %s | Stream: %s | Frames: %d | Total: %.2fs | Load: %.2fs | Render: %.2fs | FPS: %.2f\n",
			time.Now().Format("2006-01-02 15:04:05"),
			cfg.BuildVersion,
			filepath.Base(cfg.StreamPath),
			rep.Frames,
			rep.TotalTime.Seconds(),
			rep.LoadTime.Seconds(),
			rep.RenderTime.Seconds(),
			rep.EffectiveFPS(),
		)
		f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			f.WriteString(logEntry)
			f.Close()
		} else {
			fmt.Printf("[!] Could not write benchmark.log: %v\n", err)
		}
	}

	fmt.Printf("[+++] Done! Result: %s\n", output)
	return nil
}
