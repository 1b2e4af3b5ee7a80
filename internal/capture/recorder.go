// Package capture records a scripted scroll through a stream into a video,
// frame by frame, with the same engine that serves readers.
package capture

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/ivlev/scrollfilm/internal/system"
	"github.com/ivlev/scrollfilm/internal/timeline"
	"github.com/ivlev/scrollfilm/internal/video"
)

// Driver is the part of the engine a recording needs.
type Driver interface {
	Resize(width, height, dpr float64)
	Start(ctx context.Context)
	WaitLoaded(ctx context.Context) error
	Scroll(y float64)
	Step() bool
	Tracks() []timeline.Boundary
	DocumentHeight() float64
	Frame() *image.RGBA
	GlobalFrameNumber() int
}

type Report struct {
	Frames      int
	Redraws     int
	FirstFrame  int // global frame shown at the start
	LastFrame   int // and at the end
	LoadTime    time.Duration
	RenderTime  time.Duration
	TotalTime   time.Duration
	Before      system.Stats
	After       system.Stats
	ScrollRange [2]float64
}

func (r Report) EffectiveFPS() float64 {
	if r.TotalTime <= 0 {
		return 0
	}
	return float64(r.Frames) / r.TotalTime.Seconds()
}

func (r Report) String() string {
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Frames: %d (%d redraws, stream frames %d..%d)\n"+
			"Scroll: %.0fpx to %.0fpx\n"+
			"Total Time: %.2fs\n"+
			"Loading: %.2fs\n"+
			"Rendering + Encoding: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"CPU: %.1f%% -> %.1f%% | Memory: %dMB -> %dMB\n"+
			"----------------------------\n",
		r.Frames, r.Redraws, r.FirstFrame, r.LastFrame,
		r.ScrollRange[0], r.ScrollRange[1],
		r.TotalTime.Seconds(), r.LoadTime.Seconds(), r.RenderTime.Seconds(), r.EffectiveFPS(),
		r.Before.CPUPercent, r.After.CPUPercent, r.Before.MemUsedMB, r.After.MemUsedMB,
	)
}

// OpenFunc creates the encoder once the frame size is known. The size is
// rounded up to even dimensions; the encoder pads the surface to it.
type OpenFunc func(frame image.Point) (video.FrameEncoder, error)

// Record loads every frame, then scrolls through the plan and hands each
// rendered frame to the encoder returned by open. The encoder is started and
// closed here.
func Record(ctx context.Context, d Driver, plan *Plan, open OpenFunc) (rep Report, err error) {
	if err := plan.Validate(); err != nil {
		return rep, fmt.Errorf("capture plan: %w", err)
	}
	start := time.Now()
	rep.Before = system.CollectStats()

	dpr := plan.DPR
	if dpr <= 0 {
		dpr = 1
	}
	d.Resize(float64(plan.Width), float64(plan.Height), dpr)
	d.Start(ctx)
	if err := d.WaitLoaded(ctx); err != nil {
		return rep, fmt.Errorf("loading frames: %w", err)
	}
	rep.LoadTime = time.Since(start)

	// one step applies the viewport so the tracks are measured
	d.Step()
	layout := Layout{Tracks: d.Tracks(), DocumentHeight: d.DocumentHeight(), ViewportHeight: float64(plan.Height)}
	offsets, err := plan.Offsets(layout)
	if err != nil {
		return rep, err
	}
	if len(offsets) > 0 {
		rep.ScrollRange = [2]float64{offsets[0], offsets[len(offsets)-1]}
	}

	surface := d.Frame()
	if surface == nil {
		return rep, fmt.Errorf("no display surface for %dx%d", plan.Width, plan.Height)
	}
	size := video.EvenSize(surface.Bounds().Size())
	enc, err := open(size)
	if err != nil {
		return rep, err
	}
	if err := enc.Start(ctx); err != nil {
		return rep, err
	}
	defer func() {
		if cerr := enc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	log.Printf("[*] Recording %d frames at %v, scroll %.0fpx to %.0fpx",
		len(offsets), size, rep.ScrollRange[0], rep.ScrollRange[1])

	renderStart := time.Now()
	for i, y := range offsets {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		d.Scroll(y)
		if d.Step() {
			rep.Redraws++
		}
		frame := d.Frame()
		if frame == nil {
			return rep, fmt.Errorf("frame %d: no display surface", i)
		}
		if err := enc.WriteFrame(frame); err != nil {
			return rep, fmt.Errorf("frame %d: %w", i, err)
		}

		g := d.GlobalFrameNumber()
		if i == 0 {
			rep.FirstFrame = g
		}
		rep.LastFrame = g
		rep.Frames++

		if i%50 == 0 {
			fmt.Printf("[>] Frame %d/%d (%d%%)\n", i, len(offsets), i*100/len(offsets))
		}
	}

	rep.RenderTime = time.Since(renderStart)
	rep.TotalTime = time.Since(start)
	rep.After = system.CollectStats()
	return rep, nil
}
