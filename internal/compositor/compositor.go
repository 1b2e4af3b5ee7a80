// Package compositor draws resolved frames onto a DPR-aware back buffer.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"github.com/ivlev/scrollfilm/internal/stream"
	"github.com/ivlev/scrollfilm/internal/system"
)

// ErrGeometryNotReady is returned while the display has no measurable size.
var ErrGeometryNotReady = errors.New("display geometry not ready")

// FrameSource is the read side of the frame store.
type FrameSource interface {
	GetFrame(segmentID, frameNumber int) image.Image
}

type Options struct {
	Background color.Color
	// Fast trades scaling quality for speed (bilinear instead of Catmull-Rom).
	Fast bool
	Pool *system.ImagePool
}

type drawKey struct {
	ref     stream.FrameRef
	mode    FitMode
	offsetX float64
}

// Compositor is owned by the engine loop and is not safe for concurrent use.
type Compositor struct {
	src    FrameSource
	pool   *system.ImagePool
	bg     *image.Uniform
	scaler draw.Interpolator

	display Size
	dpr     float64
	buf     *image.RGBA

	last    drawKey
	drawn   bool
	lastRef stream.FrameRef
	hasLast bool
}

func New(src FrameSource, opts Options) *Compositor {
	c := &Compositor{
		src:    src,
		pool:   opts.Pool,
		scaler: draw.CatmullRom,
		dpr:    1,
	}
	if c.pool == nil {
		c.pool = system.NewImagePool()
	}
	bg := opts.Background
	if bg == nil {
		bg = color.Black
	}
	c.bg = image.NewUniform(bg)
	if opts.Fast {
		c.scaler = draw.ApproxBiLinear
	}
	return c
}

// Resize sets the display size in CSS pixels and the device pixel ratio. The
// back buffer is display × dpr. Unchanged dimensions keep the buffer.
func (c *Compositor) Resize(display Size, dpr float64) {
	if dpr <= 0 {
		dpr = 1
	}
	if display == c.display && dpr == c.dpr && (c.buf != nil || display.Empty()) {
		return
	}
	c.display, c.dpr = display, dpr
	c.drawn = false

	old := c.buf
	c.buf = nil
	if !display.Empty() {
		w := int(math.Round(display.W * dpr))
		h := int(math.Round(display.H * dpr))
		if w > 0 && h > 0 {
			c.buf = c.pool.Get(image.Rect(0, 0, w, h))
		}
	}
	c.pool.Put(old)
}

func (c *Compositor) Display() (Size, float64) { return c.display, c.dpr }

// Frame returns the back buffer, nil until the display has a size.
func (c *Compositor) Frame() *image.RGBA { return c.buf }

// Drawn returns the frame currently on the buffer.
func (c *Compositor) Drawn() (stream.FrameRef, bool) { return c.lastRef, c.hasLast }

// Draw paints ref onto the buffer. When ref is not available it falls back
// to the closest earlier frame of the same segment, then to the frame drawn
// last. It reports whether the buffer changed; an unchanged frame, fit mode
// and offset is skipped.
func (c *Compositor) Draw(ref stream.FrameRef, mode FitMode, offsetX float64) (bool, error) {
	if c.buf == nil {
		return false, ErrGeometryNotReady
	}

	img, used := c.resolve(ref)
	if img == nil {
		return false, nil
	}

	key := drawKey{ref: used, mode: mode, offsetX: offsetX}
	if c.drawn && key == c.last {
		return false, nil
	}

	bounds := img.Bounds()
	r := Fit(Size{W: float64(bounds.Dx()), H: float64(bounds.Dy())}, c.display, mode, offsetX)
	dst := image.Rect(
		int(math.Round(r.X*c.dpr)),
		int(math.Round(r.Y*c.dpr)),
		int(math.Round((r.X+r.W)*c.dpr)),
		int(math.Round((r.Y+r.H)*c.dpr)),
	)

	draw.Draw(c.buf, c.buf.Bounds(), c.bg, image.Point{}, draw.Src)
	c.scaler.Scale(c.buf, dst, img, bounds, draw.Over, nil)

	c.last, c.drawn = key, true
	c.lastRef, c.hasLast = used, true
	return true, nil
}

func (c *Compositor) resolve(ref stream.FrameRef) (image.Image, stream.FrameRef) {
	for n := ref.FrameNumber; n >= 1; n-- {
		r := stream.FrameRef{SegmentID: ref.SegmentID, FrameNumber: n}
		if img := c.src.GetFrame(r.SegmentID, r.FrameNumber); img != nil {
			return img, r
		}
	}
	if c.hasLast {
		if img := c.src.GetFrame(c.lastRef.SegmentID, c.lastRef.FrameNumber); img != nil {
			return img, c.lastRef
		}
	}
	return nil, stream.FrameRef{}
}

// Close returns the buffer to the pool.
func (c *Compositor) Close() {
	c.pool.Put(c.buf)
	c.buf = nil
	c.drawn = false
}

// ParseColor parses "#rgb" and "#rrggbb" theme colors.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
