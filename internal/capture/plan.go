package capture

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/scrollfilm/internal/timeline"
)

// SectionPadding keeps a little of the previous section in view when a
// keyframe is anchored to a section edge.
const SectionPadding = 50

var ErrUnknownSection = errors.New("unknown section")

// Plan describes a recorded scroll through a stream.
type Plan struct {
	Version   string     `yaml:"version"`
	Width     int        `yaml:"width"`
	Height    int        `yaml:"height"`
	DPR       float64    `yaml:"dpr,omitempty"`
	FPS       int        `yaml:"fps"`
	Duration  float64    `yaml:"duration"` // seconds
	Ease      string     `yaml:"ease,omitempty"`
	QRCode    string     `yaml:"qr_code,omitempty"` // URL stamped into the corner
	Keyframes []Keyframe `yaml:"keyframes"`
}

// Keyframe pins the scroll position at a point in time. Without a section
// the offset is absolute; with one it is relative to the section's start or
// end anchor.
type Keyframe struct {
	Time    float64 `yaml:"time"`
	Section string  `yaml:"section,omitempty"`
	Anchor  string  `yaml:"anchor,omitempty"` // start (default) or end
	Offset  float64 `yaml:"offset,omitempty"`
}

// SweepPlan scrolls from the start of one section to the end of another.
// Empty section ids mean the top and the bottom of the document.
func SweepPlan(width, height, fps int, duration float64, startSection, endSection string) *Plan {
	end := Keyframe{Time: duration, Section: endSection, Anchor: "end"}
	if endSection == "" {
		end = Keyframe{Time: duration, Offset: math.Inf(1)}
	}
	return &Plan{
		Version:  "1.0",
		Width:    width,
		Height:   height,
		DPR:      1,
		FPS:      fps,
		Duration: duration,
		Keyframes: []Keyframe{
			{Time: 0, Section: startSection, Anchor: "start"},
			end,
		},
	}
}

// FrameCount is the number of frames the plan records.
func (p *Plan) FrameCount() int {
	return int(math.Floor(p.Duration * float64(p.FPS)))
}

func (p *Plan) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", p.Width, p.Height)
	}
	if p.FPS <= 0 || p.Duration <= 0 {
		return fmt.Errorf("invalid timing: %d fps for %.2fs", p.FPS, p.Duration)
	}
	if len(p.Keyframes) == 0 {
		return fmt.Errorf("plan has no keyframes")
	}
	for i := 1; i < len(p.Keyframes); i++ {
		if p.Keyframes[i].Time < p.Keyframes[i-1].Time {
			return fmt.Errorf("keyframe %d at %.2fs precedes keyframe %d", i, p.Keyframes[i].Time, i-1)
		}
	}
	if _, err := easing(p.Ease); err != nil {
		return err
	}
	return nil
}

// Layout is what a plan needs to know about the rendered document.
type Layout struct {
	Tracks         []timeline.Boundary
	DocumentHeight float64
	ViewportHeight float64
}

func (l Layout) maxScroll() float64 {
	return math.Max(0, l.DocumentHeight-l.ViewportHeight)
}

// Position resolves a keyframe to a scroll offset within the document.
func (l Layout) Position(kf Keyframe) (float64, error) {
	total := l.maxScroll()
	if kf.Section == "" {
		return clamp(kf.Offset, 0, total), nil
	}

	for _, t := range l.Tracks {
		if t.SectionID != kf.Section {
			continue
		}
		var y float64
		switch kf.Anchor {
		case "", "start":
			y = math.Max(0, t.Top-SectionPadding)
		case "end":
			y = math.Min(total, t.Bottom()-l.ViewportHeight+SectionPadding)
		default:
			return 0, fmt.Errorf("keyframe anchor %q", kf.Anchor)
		}
		return clamp(y+kf.Offset, 0, total), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSection, kf.Section)
}

// Offsets returns the scroll offset of every recorded frame. Between two
// keyframes the offset follows the plan's easing curve.
func (p *Plan) Offsets(l Layout) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ease, _ := easing(p.Ease)

	points := make([]float64, len(p.Keyframes))
	for i, kf := range p.Keyframes {
		y, err := l.Position(kf)
		if err != nil {
			return nil, fmt.Errorf("keyframe %d: %w", i, err)
		}
		points[i] = y
	}

	n := p.FrameCount()
	out := make([]float64, n)
	for i := range out {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1) * p.Duration
		}
		out[i] = math.Floor(p.scrollAt(points, t, ease))
	}
	return out, nil
}

func (p *Plan) scrollAt(points []float64, t float64, ease func(float64) float64) float64 {
	kfs := p.Keyframes
	if t <= kfs[0].Time {
		return points[0]
	}
	last := len(kfs) - 1
	if t >= kfs[last].Time {
		return points[last]
	}

	for i := 0; i < last; i++ {
		if t >= kfs[i].Time && t < kfs[i+1].Time {
			span := kfs[i+1].Time - kfs[i].Time
			if span == 0 {
				return points[i+1]
			}
			return lerp(points[i], points[i+1], ease((t-kfs[i].Time)/span))
		}
	}
	return points[last]
}

func easing(name string) (func(float64) float64, error) {
	switch name {
	case "", "in-out-quad":
		return easeInOutQuad, nil
	case "in-out-cubic":
		return easeInOutCubic, nil
	case "linear":
		return func(t float64) float64 { return t }, nil
	}
	return nil, fmt.Errorf("unknown easing %q", name)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// WritePlan writes a plan to a YAML file
func WritePlan(plan *Plan, path string) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadPlan reads a plan from a YAML file
func ReadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &plan, nil
}
