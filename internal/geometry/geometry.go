// Package geometry sizes the scroll track of every section from its content.
//
// A track is as long as the reader needs to read the section, not as long as
// its animation: the timeline package stretches or squeezes the frames of a
// section over whatever height is computed here.
package geometry

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ivlev/scrollfilm/internal/stream"
	"github.com/ivlev/scrollfilm/internal/timeline"
)

// FallbackHeight is used for sections that cannot be found.
const FallbackHeight = 800

type Params struct {
	PixelsPerWord float64 // scroll distance per word of text
	LeadIn        float64 // extra track before the first section's text
	TailFraction  float64 // share of the viewport height appended to the last section
	MinHeight     float64 // floor for any track
	PageOffset    float64 // document offset of the first track

	// reflow estimate
	LineHeight     float64
	GlyphWidth     float64 // average advance of one character
	ParagraphGap   float64
	DesktopPadding float64 // horizontal padding of the text column, per side
	MobilePadding  float64
}

func DefaultParams() Params {
	return Params{
		PixelsPerWord:  3,
		LeadIn:         100,
		TailFraction:   0.3,
		MinHeight:      300,
		LineHeight:     28.8,
		GlyphWidth:     8.5,
		ParagraphGap:   16,
		DesktopPadding: 48,
		MobilePadding:  24,
	}
}

// average characters per word including the trailing space
const charsPerWord = 6

type Geometry struct {
	params   Params
	layout   stream.Layout
	sections []stream.Section

	width, height float64
	heights       []float64
}

func New(sections []stream.Section, layout stream.Layout, params Params) *Geometry {
	g := &Geometry{
		params:   params,
		layout:   layout.WithDefaults(),
		sections: sections,
	}
	g.recompute()
	return g
}

// SetViewport updates the viewport and recomputes every track. It reports
// whether anything changed.
func (g *Geometry) SetViewport(width, height float64) bool {
	if width == g.width && height == g.height {
		return false
	}
	g.width, g.height = width, height
	g.recompute()
	return true
}

func (g *Geometry) Viewport() (width, height float64) { return g.width, g.height }

func (g *Geometry) recompute() {
	g.heights = make([]float64, len(g.sections))
	for i := range g.sections {
		g.heights[i] = g.compute(i)
	}
}

// ScrollHeight returns the track height of a section. The index is
// authoritative; the id is used when the index does not match.
func (g *Geometry) ScrollHeight(sectionID string, index int) float64 {
	if index >= 0 && index < len(g.sections) && g.sections[index].ID == sectionID {
		return g.heights[index]
	}
	for i, s := range g.sections {
		if s.ID == sectionID {
			return g.heights[i]
		}
	}
	return FallbackHeight
}

func (g *Geometry) compute(index int) float64 {
	sec := g.sections[index]
	p := g.params

	h := float64(sec.Content.Words()) * p.PixelsPerWord
	// narrow columns wrap into more lines than the word budget covers
	if text := g.TextHeight(index); text > h {
		h = text
	}

	if index == 0 {
		h += p.LeadIn
	}
	if index == len(g.sections)-1 {
		h += g.height * p.TailFraction
	}

	return math.Max(h, p.MinHeight)
}

// TextHeight estimates the rendered height of a section's text at the
// current viewport width. It is 0 until the viewport is known.
func (g *Geometry) TextHeight(index int) float64 {
	if g.width <= 0 || index < 0 || index >= len(g.sections) {
		return 0
	}
	p := g.params

	col := g.width - 2*p.MobilePadding
	if g.width >= float64(g.layout.Breakpoint) {
		col = g.width*float64(100-g.layout.DesktopAnimationWidth)/100 - 2*p.DesktopPadding
	}
	col = math.Min(col, float64(g.layout.ContentMaxWidth))
	perLine := math.Max(1, math.Floor(col/p.GlyphWidth))

	content := g.sections[index].Content
	text := content.Text()
	var paragraphs []int
	if strings.TrimSpace(text) == "" {
		paragraphs = []int{content.Words() * charsPerWord}
	} else {
		for _, para := range strings.Split(text, "\n") {
			if para = strings.TrimSpace(para); para != "" {
				paragraphs = append(paragraphs, utf8.RuneCountInString(para))
			}
		}
	}

	h := 0.0
	for _, chars := range paragraphs {
		if chars == 0 {
			continue
		}
		h += math.Ceil(float64(chars)/perLine)*p.LineHeight + p.ParagraphGap
	}
	return h
}

// Tracks stacks the section tracks from PageOffset in section order.
func (g *Geometry) Tracks() []timeline.Boundary {
	out := make([]timeline.Boundary, len(g.sections))
	top := g.params.PageOffset
	for i, s := range g.sections {
		out[i] = timeline.Boundary{SectionID: s.ID, Index: i, Top: top, Height: g.heights[i]}
		top += g.heights[i]
	}
	return out
}

// DocumentHeight is the total scrollable height of all tracks.
func (g *Geometry) DocumentHeight() float64 {
	h := g.params.PageOffset
	for _, v := range g.heights {
		h += v
	}
	return h
}
