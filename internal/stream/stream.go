package stream

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig is returned for configs that cannot drive a stream at all.
	ErrInvalidConfig = errors.New("invalid stream config")
	// ErrUnknownSegment is returned when a section references a segment id
	// that is not declared in the segment list.
	ErrUnknownSegment = errors.New("section references unknown segment")
)

// Config is the read-only description of one stream: its frame sequences and
// the narrative sections mapped onto them.
type Config struct {
	ID       string    `yaml:"id"`
	Title    string    `yaml:"title"`
	Type     string    `yaml:"type"` // story, marketing, presentation
	Segments []Segment `yaml:"segments"`
	Sections []Section `yaml:"sections"`
	Theme    Theme     `yaml:"theme"`
}

// Segment is one continuously numbered shot.
type Segment struct {
	ID         int    `yaml:"id"`
	FrameCount int    `yaml:"frame_count"`
	FramePath  string `yaml:"frame_path,omitempty"` // custom pattern, {n} is replaced by the padded frame number
	PDF        string `yaml:"pdf,omitempty"`        // storyboard PDF, page n is frame n
}

// Section is a block of narrative content played over one or more segments.
type Section struct {
	ID         string  `yaml:"id"`
	SegmentIDs []int   `yaml:"segments"`
	Layout     string  `yaml:"layout,omitempty"`
	Content    Content `yaml:"content"`
}

type Content struct {
	Heading    string `yaml:"heading,omitempty"`
	Subheading string `yaml:"subheading,omitempty"`
	Body       string `yaml:"body,omitempty"`
	WordCount  int    `yaml:"word_count,omitempty"` // overrides counting words in the text
}

// Text returns all text of the section in reading order, paragraphs separated
// by blank lines.
func (c Content) Text() string {
	var parts []string
	for _, s := range []string{c.Heading, c.Subheading, c.Body} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Words returns the configured word count or counts the words of the text.
func (c Content) Words() int {
	if c.WordCount > 0 {
		return c.WordCount
	}
	return len(strings.Fields(c.Text()))
}

type Theme struct {
	Colors Colors `yaml:"colors"`
	Layout Layout `yaml:"layout"`
}

type Colors struct {
	Background string `yaml:"background"`
	Text       string `yaml:"text"`
	Accent     string `yaml:"accent"`
	Muted      string `yaml:"muted"`
}

// Layout holds the responsive layout knobs that influence geometry and
// compositing. Zero values are replaced by Defaults.
type Layout struct {
	Breakpoint            int    `yaml:"breakpoint,omitempty"`              // px, desktop at or above
	DesktopAnimationWidth int    `yaml:"desktop_animation_width,omitempty"` // percent of viewport width
	ContentMaxWidth       int    `yaml:"content_max_width,omitempty"`       // px
	AnimationFit          string `yaml:"animation_fit,omitempty"`           // cover or contain
	EdgeFade              *bool  `yaml:"edge_fade,omitempty"`
	EdgeFadeWidth         int    `yaml:"edge_fade_width,omitempty"` // px
}

// WithDefaults fills unset layout fields with the stream engine defaults.
func (l Layout) WithDefaults() Layout {
	if l.Breakpoint <= 0 {
		l.Breakpoint = 768
	}
	if l.DesktopAnimationWidth <= 0 || l.DesktopAnimationWidth >= 100 {
		l.DesktopAnimationWidth = 55
	}
	if l.ContentMaxWidth <= 0 {
		l.ContentMaxWidth = 540
	}
	if l.AnimationFit == "" {
		l.AnimationFit = "cover"
	}
	if l.EdgeFade == nil {
		on := true
		l.EdgeFade = &on
	}
	if l.EdgeFadeWidth <= 0 {
		l.EdgeFadeWidth = 80
	}
	return l
}

// CenterOffset is the horizontal crop shift that recenters the image in the
// part of the animation column not covered by the edge fade. Only desktop
// layouts carry the fade.
func (l Layout) CenterOffset(viewportWidth float64) float64 {
	l = l.WithDefaults()
	if viewportWidth < float64(l.Breakpoint) || !*l.EdgeFade {
		return 0
	}
	return float64(l.EdgeFadeWidth) / 2
}

// FrameRef addresses one frame of one segment.
type FrameRef struct {
	SegmentID   int
	FrameNumber int
}

func (r FrameRef) String() string {
	return fmt.Sprintf("%d/%04d", r.SegmentID, r.FrameNumber)
}

// TotalFrames is the sum of all segments' frame counts.
func (c *Config) TotalFrames() int {
	total := 0
	for _, s := range c.Segments {
		total += s.FrameCount
	}
	return total
}

// Segment looks a segment up by id.
func (c *Config) Segment(id int) (Segment, bool) {
	for _, s := range c.Segments {
		if s.ID == id {
			return s, true
		}
	}
	return Segment{}, false
}

// SegmentIndex returns the position of a segment in configuration order, or -1.
func (c *Config) SegmentIndex(id int) int {
	for i, s := range c.Segments {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// GlobalFrame is the 1-based position of ref in the concatenation of all
// segments in configuration order. It returns 0 for refs that are not part of
// the configuration.
func (c *Config) GlobalFrame(ref FrameRef) int {
	offset := 0
	for _, s := range c.Segments {
		if s.ID == ref.SegmentID {
			if ref.FrameNumber < 1 || ref.FrameNumber > s.FrameCount {
				return 0
			}
			return offset + ref.FrameNumber
		}
		offset += s.FrameCount
	}
	return 0
}

// SectionIndex returns the position of a section, or -1.
func (c *Config) SectionIndex(id string) int {
	for i, s := range c.Sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Validate checks the structural invariants of the config. Dangling segment
// references are reported with ErrUnknownSegment so callers can decide to
// fail or to Sanitize.
func (c *Config) Validate() error {
	if len(c.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidConfig)
	}
	seen := make(map[int]bool, len(c.Segments))
	for _, s := range c.Segments {
		if s.FrameCount < 1 {
			return fmt.Errorf("%w: segment %d has frame count %d", ErrInvalidConfig, s.ID, s.FrameCount)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate segment id %d", ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = true
	}

	ids := make(map[string]bool, len(c.Sections))
	var dangling []string
	for _, sec := range c.Sections {
		if sec.ID == "" {
			return fmt.Errorf("%w: section without id", ErrInvalidConfig)
		}
		if ids[sec.ID] {
			return fmt.Errorf("%w: duplicate section id %q", ErrInvalidConfig, sec.ID)
		}
		ids[sec.ID] = true
		for _, id := range sec.SegmentIDs {
			if !seen[id] {
				dangling = append(dangling, fmt.Sprintf("%s→%d", sec.ID, id))
			}
		}
	}
	if len(dangling) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSegment, strings.Join(dangling, ", "))
	}
	return nil
}

// Sanitize returns a copy of the config with every dangling segment reference
// removed, together with the removed references.
func (c *Config) Sanitize() (*Config, []string) {
	out := *c
	out.Sections = make([]Section, len(c.Sections))
	var dropped []string
	for i, sec := range c.Sections {
		kept := make([]int, 0, len(sec.SegmentIDs))
		for _, id := range sec.SegmentIDs {
			if _, ok := c.Segment(id); ok {
				kept = append(kept, id)
			} else {
				dropped = append(dropped, fmt.Sprintf("%s→%d", sec.ID, id))
			}
		}
		sec.SegmentIDs = kept
		out.Sections[i] = sec
	}
	return &out, dropped
}
