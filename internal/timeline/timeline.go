// Package timeline maps a scroll offset to the frame that should be on screen.
//
// Each section owns a track [Top, Top+Height) of the document. Progress
// through a track is spread over the section's segments weighted by their
// frame counts, so a segment with twice the frames gets twice the scroll
// distance. At an exact segment boundary the following segment wins: the
// frame shown is its first frame, never the last frame of the preceding one.
package timeline

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/ivlev/scrollfilm/internal/stream"
)

// eps absorbs float noise in offset/height divisions so that offsets landing
// exactly on a frame or segment boundary resolve deterministically.
const eps = 1e-9

// Boundary is the measured track of one section.
type Boundary struct {
	SectionID string
	Index     int
	Top       float64
	Height    float64
}

func (b Boundary) Bottom() float64 { return b.Top + b.Height }

// Position is the result of resolving one scroll offset.
type Position struct {
	SegmentID       int
	FrameNumber     int
	GlobalFrame     int
	PixelsPerFrame  float64
	SectionID       string
	SectionIndex    int
	SectionProgress float64
}

func (p Position) Ref() stream.FrameRef {
	return stream.FrameRef{SegmentID: p.SegmentID, FrameNumber: p.FrameNumber}
}

type track struct {
	Boundary
	segments []stream.Segment
	starts   []int // frames before each segment within the track
	frames   int
}

// Mapper resolves scroll offsets against the current boundaries. It is not
// safe for concurrent use; the engine loop owns it.
type Mapper struct {
	cfg    *stream.Config
	strict bool
	tracks []track
}

// New creates a mapper. In strict mode configuration inconsistencies are
// returned from SetBoundaries; otherwise they are logged and ignored.
func New(cfg *stream.Config, strict bool) *Mapper {
	return &Mapper{cfg: cfg, strict: strict}
}

// SetBoundaries replaces the section tracks. It must be called again whenever
// the layout changes, before the next Resolve.
func (m *Mapper) SetBoundaries(bounds []Boundary) error {
	tracks := make([]track, 0, len(bounds))
	for _, b := range bounds {
		idx := m.cfg.SectionIndex(b.SectionID)
		if idx < 0 {
			if m.strict {
				return fmt.Errorf("%w: boundary for unknown section %q", stream.ErrInvalidConfig, b.SectionID)
			}
			log.Printf("[!] Ignoring boundary of unknown section %q", b.SectionID)
			continue
		}

		t := track{Boundary: b}
		t.Index = idx
		for _, id := range m.cfg.Sections[idx].SegmentIDs {
			seg, ok := m.cfg.Segment(id)
			if !ok {
				if m.strict {
					return fmt.Errorf("%w: section %q → segment %d", stream.ErrUnknownSegment, b.SectionID, id)
				}
				log.Printf("[!] Section %q references unknown segment %d, ignoring it", b.SectionID, id)
				continue
			}
			t.starts = append(t.starts, t.frames)
			t.segments = append(t.segments, seg)
			t.frames += seg.FrameCount
		}
		tracks = append(tracks, t)
	}

	sort.SliceStable(tracks, func(i, j int) bool { return tracks[i].Top < tracks[j].Top })
	m.tracks = tracks
	return nil
}

// Boundaries returns the current tracks in document order.
func (m *Mapper) Boundaries() []Boundary {
	out := make([]Boundary, len(m.tracks))
	for i, t := range m.tracks {
		out[i] = t.Boundary
	}
	return out
}

// Resolve maps a scroll offset to a frame. It never fails: before the first
// track the first frame of the first section shows, past the last track its
// final frame does.
func (m *Mapper) Resolve(offset float64) Position {
	i := m.locate(offset)
	if i < 0 {
		return m.initial()
	}
	t := m.tracks[i]

	progress := clamp((offset-t.Top)/t.Height, 0, 1)
	pos := Position{SectionID: t.SectionID, SectionIndex: t.Index, SectionProgress: progress}

	if t.frames == 0 {
		// text-only section: hold the neighbouring animation
		src, p := m.holdFor(i)
		if src < 0 {
			init := m.initial()
			pos.SegmentID, pos.FrameNumber, pos.GlobalFrame = init.SegmentID, init.FrameNumber, init.GlobalFrame
			return pos
		}
		pos.SegmentID, pos.FrameNumber = frameAt(m.tracks[src], p)
	} else {
		pos.SegmentID, pos.FrameNumber = frameAt(t, progress)
		pos.PixelsPerFrame = t.Height / float64(t.frames)
	}
	pos.GlobalFrame = m.cfg.GlobalFrame(pos.Ref())
	return pos
}

// locate returns the track containing offset, skipping zero-height tracks.
// Offsets before all tracks clamp to the first, offsets in a gap or past the
// end to the preceding one.
func (m *Mapper) locate(offset float64) int {
	found := -1
	for i, t := range m.tracks {
		if t.Height <= 0 {
			continue
		}
		if found < 0 || t.Top <= offset {
			found = i
		}
		if t.Top > offset {
			break
		}
	}
	return found
}

// holdFor picks the animated track a text-only track borrows its frame from:
// the end of the closest preceding one, else the start of the next one.
// Collapsed tracks are never on screen and do not count.
func (m *Mapper) holdFor(i int) (int, float64) {
	for j := i - 1; j >= 0; j-- {
		if m.tracks[j].frames > 0 && m.tracks[j].Height > 0 {
			return j, 1
		}
	}
	for j := i + 1; j < len(m.tracks); j++ {
		if m.tracks[j].frames > 0 && m.tracks[j].Height > 0 {
			return j, 0
		}
	}
	return -1, 0
}

func (m *Mapper) initial() Position {
	pos := Position{FrameNumber: 1, SectionIndex: -1}
	if len(m.cfg.Sections) > 0 {
		pos.SectionID, pos.SectionIndex = m.cfg.Sections[0].ID, 0
	}
	if len(m.cfg.Segments) > 0 {
		pos.SegmentID = m.cfg.Segments[0].ID
		pos.GlobalFrame = 1
	}
	return pos
}

// frameAt spreads progress over the track's segments by frame count. Frame n
// of a segment covers local progress ((n-1)/count, n/count]; frame 1 also
// owns the segment's very start.
func frameAt(t track, progress float64) (segmentID, frame int) {
	x := progress * float64(t.frames)

	j := 0
	for k := len(t.starts) - 1; k >= 0; k-- {
		if float64(t.starts[k]) <= x+eps {
			j = k
			break
		}
	}
	seg := t.segments[j]

	local := x - float64(t.starts[j])
	n := int(math.Ceil(local - eps))
	if n < 1 {
		n = 1
	}
	if n > seg.FrameCount {
		n = seg.FrameCount
	}
	return seg.ID, n
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
