package geometry

import (
	"math"
	"testing"

	"github.com/ivlev/scrollfilm/internal/stream"
)

func sections(words ...int) []stream.Section {
	out := make([]stream.Section, len(words))
	for i, w := range words {
		out[i] = stream.Section{ID: string(rune('a' + i)), Content: stream.Content{WordCount: w}}
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestScrollHeight(t *testing.T) {
	g := New(sections(180, 180, 180), stream.Layout{}, DefaultParams())
	g.SetViewport(1440, 900)

	tests := []struct {
		id    string
		index int
		want  float64
	}{
		{"a", 0, 640}, // lead-in
		{"b", 1, 540},
		{"c", 2, 810}, // tail share of the viewport
		{"b", 7, 540}, // stale index falls back to the id
		{"missing", -1, FallbackHeight},
	}

	for _, tt := range tests {
		if got := g.ScrollHeight(tt.id, tt.index); !near(got, tt.want) {
			t.Errorf("ScrollHeight(%q, %d) = %f, want %f", tt.id, tt.index, got, tt.want)
		}
	}
}

func TestNarrowViewportGrowsTrack(t *testing.T) {
	g := New(sections(180, 180, 180), stream.Layout{}, DefaultParams())
	g.SetViewport(1440, 900)
	wide := g.ScrollHeight("b", 1)

	if !g.SetViewport(320, 640) {
		t.Fatal("Expected viewport change to be reported")
	}
	if g.SetViewport(320, 640) {
		t.Error("Expected identical viewport to be a no-op")
	}
	narrow := g.ScrollHeight("b", 1)

	t.Logf("wide=%.1f narrow=%.1f", wide, narrow)
	// 272px column, 32 chars per line, 1080 chars -> 34 lines
	if !near(narrow, 34*28.8+16) {
		t.Errorf("Expected reflowed height %f, got %f", 34*28.8+16, narrow)
	}
	if narrow <= wide {
		t.Error("Expected the narrow layout to need more scroll distance")
	}
}

func TestMinHeight(t *testing.T) {
	g := New(sections(5, 5, 5), stream.Layout{}, DefaultParams())
	g.SetViewport(1440, 900)

	if got := g.ScrollHeight("b", 1); got != 300 {
		t.Errorf("Expected floor of 300, got %f", got)
	}
}

func TestTextHeightFromParagraphs(t *testing.T) {
	secs := []stream.Section{{ID: "a", Content: stream.Content{
		Heading: "Title",
		Body:    "one two three\n\nfour five",
	}}}
	g := New(secs, stream.Layout{}, DefaultParams())

	if g.TextHeight(0) != 0 {
		t.Error("Expected no text height before the viewport is known")
	}

	g.SetViewport(1440, 900)
	// heading, first and second paragraph each fit on one line
	if got := g.TextHeight(0); !near(got, 3*(28.8+16)) {
		t.Errorf("Expected three one-line paragraphs, got %f", got)
	}
}

func TestTracksStack(t *testing.T) {
	p := DefaultParams()
	p.PageOffset = 60
	g := New(sections(180, 180, 180), stream.Layout{}, p)
	g.SetViewport(1440, 900)

	tracks := g.Tracks()
	if len(tracks) != 3 {
		t.Fatalf("Expected 3 tracks, got %d", len(tracks))
	}
	top := 60.0
	for i, tr := range tracks {
		if tr.Index != i || !near(tr.Top, top) {
			t.Errorf("Track %d: got index %d top %f, want top %f", i, tr.Index, tr.Top, top)
		}
		top = tr.Bottom()
	}
	if !near(g.DocumentHeight(), top) {
		t.Errorf("Expected document height %f, got %f", top, g.DocumentHeight())
	}
}
