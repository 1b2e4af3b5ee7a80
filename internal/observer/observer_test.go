package observer

import (
	"testing"
)

func newTracked(t *testing.T) (*Tracker, *Geometric) {
	t.Helper()
	out := make(chan *Geometric, 1)
	tr := NewTracker([]string{"a", "b", "c"}, GeometricFactory(out))
	g := <-out

	tr.Register("a", Target{Top: 0, Height: 1000})
	tr.Register("b", Target{Top: 1000, Height: 1000})
	tr.Register("c", Target{Top: 2000, Height: 1000})
	return tr, g
}

func TestEntryRatio(t *testing.T) {
	tests := []struct {
		scrollY float64
		target  Target
		ratio   float64
		inView  bool
	}{
		{0, Target{0, 1000}, 1, true},
		{700, Target{0, 1000}, 0.375, true},
		{700, Target{1000, 1000}, 0.625, true},
		{0, Target{900, 100}, 0, false},
		{0, Target{700, 50}, 0.0625, true},
	}

	for _, tt := range tests {
		e := entryFor("x", tt.target, tt.scrollY, 800)
		if e.Ratio != tt.ratio || e.Intersecting != tt.inView {
			t.Errorf("entryFor(%v at %.0f) = %.4f/%v, want %.4f/%v", tt.target, tt.scrollY, e.Ratio, e.Intersecting, tt.ratio, tt.inView)
		}
	}
}

func TestActiveSection(t *testing.T) {
	tr, g := newTracked(t)
	defer tr.Close()

	if _, ok := tr.Active(DefaultThreshold); ok {
		t.Error("Expected no active section before the viewport is known")
	}

	tests := []struct {
		scrollY   float64
		threshold float64
		want      string
	}{
		{0, DefaultThreshold, "a"},
		{700, DefaultThreshold, "b"}, // both qualify, b's top is nearer the center
		{700, 0.9, "b"},              // nothing qualifies, previous stays
		{2200, DefaultThreshold, "c"},
	}

	for _, tt := range tests {
		g.Update(tt.scrollY, 800)
		got, ok := tr.Active(tt.threshold)
		if !ok || got.SectionID != tt.want {
			t.Errorf("scroll %.0f: got %q (ok=%v), want %q", tt.scrollY, got.SectionID, ok, tt.want)
		}
		t.Logf("scroll %.0f -> %+v", tt.scrollY, got)
	}

	if got, _ := tr.Active(DefaultThreshold); got.SectionIndex != 2 {
		t.Errorf("Expected section index 2, got %d", got.SectionIndex)
	}
}

func TestOnChange(t *testing.T) {
	out := make(chan *Geometric, 1)
	tr := NewTracker([]string{"a", "b"}, GeometricFactory(out))
	g := <-out

	var seen []string
	tr.OnChange(func(s ActiveSection) { seen = append(seen, s.SectionID) })

	tr.Register("a", Target{Top: 0, Height: 1000})
	tr.Register("b", Target{Top: 1000, Height: 1000})
	g.Update(0, 800)
	g.Update(100, 800)
	g.Update(900, 800)
	g.Update(950, 800)

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("Expected changes [a b], got %v", seen)
	}

	tr.Close()
	g.Update(0, 800)
	if len(seen) != 2 {
		t.Errorf("Expected no callbacks after Close, got %v", seen)
	}
}

func TestDegradedMode(t *testing.T) {
	failing := func(Callback) (ViewportObserver, error) { return nil, ErrUnavailable }

	for name, f := range map[string]Factory{"nil": nil, "failing": failing} {
		tr := NewTracker([]string{"intro", "outro"}, f)
		tr.Register("outro", Target{Top: 0, Height: 100})

		got, ok := tr.Active(DefaultThreshold)
		if !ok || got.SectionID != "intro" || got.SectionIndex != 0 || !tr.Degraded() {
			t.Errorf("%s factory: expected degraded first section, got %+v (ok=%v)", name, got, ok)
		}
		tr.Close()
	}
}

func TestUnregister(t *testing.T) {
	tr, g := newTracked(t)
	defer tr.Close()

	g.Update(0, 800)
	tr.Unregister("a")
	g.Update(10, 800)

	// a is gone from the candidates and nothing else is in view
	got, ok := tr.Active(0.01)
	if !ok || got.SectionID != "a" {
		t.Errorf("Expected the last active section to be kept, got %+v", got)
	}
}
