package capture

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/ivlev/scrollfilm/internal/timeline"
)

func testLayout() Layout {
	return Layout{
		Tracks: []timeline.Boundary{
			{SectionID: "a", Index: 0, Top: 0, Height: 1000},
			{SectionID: "b", Index: 1, Top: 1000, Height: 2000},
		},
		DocumentHeight: 3000,
		ViewportHeight: 800,
	}
}

func TestPosition(t *testing.T) {
	l := testLayout()
	tests := []struct {
		kf   Keyframe
		want float64
	}{
		{Keyframe{Offset: 500}, 500},
		{Keyframe{Offset: -20}, 0},
		{Keyframe{Offset: math.Inf(1)}, 2200},
		{Keyframe{Section: "a"}, 0},
		{Keyframe{Section: "a", Offset: 30}, 30},
		{Keyframe{Section: "b", Anchor: "start"}, 950},
		{Keyframe{Section: "a", Anchor: "end"}, 250},
		{Keyframe{Section: "b", Anchor: "end"}, 2200},
	}

	for _, tt := range tests {
		got, err := l.Position(tt.kf)
		if err != nil || got != tt.want {
			t.Errorf("Position(%+v) = %f, %v, want %f", tt.kf, got, err, tt.want)
		}
	}

	if _, err := l.Position(Keyframe{Section: "zzz"}); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("Expected ErrUnknownSection, got %v", err)
	}
	if _, err := l.Position(Keyframe{Section: "a", Anchor: "middle"}); err == nil {
		t.Error("Expected error for unknown anchor")
	}
}

func TestSweepOffsets(t *testing.T) {
	plan := SweepPlan(1280, 800, 10, 1, "b", "b")
	offsets, err := plan.Offsets(testLayout())
	if err != nil {
		t.Fatal(err)
	}

	if len(offsets) != 10 {
		t.Fatalf("Expected 10 frames, got %d", len(offsets))
	}
	if offsets[0] != 950 || offsets[9] != 2200 {
		t.Errorf("Expected sweep from 950 to 2200, got %f to %f", offsets[0], offsets[9])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			t.Fatalf("Sweep went backwards at frame %d: %v", i, offsets)
		}
	}
	// eased: the first step is much smaller than the middle one
	if first, mid := offsets[1]-offsets[0], offsets[5]-offsets[4]; first*3 > mid {
		t.Errorf("Expected ease-in, first step %f vs middle step %f", first, mid)
	}
	t.Logf("offsets: %v", offsets)

	whole := SweepPlan(1280, 800, 10, 1, "", "")
	offsets, err = whole.Offsets(testLayout())
	if err != nil {
		t.Fatal(err)
	}
	if offsets[0] != 0 || offsets[9] != 2200 {
		t.Errorf("Expected whole document sweep, got %f to %f", offsets[0], offsets[9])
	}
}

func TestKeyframeHold(t *testing.T) {
	plan := &Plan{
		Width: 1280, Height: 800, FPS: 10, Duration: 2, Ease: "linear",
		Keyframes: []Keyframe{
			{Time: 0, Offset: 0},
			{Time: 1, Offset: 1000},
			{Time: 2, Offset: 1000},
		},
	}
	offsets, err := plan.Offsets(testLayout())
	if err != nil {
		t.Fatal(err)
	}
	if len(offsets) != 20 {
		t.Fatalf("Expected 20 frames, got %d", len(offsets))
	}
	for i, y := range offsets {
		at := float64(i) / 19 * 2
		if at >= 1 && y != 1000 {
			t.Errorf("Frame %d at %.2fs: expected hold at 1000, got %f", i, at, y)
		}
		if at < 1 && y != math.Floor(at*1000) {
			t.Errorf("Frame %d at %.2fs: expected linear %f, got %f", i, at, math.Floor(at*1000), y)
		}
	}
}

func TestValidatePlan(t *testing.T) {
	good := SweepPlan(1280, 720, 24, 5, "", "")
	if err := good.Validate(); err != nil {
		t.Fatalf("Expected valid plan: %v", err)
	}

	bad := []func(p *Plan){
		func(p *Plan) { p.Width = 0 },
		func(p *Plan) { p.FPS = 0 },
		func(p *Plan) { p.Keyframes = nil },
		func(p *Plan) { p.Keyframes[0].Time = 9 },
		func(p *Plan) { p.Ease = "bounce" },
	}
	for i, mutate := range bad {
		p := SweepPlan(1280, 720, 24, 5, "", "")
		mutate(p)
		if err := p.Validate(); err == nil {
			t.Errorf("Case %d: expected validation error", i)
		}
	}
}

func TestPlanWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	plan := SweepPlan(1920, 1080, 30, 12.5, "intro", "outro")
	plan.QRCode = "https://example.com"

	if err := WritePlan(plan, path); err != nil {
		t.Fatal(err)
	}
	got, err := ReadPlan(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Duration != 12.5 || got.QRCode != plan.QRCode || len(got.Keyframes) != 2 || got.Keyframes[1].Anchor != "end" {
		t.Errorf("Plan did not survive a round trip: %+v", got)
	}
}
