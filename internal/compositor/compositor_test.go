package compositor

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ivlev/scrollfilm/internal/stream"
	"github.com/ivlev/scrollfilm/internal/system"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name     string
		img, box Size
		mode     FitMode
		offset   float64
		want     Rect
	}{
		{"cover wide image", Size{200, 100}, Size{100, 100}, Cover, 0, Rect{-50, 0, 200, 100}},
		{"cover wide image with offset", Size{200, 100}, Size{100, 100}, Cover, 40, Rect{-90, 0, 200, 100}},
		{"cover tall image", Size{100, 200}, Size{100, 100}, Cover, 40, Rect{0, -50, 100, 200}},
		{"contain wide image", Size{200, 100}, Size{100, 100}, Contain, 40, Rect{0, 25, 100, 50}},
		{"contain tall image", Size{100, 200}, Size{100, 100}, Contain, 0, Rect{25, 0, 50, 100}},
		{"same ratio", Size{1920, 1080}, Size{960, 540}, Cover, 0, Rect{0, 0, 960, 540}},
		{"empty container", Size{100, 100}, Size{0, 100}, Cover, 0, Rect{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fit(tt.img, tt.box, tt.mode, tt.offset); got != tt.want {
				t.Errorf("Fit() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFitMode(t *testing.T) {
	for in, want := range map[string]FitMode{"": Cover, "cover": Cover, " Contain ": Contain} {
		got, err := ParseFitMode(in)
		if err != nil || got != want {
			t.Errorf("ParseFitMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFitMode("stretch"); err == nil {
		t.Error("Expected error for unknown fit mode")
	}
}

type mapSource map[stream.FrameRef]image.Image

func (m mapSource) GetFrame(seg, n int) image.Image {
	return m[stream.FrameRef{SegmentID: seg, FrameNumber: n}]
}

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for i := 0; i < len(img.Pix); i += 4 {
		r, g, b, a := c.RGBA()
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8)
	}
	return img
}

func ref(seg, n int) stream.FrameRef { return stream.FrameRef{SegmentID: seg, FrameNumber: n} }

func TestDrawFallback(t *testing.T) {
	src := mapSource{
		ref(1, 3): solid(color.RGBA{255, 0, 0, 255}),
		ref(2, 4): solid(color.RGBA{0, 255, 0, 255}),
	}
	c := New(src, Options{})
	c.Resize(Size{W: 32, H: 18}, 1)

	if ok, err := c.Draw(ref(1, 3), Cover, 0); !ok || err != nil {
		t.Fatalf("Expected exact draw, got %v, %v", ok, err)
	}

	// 2/5 is a miss, 2/4 is the closest earlier frame
	if ok, _ := c.Draw(ref(2, 5), Cover, 0); !ok {
		t.Fatal("Expected fallback draw")
	}
	if got, _ := c.Drawn(); got != ref(2, 4) {
		t.Errorf("Expected 2/4 on screen, got %v", got)
	}
	if px := c.Frame().RGBAAt(16, 9); px.G < 200 || px.R > 50 {
		t.Errorf("Expected green pixel, got %v", px)
	}

	// nothing in segment 3: keep the last drawn frame
	if ok, err := c.Draw(ref(3, 2), Cover, 0); ok || err != nil {
		t.Errorf("Expected no redraw for a fallback to the frame on screen, got %v, %v", ok, err)
	}
	if got, _ := c.Drawn(); got != ref(2, 4) {
		t.Errorf("Expected 2/4 to stay on screen, got %v", got)
	}
}

func TestDrawNothingAvailable(t *testing.T) {
	c := New(mapSource{}, Options{})
	c.Resize(Size{W: 10, H: 10}, 1)

	ok, err := c.Draw(ref(1, 1), Contain, 0)
	if ok || err != nil {
		t.Errorf("Expected silent no-op, got %v, %v", ok, err)
	}
	if _, has := c.Drawn(); has {
		t.Error("Expected nothing drawn")
	}
}

func TestSkipUnchangedDraw(t *testing.T) {
	c := New(mapSource{ref(1, 1): solid(color.White)}, Options{Fast: true})
	c.Resize(Size{W: 20, H: 20}, 1)

	steps := []struct {
		mode   FitMode
		offset float64
		want   bool
	}{
		{Cover, 0, true},
		{Cover, 0, false},
		{Cover, 40, true},
		{Contain, 40, true},
		{Contain, 40, false},
	}
	for i, s := range steps {
		ok, err := c.Draw(ref(1, 1), s.mode, s.offset)
		if err != nil || ok != s.want {
			t.Errorf("Step %d: got %v, %v, want %v", i, ok, err, s.want)
		}
	}

	c.Resize(Size{W: 30, H: 20}, 1)
	if ok, _ := c.Draw(ref(1, 1), Contain, 40); !ok {
		t.Error("Expected redraw after resize")
	}
}

func TestResizeDevicePixelRatio(t *testing.T) {
	pool := system.NewImagePool()
	c := New(mapSource{ref(1, 1): solid(color.White)}, Options{Pool: pool, Background: color.RGBA{1, 2, 3, 255}})

	if _, err := c.Draw(ref(1, 1), Cover, 0); !errors.Is(err, ErrGeometryNotReady) {
		t.Fatalf("Expected ErrGeometryNotReady before sizing, got %v", err)
	}

	c.Resize(Size{W: 400, H: 300}, 2)
	if b := c.Frame().Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Errorf("Expected 800x600 buffer, got %v", b)
	}

	if _, err := c.Draw(ref(1, 1), Contain, 0); err != nil {
		t.Fatal(err)
	}
	// 16:9 image in a 4:3 box letterboxes top and bottom
	if px := c.Frame().RGBAAt(400, 5); px != (color.RGBA{1, 2, 3, 255}) {
		t.Errorf("Expected background in the letterbox, got %v", px)
	}
	if px := c.Frame().RGBAAt(400, 300); px.R < 200 {
		t.Errorf("Expected image in the center, got %v", px)
	}

	c.Resize(Size{W: 0, H: 300}, 2)
	if _, err := c.Draw(ref(1, 1), Cover, 0); !errors.Is(err, ErrGeometryNotReady) {
		t.Errorf("Expected ErrGeometryNotReady for zero width, got %v", err)
	}
	c.Close()
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"#0a0a0a", color.RGBA{10, 10, 10, 255}, true},
		{"#fff", color.RGBA{255, 255, 255, 255}, true},
		{"ff8000", color.RGBA{255, 128, 0, 255}, true},
		{"#12345", color.RGBA{}, false},
		{"#zzzzzz", color.RGBA{}, false},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseColor(%q) = %v, %v", tt.in, got, err)
		}
	}
}
