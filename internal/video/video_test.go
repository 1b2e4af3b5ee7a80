package video

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"testing"
)

func TestBuildFFmpegArgs(t *testing.T) {
	tests := []struct {
		encoder string
		quality int
		want    string
	}{
		{"libx264", 0, "-crf 20 -preset medium"},
		{"libx264", 18, "-crf 18 -preset medium"},
		{"h264_videotoolbox", 0, "-b:v 7500k"},
		{"h264_nvenc", 30, "-cq 30"},
	}

	for _, tt := range tests {
		e := NewFFmpegEncoder(Params{Width: 1280, Height: 720, FPS: 24, Encoder: tt.encoder, Quality: tt.quality, Output: "out.mp4"})
		args := strings.Join(e.buildFFmpegArgs(), " ")
		t.Logf("%s: %s", tt.encoder, args)

		if !strings.Contains(args, tt.want) {
			t.Errorf("%s: expected %q in %q", tt.encoder, tt.want, args)
		}
		if !strings.Contains(args, "-video_size 1280x720") || !strings.HasSuffix(args, "out.mp4") {
			t.Errorf("%s: unexpected input or output in %q", tt.encoder, args)
		}
	}
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	e := NewFFmpegEncoder(Params{Width: 4, Height: 2})

	if err := e.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 2))); err == nil {
		t.Error("Expected error before Start")
	}

	e.stdin = nopCloser{&buf}
	sub := image.NewRGBA(image.Rect(0, 0, 8, 8)).SubImage(image.Rect(2, 2, 6, 4))
	if err := e.WriteFrame(sub); err != nil {
		t.Fatal(err)
	}
	if err := e.WriteFrame(image.NewGray(image.Rect(0, 0, 4, 2))); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2*4*2*4 || e.Frames() != 2 {
		t.Errorf("Expected two 4x2 RGBA frames, got %d bytes, %d frames", buf.Len(), e.Frames())
	}

	if err := e.WriteFrame(image.NewRGBA(image.Rect(0, 0, 2, 2))); err == nil {
		t.Error("Expected size mismatch error")
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close without process: %v", err)
	}
}

func TestQROverlay(t *testing.T) {
	o, err := NewQROverlay("https://example.com/stream", 64, 10)
	if err != nil {
		t.Fatal(err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 200, 100))
	r := o.Rect(frame.Bounds())
	if r != image.Rect(126, 26, 190, 90) {
		t.Errorf("Unexpected overlay rect %v", r)
	}

	o.Apply(frame)
	// the quiet zone of a QR code is white
	if px := frame.RGBAAt(r.Min.X, r.Min.Y); px != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected white quiet zone, got %v", px)
	}
	if px := frame.RGBAAt(5, 5); px != (color.RGBA{}) {
		t.Errorf("Expected untouched pixel outside the overlay, got %v", px)
	}

	small := image.NewRGBA(image.Rect(0, 0, 32, 32))
	o.Apply(small)
	if px := small.RGBAAt(20, 20); px != (color.RGBA{}) {
		t.Error("Overlay must not be applied to frames too small to hold it")
	}
}

func TestEvenSize(t *testing.T) {
	tests := []struct {
		in, want image.Point
	}{
		{image.Pt(1280, 720), image.Pt(1280, 720)},
		{image.Pt(751, 768), image.Pt(752, 768)},
		{image.Pt(585, 1266), image.Pt(586, 1266)},
		{image.Pt(641, 481), image.Pt(642, 482)},
	}
	for _, tt := range tests {
		if got := EvenSize(tt.in); got != tt.want {
			t.Errorf("EvenSize(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriteFramePadsOddSurface(t *testing.T) {
	var buf bytes.Buffer
	e := NewFFmpegEncoder(Params{Width: 4, Height: 2})
	e.stdin = nopCloser{&buf}

	white := image.NewRGBA(image.Rect(0, 0, 3, 1))
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	if err := e.WriteFrame(white); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 4*2*4 {
		t.Fatalf("Expected one padded 4x2 frame, got %d bytes", buf.Len())
	}

	pix := buf.Bytes()
	at := func(x, y int) color.RGBA {
		i := (y*4 + x) * 4
		return color.RGBA{pix[i], pix[i+1], pix[i+2], pix[i+3]}
	}
	if got := at(2, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected the surface copied at the origin, got %v", got)
	}
	for _, p := range []image.Point{{3, 0}, {0, 1}, {3, 1}} {
		if got := at(p.X, p.Y); got != (color.RGBA{0, 0, 0, 255}) {
			t.Errorf("Expected black padding at %v, got %v", p, got)
		}
	}

	// one pixel too large is cropped
	if err := e.WriteFrame(image.NewRGBA(image.Rect(0, 0, 5, 3))); err != nil {
		t.Errorf("Expected a 5x3 frame to be cropped, got %v", err)
	}
}
