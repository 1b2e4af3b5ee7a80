package compositor

import (
	"fmt"
	"strings"
)

type FitMode int

const (
	// Cover fills the container and crops the overflowing dimension.
	Cover FitMode = iota
	// Contain fits the whole image and letterboxes the rest.
	Contain
)

func (m FitMode) String() string {
	if m == Contain {
		return "contain"
	}
	return "cover"
}

// ParseFitMode accepts "cover" and "contain"; empty means cover.
func ParseFitMode(s string) (FitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cover":
		return Cover, nil
	case "contain":
		return Contain, nil
	}
	return Cover, fmt.Errorf("unknown fit mode %q", s)
}

type Size struct {
	W, H float64
}

func (s Size) Empty() bool { return s.W <= 0 || s.H <= 0 }

// Rect is a draw rectangle in container coordinates. It may extend past the
// container when cropping.
type Rect struct {
	X, Y, W, H float64
}

// Fit places an image of size img inside container. For Cover, when the image
// is wider than the container the crop window moves left by offsetX, which
// recenters the picture in the part not hidden by an edge overlay. Contain
// ignores offsetX.
func Fit(img, container Size, mode FitMode, offsetX float64) Rect {
	if img.Empty() || container.Empty() {
		return Rect{}
	}

	imgRatio := img.W / img.H
	boxRatio := container.W / container.H

	switch mode {
	case Contain:
		if imgRatio > boxRatio {
			h := container.W / imgRatio
			return Rect{X: 0, Y: (container.H - h) / 2, W: container.W, H: h}
		}
		w := container.H * imgRatio
		return Rect{X: (container.W - w) / 2, Y: 0, W: w, H: container.H}
	default:
		if imgRatio > boxRatio {
			w := container.H * imgRatio
			return Rect{X: (container.W-w)/2 - offsetX, Y: 0, W: w, H: container.H}
		}
		h := container.W / imgRatio
		return Rect{X: 0, Y: (container.H - h) / 2, W: container.W, H: h}
	}
}
