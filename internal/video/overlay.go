package video

import (
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

// Overlay is a QR code linking to the live page, stamped into a frame corner.
type Overlay struct {
	img    image.Image
	margin int
}

// NewQROverlay encodes url as a QR code of size×size pixels.
func NewQROverlay(url string, size, margin int) (*Overlay, error) {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr code for %q: %w", url, err)
	}
	return &Overlay{img: q.Image(size), margin: margin}, nil
}

// Rect is where the overlay lands in a frame of the given bounds: the bottom
// right corner, inset by the margin.
func (o *Overlay) Rect(frame image.Rectangle) image.Rectangle {
	s := o.img.Bounds().Size()
	corner := frame.Max.Sub(image.Pt(o.margin, o.margin))
	return image.Rectangle{Min: corner.Sub(s), Max: corner}
}

func (o *Overlay) Apply(dst draw.Image) {
	r := o.Rect(dst.Bounds())
	if !r.In(dst.Bounds()) {
		return
	}
	draw.Draw(dst, r, o.img, o.img.Bounds().Min, draw.Src)
}
