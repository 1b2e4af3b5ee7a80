package source

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/scrollfilm/internal/stream"
)

// Loader fetches and decodes a single frame of a segment.
type Loader interface {
	Load(ctx context.Context, seg stream.Segment, frame int) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, seg stream.Segment, frame int) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, seg stream.Segment, frame int) (image.Image, error) {
	return f(ctx, seg, frame)
}

// Mux sends segments that carry a storyboard PDF to the PDF loader and all
// others to Frames.
type Mux struct {
	Frames Loader
	PDF    Loader
}

func (m *Mux) Load(ctx context.Context, seg stream.Segment, frame int) (image.Image, error) {
	if seg.PDF != "" && m.PDF != nil {
		return m.PDF.Load(ctx, seg, frame)
	}
	return m.Frames.Load(ctx, seg, frame)
}

// PDFLoader renders storyboard pages as frames: page n of Segment.PDF is frame n.
type PDFLoader struct {
	DPI int

	mu   sync.Mutex
	docs map[string]*fitz.Document
}

func NewPDFLoader(dpi int) *PDFLoader {
	if dpi <= 0 {
		dpi = 150
	}
	return &PDFLoader{DPI: dpi, docs: make(map[string]*fitz.Document)}
}

func (p *PDFLoader) Load(ctx context.Context, seg stream.Segment, frame int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// fitz documents are not safe for concurrent use
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, ok := p.docs[seg.PDF]
	if !ok {
		var err error
		doc, err = fitz.New(seg.PDF)
		if err != nil {
			return nil, err
		}
		p.docs[seg.PDF] = doc
	}

	if frame < 1 || frame > doc.NumPage() {
		return nil, fmt.Errorf("%s: page %d out of range (1..%d)", seg.PDF, frame, doc.NumPage())
	}
	return doc.ImageDPI(frame-1, float64(p.DPI))
}

// PageCount opens the storyboard to report how many frames it can provide.
func (p *PDFLoader) PageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

func (p *PDFLoader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for path, doc := range p.docs {
		if err := doc.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.docs, path)
	}
	return first
}
