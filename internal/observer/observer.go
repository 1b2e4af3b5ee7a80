// Package observer decides which narrative section the reader is looking at.
//
// It is independent of the frame timeline: the tracker only sees how much of
// the viewport each registered section covers, the way a browser
// intersection observer reports it.
package observer

import (
	"errors"
	"math"
	"sync"
)

// ErrUnavailable is returned by a Factory when the host cannot observe
// viewport intersections.
var ErrUnavailable = errors.New("viewport observer unavailable")

// Target is the bounds of a section in document coordinates.
type Target struct {
	Top    float64
	Height float64
}

// Entry reports the intersection of one target with the viewport.
type Entry struct {
	ID           string
	Ratio        float64 // share of the viewport covered by the target
	Intersecting bool
	Top          float64 // target top relative to the viewport top
	Height       float64
	Viewport     float64 // viewport height
}

type Callback func([]Entry)

// ViewportObserver is the host capability the tracker depends on.
type ViewportObserver interface {
	Observe(id string, target Target)
	Unobserve(id string)
	Disconnect()
}

// Factory creates an observer delivering entries to cb.
type Factory func(cb Callback) (ViewportObserver, error)

// Geometric is a headless ViewportObserver that derives entries from target
// bounds and a scroll position fed by the caller.
type Geometric struct {
	mu        sync.Mutex
	cb        Callback
	targets   map[string]Target
	last      map[string]Entry
	scrollY   float64
	viewportH float64
	closed    bool
}

func NewGeometric(cb Callback) *Geometric {
	return &Geometric{
		cb:      cb,
		targets: make(map[string]Target),
		last:    make(map[string]Entry),
	}
}

// GeometricFactory adapts NewGeometric to a Factory. The created observer is
// also sent to out so the caller can drive it.
func GeometricFactory(out chan<- *Geometric) Factory {
	return func(cb Callback) (ViewportObserver, error) {
		g := NewGeometric(cb)
		if out != nil {
			out <- g
		}
		return g, nil
	}
}

func (g *Geometric) Observe(id string, target Target) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.targets[id] = target
	delete(g.last, id)
	entries := g.collectLocked()
	g.mu.Unlock()
	g.emit(entries)
}

func (g *Geometric) Unobserve(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.targets, id)
	delete(g.last, id)
}

func (g *Geometric) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.targets = nil
	g.last = nil
}

// Update moves the viewport and reports every target whose intersection
// changed.
func (g *Geometric) Update(scrollY, viewportH float64) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.scrollY, g.viewportH = scrollY, viewportH
	entries := g.collectLocked()
	g.mu.Unlock()
	g.emit(entries)
}

func (g *Geometric) collectLocked() []Entry {
	if g.viewportH <= 0 {
		return nil
	}
	var out []Entry
	for id, t := range g.targets {
		e := entryFor(id, t, g.scrollY, g.viewportH)
		if prev, ok := g.last[id]; ok && prev == e {
			continue
		}
		g.last[id] = e
		out = append(out, e)
	}
	return out
}

func (g *Geometric) emit(entries []Entry) {
	if len(entries) > 0 && g.cb != nil {
		g.cb(entries)
	}
}

func entryFor(id string, t Target, scrollY, viewportH float64) Entry {
	top := t.Top - scrollY
	visible := math.Min(top+t.Height, viewportH) - math.Max(top, 0)
	e := Entry{ID: id, Top: top, Height: t.Height, Viewport: viewportH}
	if visible > 0 {
		e.Intersecting = true
		e.Ratio = math.Min(1, visible/viewportH)
	}
	return e
}
