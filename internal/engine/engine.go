package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/ivlev/scrollfilm/internal/compositor"
	"github.com/ivlev/scrollfilm/internal/framestore"
	"github.com/ivlev/scrollfilm/internal/geometry"
	"github.com/ivlev/scrollfilm/internal/observer"
	"github.com/ivlev/scrollfilm/internal/source"
	"github.com/ivlev/scrollfilm/internal/stream"
	"github.com/ivlev/scrollfilm/internal/system"
	"github.com/ivlev/scrollfilm/internal/timeline"
)

const DefaultRefreshRate = 60

// Host is the page the engine runs in. Preload injects a hint for an asset
// the engine is about to need and returns a function removing it.
type Host interface {
	Preload(path string) (release func())
}

type Options struct {
	// Strict fails on configuration inconsistencies instead of dropping them.
	Strict      bool
	RefreshRate int
	Concurrency int
	Geometry    *geometry.Params
	// Observer builds the viewport observer. Nil uses the geometric observer
	// driven by Scroll and Resize.
	Observer observer.Factory
	Host     Host
	// AssetBase and AssetExt name frame files for preload hints.
	AssetBase string
	AssetExt  string
	Fast      bool
	Pool      *system.ImagePool
}

type viewport struct {
	w, h, dpr float64
}

// Engine wires the frame store, geometry, mapper, observer and compositor of
// one stream. Scroll and Resize may be called from any goroutine; drawing
// happens once per tick on the goroutine running Run, or on explicit Step calls.
type Engine struct {
	cfg    *stream.Config
	opts   Options
	layout stream.Layout
	fit    compositor.FitMode

	store   *framestore.Store
	geom    *geometry.Geometry
	mapper  *timeline.Mapper
	tracker *observer.Tracker
	geo     *observer.Geometric
	comp    *compositor.Compositor

	// loop state, owned by Step
	loop       sync.Mutex
	view       viewport
	offsetX    float64
	measured   map[string]observer.Target
	boundsStep bool
	torn       bool // set by Close under loop

	// inputs and published state
	mu       sync.Mutex
	scrollY  float64
	resize   *viewport
	pos      timeline.Position
	started  bool
	closed   bool
	releases []func()
	signal   chan struct{}
	done     chan struct{}
}

func New(cfg *stream.Config, loader source.Loader, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		if opts.Strict || !errors.Is(err, stream.ErrUnknownSegment) {
			return nil, fmt.Errorf("stream %q: %w", cfg.ID, err)
		}
		var dropped []string
		cfg, dropped = cfg.Sanitize()
		for _, ref := range dropped {
			log.Printf("[!] Dropping dangling segment reference %s", ref)
		}
	}
	if opts.RefreshRate <= 0 {
		opts.RefreshRate = DefaultRefreshRate
	}
	if opts.AssetExt == "" {
		opts.AssetExt = source.DefaultExt
	}
	if opts.Pool == nil {
		opts.Pool = system.NewImagePool()
	}

	e := &Engine{
		cfg:      cfg,
		opts:     opts,
		layout:   cfg.Theme.Layout.WithDefaults(),
		measured: make(map[string]observer.Target),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	fit, err := compositor.ParseFitMode(e.layout.AnimationFit)
	if err != nil {
		if opts.Strict {
			return nil, fmt.Errorf("stream %q: %w", cfg.ID, err)
		}
		log.Printf("[!] %v, using cover", err)
	}
	e.fit = fit

	compOpts := compositor.Options{Fast: opts.Fast, Pool: opts.Pool}
	if hex := cfg.Theme.Colors.Background; hex != "" {
		if c, err := compositor.ParseColor(hex); err != nil {
			log.Printf("[!] Theme background: %v", err)
		} else {
			compOpts.Background = c
		}
	}

	params := geometry.DefaultParams()
	if opts.Geometry != nil {
		params = *opts.Geometry
	}

	e.store = framestore.New(cfg, loader, framestore.Options{Concurrency: opts.Concurrency})
	e.geom = geometry.New(cfg.Sections, e.layout, params)
	e.mapper = timeline.New(cfg, opts.Strict)
	e.comp = compositor.New(e.store, compOpts)

	factory := opts.Observer
	if factory == nil {
		factory = func(cb observer.Callback) (observer.ViewportObserver, error) {
			e.geo = observer.NewGeometric(cb)
			return e.geo, nil
		}
	}
	ids := make([]string, len(cfg.Sections))
	for i, s := range cfg.Sections {
		ids[i] = s.ID
	}
	e.tracker = observer.NewTracker(ids, factory)

	e.pos = e.mapper.Resolve(0)

	if opts.Host != nil && len(cfg.Segments) > 0 {
		path := source.FramePath(opts.AssetBase, cfg.Segments[0], 1, opts.AssetExt)
		if release := opts.Host.Preload(path); release != nil {
			e.releases = append(e.releases, release)
		}
	}

	return e, nil
}

func (e *Engine) Config() *stream.Config { return e.cfg }

// Scroll records the latest scroll offset. It never blocks.
func (e *Engine) Scroll(y float64) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.scrollY = y
	e.mu.Unlock()
	e.wake()
}

// Resize records the latest viewport size in CSS pixels and the device pixel
// ratio. Geometry is recomputed on the next tick, before that tick resolves.
func (e *Engine) Resize(width, height, dpr float64) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.resize = &viewport{w: width, h: height, dpr: dpr}
	e.mu.Unlock()
	e.wake()
}

// RegisterSection overrides the computed track of a section with measured
// bounds and observes it for the active-section tracker.
func (e *Engine) RegisterSection(id string, bounds observer.Target) {
	e.loop.Lock()
	e.measured[id] = bounds
	e.boundsStep = true
	e.loop.Unlock()

	e.tracker.Register(id, bounds)
	e.wake()
}

// UnregisterSection drops measured bounds; the computed track applies again.
func (e *Engine) UnregisterSection(id string) {
	e.loop.Lock()
	delete(e.measured, id)
	e.boundsStep = true
	e.loop.Unlock()

	e.tracker.Unregister(id)
	e.wake()
}

// OnSectionChange registers fn to run when the active section changes.
func (e *Engine) OnSectionChange(fn func(observer.ActiveSection)) {
	e.tracker.OnChange(fn)
}

func (e *Engine) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Start begins loading frames, nearest to the pending scroll position first.
// A pending resize is applied beforehand so the position is resolved against
// real geometry. Calling Start again has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.loop.Lock()
	if e.torn {
		e.loop.Unlock()
		return
	}
	scrollY, observe := e.applyInputs()
	viewH := e.view.h
	e.loop.Unlock()
	e.feedObserver(observe, scrollY, viewH)

	priority := e.Position().SegmentID

	log.Printf("[*] Loading %d frames, segment %d first", e.store.TotalFrames(), priority)
	e.store.Start(ctx, priority)

	go func() {
		for range e.store.Updates() {
			e.wake()
		}
	}()
}

// Run starts loading and draws at most once per refresh tick until ctx is
// done or the engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	e.Start(ctx)

	ticker := time.NewTicker(time.Second / time.Duration(e.opts.RefreshRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.done:
			return nil
		case <-e.signal:
		}
		// coalesce everything up to the next tick into one draw
		select {
		case <-ctx.Done():
			return nil
		case <-e.done:
			return nil
		case <-ticker.C:
		}
		e.Step()
	}
}

// Step applies pending input, resolves the frame for the current scroll
// offset and draws it. It reports whether the buffer changed. Errors stay
// here: a display without size is skipped until the next Resize wakes the loop.
func (e *Engine) Step() bool {
	if e.isClosed() {
		return false
	}

	e.loop.Lock()
	// Close may have run since the check above
	if e.torn {
		e.loop.Unlock()
		return false
	}
	scrollY, observe := e.applyInputs()
	viewH := e.view.h
	drawn, err := e.comp.Draw(e.Position().Ref(), e.fit, e.offsetX)
	e.loop.Unlock()

	// observer callbacks run outside the loop lock so they may query the engine
	e.feedObserver(observe, scrollY, viewH)

	if err != nil {
		if !errors.Is(err, compositor.ErrGeometryNotReady) {
			log.Printf("[!] Draw %s: %v", e.Position().Ref(), err)
		}
		return false
	}
	return drawn
}

// applyInputs consumes pending resize and scroll values and resolves the
// position. It returns the computed tracks the geometric observer should
// follow, if they changed. Callers hold e.loop.
func (e *Engine) applyInputs() (float64, map[string]observer.Target) {
	e.mu.Lock()
	rs := e.resize
	e.resize = nil
	scrollY := e.scrollY
	e.mu.Unlock()

	if rs != nil {
		e.applyResize(*rs)
	}
	var observe map[string]observer.Target
	if e.boundsStep {
		observe = e.applyBoundaries()
	}

	pos := e.mapper.Resolve(scrollY)
	e.mu.Lock()
	e.pos = pos
	e.mu.Unlock()
	return scrollY, observe
}

func (e *Engine) feedObserver(observe map[string]observer.Target, scrollY, viewH float64) {
	if e.geo == nil {
		return
	}
	for id, t := range observe {
		e.geo.Observe(id, t)
	}
	if viewH > 0 {
		e.geo.Update(scrollY, viewH)
	}
}

func (e *Engine) applyResize(v viewport) {
	if v.dpr <= 0 {
		v.dpr = 1
	}
	e.view = v
	e.geom.SetViewport(v.w, v.h)
	e.boundsStep = true

	display := compositor.Size{W: v.w, H: v.h}
	if v.w >= float64(e.layout.Breakpoint) {
		display.W = v.w * float64(e.layout.DesktopAnimationWidth) / 100
	}
	e.comp.Resize(display, v.dpr)
	e.offsetX = e.layout.CenterOffset(v.w)
}

func (e *Engine) applyBoundaries() map[string]observer.Target {
	e.boundsStep = false
	tracks := e.geom.Tracks()
	observe := make(map[string]observer.Target, len(tracks))
	for i, t := range tracks {
		if m, ok := e.measured[t.SectionID]; ok {
			tracks[i].Top, tracks[i].Height = m.Top, m.Height
			continue
		}
		observe[t.SectionID] = observer.Target{Top: t.Top, Height: t.Height}
	}
	if err := e.mapper.SetBoundaries(tracks); err != nil {
		log.Printf("[!] Section boundaries rejected: %v", err)
		return nil
	}
	return observe
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// WaitLoaded blocks until every frame has resolved or ctx is done.
func (e *Engine) WaitLoaded(ctx context.Context) error {
	return e.store.Wait(ctx)
}

// Close disposes the store, disconnects the observer and removes preload
// hints. The engine is unusable afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.done)
	releases := e.releases
	e.releases = nil
	e.mu.Unlock()

	e.store.Dispose()
	e.tracker.Close()

	e.loop.Lock()
	e.torn = true
	e.comp.Close()
	e.loop.Unlock()

	for _, release := range releases {
		release()
	}
}

func (e *Engine) IsLoaded() bool      { return e.store.IsLoaded() }
func (e *Engine) IsFullyLoaded() bool { return e.store.IsFullyLoaded() }
func (e *Engine) Progress() float64   { return e.store.Progress() }
func (e *Engine) TotalFrames() int    { return e.store.TotalFrames() }

func (e *Engine) GetFrame(segmentID, frameNumber int) image.Image {
	return e.store.GetFrame(segmentID, frameNumber)
}

// Position is the last resolved position.
func (e *Engine) Position() timeline.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

func (e *Engine) CurrentSegmentID() int   { return e.Position().SegmentID }
func (e *Engine) CurrentFrameNumber() int { return e.Position().FrameNumber }
func (e *Engine) GlobalFrameNumber() int  { return e.Position().GlobalFrame }
func (e *Engine) PixelsPerFrame() float64 { return e.Position().PixelsPerFrame }

// SectionScrollHeight is the track height the mapper uses for a section:
// the measured height once RegisterSection has been called for it, the
// computed one otherwise.
func (e *Engine) SectionScrollHeight(sectionID string, index int) float64 {
	e.loop.Lock()
	defer e.loop.Unlock()
	if m, ok := e.measured[sectionID]; ok {
		return m.Height
	}
	return e.geom.ScrollHeight(sectionID, index)
}

// ActiveSection reports the section in focus at the given threshold.
func (e *Engine) ActiveSection(threshold float64) (observer.ActiveSection, bool) {
	return e.tracker.Active(threshold)
}

// Tracks returns the section tracks the mapper currently resolves against.
func (e *Engine) Tracks() []timeline.Boundary {
	e.loop.Lock()
	defer e.loop.Unlock()
	return e.mapper.Boundaries()
}

// DocumentHeight is the scrollable height of the computed layout.
func (e *Engine) DocumentHeight() float64 {
	e.loop.Lock()
	defer e.loop.Unlock()
	return e.geom.DocumentHeight()
}

// Frame returns the back buffer. It is only valid until the next Step.
func (e *Engine) Frame() *image.RGBA {
	e.loop.Lock()
	defer e.loop.Unlock()
	return e.comp.Frame()
}
