// Package framestore loads every frame of a stream in priority order and
// serves decoded frames synchronously from memory.
package framestore

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scrollfilm/internal/source"
	"github.com/ivlev/scrollfilm/internal/stream"
	"github.com/ivlev/scrollfilm/internal/system"
)

var errNoImage = errors.New("loader returned no image")

// LoadState counts the loads of one segment. It only ever grows.
type LoadState struct {
	Total     int
	Requested int
	Completed int // successes and failures
	Failed    int
}

func (s LoadState) Done() bool { return s.Completed == s.Total }

type Options struct {
	// Concurrency bounds in-flight loads; 0 derives it from the host.
	Concurrency int
}

// Store exclusively owns the decoded frames of one engine lifetime.
type Store struct {
	cfg         *stream.Config
	loader      source.Loader
	concurrency int

	mu         sync.RWMutex
	frames     map[stream.FrameRef]image.Image
	misses     map[stream.FrameRef]bool
	states     map[int]*LoadState
	firstPaint []stream.FrameRef
	completed  int
	total      int
	loaded     bool
	full       bool
	started    bool
	disposed   bool
	cancel     context.CancelFunc
	updates    chan struct{}
	done       chan struct{}
}

func New(cfg *stream.Config, loader source.Loader, opts Options) *Store {
	n := opts.Concurrency
	if n <= 0 {
		n = system.LoadConcurrency(0)
	}

	s := &Store{
		cfg:         cfg,
		loader:      loader,
		concurrency: n,
		frames:      make(map[stream.FrameRef]image.Image),
		misses:      make(map[stream.FrameRef]bool),
		states:      make(map[int]*LoadState, len(cfg.Segments)),
		total:       cfg.TotalFrames(),
		updates:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, seg := range cfg.Segments {
		s.states[seg.ID] = &LoadState{Total: seg.FrameCount}
	}
	if s.total == 0 {
		s.loaded, s.full = true, true
		s.finishLocked()
	}
	return s
}

// Start begins loading in the background and returns immediately. The
// first-paint set (frame 1 of the first segment, then frame 1 of the priority
// segment) loads before anything else; the remaining frames follow segment by
// segment, nearest to the priority segment first. Cancelling ctx has the same
// effect as Dispose on pending loads.
func (s *Store) Start(ctx context.Context, prioritySegmentID int) {
	s.mu.Lock()
	if s.started || s.disposed || s.full {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	first, rest := s.plan(prioritySegmentID)
	s.firstPaint = first
	s.mu.Unlock()

	go s.run(ctx, first, rest)
}

func (s *Store) run(ctx context.Context, first, rest []stream.FrameRef) {
	for _, ref := range first {
		if ctx.Err() != nil {
			return
		}
		s.load(ctx, ref)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, ref := range rest {
		if gctx.Err() != nil {
			break
		}
		ref := ref
		g.Go(func() error {
			s.load(gctx, ref)
			return nil
		})
	}
	g.Wait()
}

// plan orders every frame of the stream for loading.
func (s *Store) plan(priorityID int) (first, rest []stream.FrameRef) {
	segs := s.cfg.Segments
	if len(segs) == 0 {
		return nil, nil
	}

	first = append(first, stream.FrameRef{SegmentID: segs[0].ID, FrameNumber: 1})
	pi := s.cfg.SegmentIndex(priorityID)
	if pi < 0 {
		pi = 0
	}
	if pi != 0 {
		first = append(first, stream.FrameRef{SegmentID: segs[pi].ID, FrameNumber: 1})
	}

	// nearest segments first; on a tie the following segment wins since
	// readers mostly scroll down
	order := []int{pi}
	for d := 1; len(order) < len(segs); d++ {
		if pi+d < len(segs) {
			order = append(order, pi+d)
		}
		if pi-d >= 0 {
			order = append(order, pi-d)
		}
	}

	for _, i := range order {
		seg := segs[i]
		for n := 1; n <= seg.FrameCount; n++ {
			if n == 1 && (i == 0 || i == pi) {
				continue
			}
			rest = append(rest, stream.FrameRef{SegmentID: seg.ID, FrameNumber: n})
		}
	}
	return first, rest
}

func (s *Store) load(ctx context.Context, ref stream.FrameRef) {
	seg, ok := s.cfg.Segment(ref.SegmentID)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.states[ref.SegmentID].Requested++
	s.mu.Unlock()

	img, err := s.loader.Load(ctx, seg, ref.FrameNumber)
	if ctx.Err() != nil {
		// torn down while in flight
		return
	}
	if err == nil && img == nil {
		err = errNoImage
	}
	s.complete(ref, img, err)
}

func (s *Store) complete(ref stream.FrameRef, img image.Image, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || s.full {
		return
	}
	if _, dup := s.frames[ref]; dup || s.misses[ref] {
		return
	}

	st := s.states[ref.SegmentID]
	if err != nil {
		log.Printf("[!] Frame %s failed to load, keeping it as a miss: %v", ref, err)
		s.misses[ref] = true
		st.Failed++
	} else {
		s.frames[ref] = img
	}
	st.Completed++
	s.completed++

	if !s.loaded && s.firstPaintReadyLocked() {
		s.loaded = true
	}
	if s.completed == s.total {
		s.loaded, s.full = true, true
		s.finishLocked()
		return
	}

	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Store) firstPaintReadyLocked() bool {
	for _, ref := range s.firstPaint {
		if _, ok := s.frames[ref]; !ok && !s.misses[ref] {
			return false
		}
	}
	return len(s.firstPaint) > 0
}

// finishLocked ends the progress stream. It runs exactly once: on full load
// or on dispose, both of which are terminal.
func (s *Store) finishLocked() {
	close(s.updates)
	close(s.done)
}

// GetFrame returns the decoded frame or nil when it is not (yet) available.
// Out-of-range frame numbers and unknown segments are simply absent.
func (s *Store) GetFrame(segmentID, frameNumber int) image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frames == nil {
		return nil
	}
	return s.frames[stream.FrameRef{SegmentID: segmentID, FrameNumber: frameNumber}]
}

// IsMiss reports whether the frame failed to load for good.
func (s *Store) IsMiss(segmentID, frameNumber int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.misses[stream.FrameRef{SegmentID: segmentID, FrameNumber: frameNumber}]
}

// Progress is the resolved share of all frames, exactly 1 once fully loaded.
func (s *Store) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return 1
	}
	return float64(s.completed) / float64(s.total)
}

// IsLoaded reports whether the first-paint set has resolved.
func (s *Store) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// IsFullyLoaded reports whether every frame has resolved, success or miss.
func (s *Store) IsFullyLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.full
}

func (s *Store) TotalFrames() int { return s.total }

func (s *Store) State(segmentID int) LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[segmentID]; ok {
		return *st
	}
	return LoadState{}
}

// Updates signals load progress. Signals coalesce, so readers should query
// Progress on each receive. The channel is closed once the store is fully
// loaded or disposed.
func (s *Store) Updates() <-chan struct{} { return s.updates }

// Wait blocks until the store is fully loaded or disposed.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose cancels pending loads and releases the cache. Completions that
// arrive afterwards are dropped.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.frames = nil
	if !s.full {
		s.finishLocked()
	}
}
