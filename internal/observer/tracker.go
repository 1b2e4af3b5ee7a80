package observer

import (
	"log"
	"math"
	"sync"
)

// DefaultThreshold is the share of the viewport a section must cover to
// become active.
const DefaultThreshold = 0.3

type ActiveSection struct {
	SectionID    string
	SectionIndex int
}

// Tracker turns intersection entries into the active section.
type Tracker struct {
	mu       sync.Mutex
	order    map[string]int
	first    string
	entries  map[string]Entry
	active   *ActiveSection
	obs      ViewportObserver
	degraded bool
	closed   bool
	onChange func(ActiveSection)
}

// NewTracker observes the given sections, in document order. Without a usable
// factory the tracker degrades to reporting the first section.
func NewTracker(sectionIDs []string, factory Factory) *Tracker {
	t := &Tracker{
		order:   make(map[string]int, len(sectionIDs)),
		entries: make(map[string]Entry),
	}
	for i, id := range sectionIDs {
		t.order[id] = i
	}
	if len(sectionIDs) > 0 {
		t.first = sectionIDs[0]
	}

	if factory == nil {
		log.Printf("[!] No viewport observer available, first section stays active")
		t.degraded = true
		return t
	}
	obs, err := factory(t.handle)
	if err != nil {
		log.Printf("[!] Viewport observer failed (%v), first section stays active", err)
		t.degraded = true
		return t
	}
	t.obs = obs
	return t
}

// OnChange registers fn to run whenever the active section changes at the
// default threshold.
func (t *Tracker) OnChange(fn func(ActiveSection)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

func (t *Tracker) Degraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.degraded
}

// Register starts observing the bounds of a section. Registering again
// replaces the bounds.
func (t *Tracker) Register(id string, target Target) {
	t.mu.Lock()
	obs := t.obs
	if _, ok := t.order[id]; !ok || t.closed {
		t.mu.Unlock()
		if !ok {
			log.Printf("[!] Ignoring registration of unknown section %q", id)
		}
		return
	}
	t.mu.Unlock()

	if obs != nil {
		obs.Observe(id, target)
	}
}

func (t *Tracker) Unregister(id string) {
	t.mu.Lock()
	obs := t.obs
	delete(t.entries, id)
	t.mu.Unlock()

	if obs != nil {
		obs.Unobserve(id)
	}
}

// Close disconnects the observer. Entries delivered afterwards are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	obs := t.obs
	t.obs = nil
	t.closed = true
	t.mu.Unlock()

	if obs != nil {
		obs.Disconnect()
	}
}

func (t *Tracker) handle(entries []Entry) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	for _, e := range entries {
		if _, ok := t.order[e.ID]; ok {
			t.entries[e.ID] = e
		}
	}

	next, ok := t.pickLocked(DefaultThreshold)
	var fn func(ActiveSection)
	if ok && (t.active == nil || *t.active != next) {
		t.active = &next
		fn = t.onChange
	}
	t.mu.Unlock()

	if fn != nil {
		fn(next)
	}
}

// Active reports the section covering at least threshold of the viewport.
// When several do, the one whose top edge is closest to the viewport center
// wins. When none does, the last active section is kept.
func (t *Tracker) Active(threshold float64) (ActiveSection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.degraded {
		if t.first == "" {
			return ActiveSection{}, false
		}
		return ActiveSection{SectionID: t.first, SectionIndex: 0}, true
	}
	if s, ok := t.pickLocked(threshold); ok {
		return s, true
	}
	if t.active != nil {
		return *t.active, true
	}
	return ActiveSection{}, false
}

func (t *Tracker) pickLocked(threshold float64) (ActiveSection, bool) {
	var best ActiveSection
	bestDist := math.Inf(1)
	for id, e := range t.entries {
		if !e.Intersecting || e.Ratio < threshold {
			continue
		}
		idx := t.order[id]
		d := math.Abs(e.Top - e.Viewport/2)
		// equal distances go to the earlier section for determinism
		if d < bestDist || (d == bestDist && idx < best.SectionIndex) {
			best, bestDist = ActiveSection{SectionID: id, SectionIndex: idx}, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}
