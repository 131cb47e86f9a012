package tui

import "sync"

// cacheKey identifies one rendering of a pass at a given width
type cacheKey struct {
	Pass    int
	Columns int
}

// VisualizationCache keeps rendered pass text so that paging between passes
// does not re-fold the count table.
type VisualizationCache struct {
	rendered map[cacheKey]string
	hits     int
	misses   int

	mu sync.RWMutex
}

// NewVisualizationCache creates a new visualization cache
func NewVisualizationCache() *VisualizationCache {
	return &VisualizationCache{
		rendered: make(map[cacheKey]string),
	}
}

// Get returns the rendering of pass at the given width, calling render on a
// miss.
func (vc *VisualizationCache) Get(pass, columns int, render func() string) string {
	key := cacheKey{Pass: pass, Columns: columns}

	vc.mu.RLock()
	text, ok := vc.rendered[key]
	vc.mu.RUnlock()
	if ok {
		vc.mu.Lock()
		vc.hits++
		vc.mu.Unlock()
		return text
	}

	text = render()

	vc.mu.Lock()
	vc.rendered[key] = text
	vc.misses++
	vc.mu.Unlock()
	return text
}

// Invalidate drops every rendering of pass
func (vc *VisualizationCache) Invalidate(pass int) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	for key := range vc.rendered {
		if key.Pass == pass {
			delete(vc.rendered, key)
		}
	}
}

// Clear removes all cached renderings
func (vc *VisualizationCache) Clear() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.rendered = make(map[cacheKey]string)
	vc.hits = 0
	vc.misses = 0
}

// Stats returns the number of cached renderings, hits and misses
func (vc *VisualizationCache) Stats() (entries, hits, misses int) {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return len(vc.rendered), vc.hits, vc.misses
}
