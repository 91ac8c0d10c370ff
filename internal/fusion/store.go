package fusion

import (
	"sync"
	"time"
)

// LayerStore caches the most recent raster per channel. It is a single
// mutable slot per channel, not a queue: an overrun producer simply loses
// intermediate samples, which bounds staleness by construction.
type LayerStore struct {
	mu     sync.RWMutex
	layers map[string]*Raster
}

// NewLayerStore returns an empty store.
func NewLayerStore() *LayerStore {
	return &LayerStore{layers: make(map[string]*Raster)}
}

// Put caches a sample for its channel. Samples older than the cached one
// are dropped, keeping each slot monotonic in capture time. A sample with
// an equal timestamp replaces the cached one (last writer wins).
func (s *LayerStore) Put(channel string, r *Raster, stamp time.Time) {
	if channel == "" || r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.layers[channel]; ok && stamp.Before(prev.Stamp) {
		return
	}
	stored := r.Clone()
	stored.Channel = channel
	stored.Stamp = stamp
	s.layers[channel] = stored
}

// Snapshot returns the currently cached raster per channel. The returned
// map is the cycle's consistent view: samples arriving after the snapshot
// do not leak into the cycle that took it. Cached rasters are immutable
// once stored, so the snapshot shares them without copying cells.
func (s *LayerStore) Snapshot() map[string]*Raster {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Raster, len(s.layers))
	for ch, r := range s.layers {
		out[ch] = r
	}
	return out
}

// Get returns the cached raster for one channel and whether one has ever
// been received.
func (s *LayerStore) Get(channel string) (*Raster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.layers[channel]
	return r, ok
}
