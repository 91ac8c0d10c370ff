package fusion

import (
	"sync"
	"testing"
	"time"
)

func testRaster(value float64) *Raster {
	r := NewRaster(2, 2, 0.4)
	for i := range r.Cells {
		r.Cells[i] = value
	}
	return r
}

func TestLayerStore_PutAndGet(t *testing.T) {
	s := NewLayerStore()
	stamp := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.Put("drivable", testRaster(50), stamp)

	got, ok := s.Get("drivable")
	if !ok {
		t.Fatal("expected a cached sample")
	}
	if got.Channel != "drivable" || !got.Stamp.Equal(stamp) || got.At(0, 0) != 50 {
		t.Errorf("unexpected cached sample: %+v", got)
	}
}

func TestLayerStore_NeverReceivedIsAbsent(t *testing.T) {
	s := NewLayerStore()
	if _, ok := s.Get("occupancy"); ok {
		t.Error("expected absence for a channel that never received a sample")
	}
	if snap := s.Snapshot(); len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %d entries", len(snap))
	}
}

func TestLayerStore_OlderSampleIsDropped(t *testing.T) {
	s := NewLayerStore()
	t2 := time.Date(2026, 3, 10, 12, 0, 1, 0, time.UTC)
	t1 := t2.Add(-time.Second)

	s.Put("drivable", testRaster(70), t2)
	s.Put("drivable", testRaster(10), t1)

	got, _ := s.Get("drivable")
	if got.At(0, 0) != 70 || !got.Stamp.Equal(t2) {
		t.Errorf("older sample overwrote newer: value %v at %v", got.At(0, 0), got.Stamp)
	}
}

func TestLayerStore_EqualStampLastWriterWins(t *testing.T) {
	s := NewLayerStore()
	stamp := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.Put("drivable", testRaster(10), stamp)
	s.Put("drivable", testRaster(20), stamp)

	got, _ := s.Get("drivable")
	if got.At(0, 0) != 20 {
		t.Errorf("expected last writer at equal stamp, got %v", got.At(0, 0))
	}
}

func TestLayerStore_PutClonesInput(t *testing.T) {
	s := NewLayerStore()
	r := testRaster(30)
	s.Put("drivable", r, time.Now())

	r.Cells[0] = 99

	got, _ := s.Get("drivable")
	if got.At(0, 0) != 30 {
		t.Error("store shares cells with the producer's raster")
	}
}

func TestLayerStore_SnapshotIsolation(t *testing.T) {
	s := NewLayerStore()
	t1 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.Put("drivable", testRaster(40), t1)
	snap := s.Snapshot()

	// A sample arriving after the snapshot must not appear in it.
	s.Put("drivable", testRaster(90), t1.Add(time.Second))

	if snap["drivable"].At(0, 0) != 40 {
		t.Errorf("snapshot changed after a later Put: %v", snap["drivable"].At(0, 0))
	}
}

func TestLayerStore_ConcurrentProducers(t *testing.T) {
	s := NewLayerStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	channels := []string{"occupancy", "drivable", "route_dist", "junction"}

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Put(ch, testRaster(float64(i)), base.Add(time.Duration(i)*time.Millisecond))
			}
		}(ch)
	}
	for i := 0; i < 100; i++ {
		s.Snapshot()
	}
	wg.Wait()

	snap := s.Snapshot()
	for _, ch := range channels {
		r, ok := snap[ch]
		if !ok {
			t.Fatalf("channel %q missing after concurrent writes", ch)
		}
		if r.At(0, 0) != 199 {
			t.Errorf("channel %q holds %v, want the newest sample 199", ch, r.At(0, 0))
		}
	}
}
