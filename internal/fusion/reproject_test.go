package fusion

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

var reprojSpec = GridSpec{Width: 11, Height: 11, Resolution: 0.4, OriginX: -20, OriginY: -30}

// stubProvider returns a fixed displacement or error.
type stubProvider struct {
	d   Displacement
	err error
}

func (s stubProvider) Lookup(ctx context.Context, sourceTime, targetTime time.Time) (Displacement, error) {
	return s.d, s.err
}

func reprojRaster() *Raster {
	r := NewRaster(reprojSpec.Width, reprojSpec.Height, reprojSpec.Resolution)
	r.Channel = "occupancy"
	r.Stamp = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return r
}

func TestFastForward_ZeroDisplacementKeepsContent(t *testing.T) {
	rp := &Reprojector{Spec: reprojSpec, Provider: stubProvider{}}
	r := reprojRaster()
	r.Set(5, 5, 80)

	now := r.Stamp.Add(time.Second)
	out, err := rp.FastForward(context.Background(), r, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == r {
		t.Fatal("zero displacement must still return a fresh raster")
	}
	for i := range r.Cells {
		if out.Cells[i] != r.Cells[i] {
			t.Fatalf("cell %d changed under zero displacement", i)
		}
	}
	// The shortcut still honors the output contract: cycle timestamp and
	// canonical metadata, not the stale sample's.
	if !out.Stamp.Equal(now) {
		t.Errorf("output stamp %v, want cycle time %v", out.Stamp, now)
	}
	if out.OriginX != reprojSpec.OriginX || out.OriginY != reprojSpec.OriginY || out.Resolution != reprojSpec.Resolution {
		t.Errorf("output metadata (%v,%v,%v), want canonical", out.OriginX, out.OriginY, out.Resolution)
	}
}

func TestFastForward_PureTranslationShiftsByCells(t *testing.T) {
	// 1.0 m forward at 0.4 m/cell is a 2.5 cell shift along the column
	// axis; bilinear sampling splits the mass across the two columns.
	rp := &Reprojector{
		Spec:     reprojSpec,
		Provider: stubProvider{d: Displacement{DX: 1.0}},
	}
	r := reprojRaster()
	r.Set(5, 4, 80)

	now := r.Stamp.Add(time.Second)
	out, err := rp.FastForward(context.Background(), r, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Width != 11 || out.Height != 11 {
		t.Fatalf("expected canonical 11x11, got %dx%d", out.Width, out.Height)
	}
	if !almostEqual(out.At(5, 6), 40) || !almostEqual(out.At(5, 7), 40) {
		t.Errorf("expected 40/40 at columns 6 and 7, got %v and %v", out.At(5, 6), out.At(5, 7))
	}
	if !out.Stamp.Equal(now) {
		t.Errorf("output stamp %v, want cycle time %v", out.Stamp, now)
	}
	if out.OriginX != reprojSpec.OriginX || out.OriginY != reprojSpec.OriginY {
		t.Errorf("output origin (%v,%v), want canonical", out.OriginX, out.OriginY)
	}
}

func TestFastForward_LateralTranslationShiftsRows(t *testing.T) {
	// 0.8 m lateral is exactly 2 cells along the row axis.
	rp := &Reprojector{
		Spec:     reprojSpec,
		Provider: stubProvider{d: Displacement{DY: 0.8}},
	}
	r := reprojRaster()
	r.Set(4, 5, 60)

	out, err := rp.FastForward(context.Background(), r, r.Stamp.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(out.At(6, 5), 60) {
		t.Errorf("expected content at row 6, got %v there and %v at origin", out.At(6, 5), out.At(4, 5))
	}
}

func TestFastForward_PureRotation(t *testing.T) {
	// Quarter turn, rotation center on the grid center. The raster is
	// rotated by the negated yaw: out(row, col) = in(col, 10-row).
	rp := &Reprojector{
		Spec:     reprojSpec,
		Provider: stubProvider{d: Displacement{DYaw: math.Pi / 2}},
	}
	r := reprojRaster()
	r.Set(0, 0, 100)

	out, err := rp.FastForward(context.Background(), r, r.Stamp.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(out.At(10, 0), 100) {
		t.Errorf("expected corner at (10,0) after quarter turn, got %v", out.At(10, 0))
	}
	if !almostEqual(out.At(0, 0), 0) {
		t.Errorf("source corner should be vacated, got %v", out.At(0, 0))
	}
}

func TestFastForward_RotationCenterOffsetCorrectsTranslation(t *testing.T) {
	// With a quarter turn, an offset of 0.8 m corrects the translation by
	// x = off*(1-cos(-yaw)) = 0.8 and y = -off*sin(-yaw) = 0.8, i.e. a
	// +2 column, +2 row cell shift after rotation.
	rp := &Reprojector{
		Spec:                 reprojSpec,
		Provider:             stubProvider{d: Displacement{DYaw: math.Pi / 2}},
		RotationCenterOffset: 0.8,
	}
	r := reprojRaster()
	r.Set(5, 5, 100) // center survives rotation in place

	out, err := rp.FastForward(context.Background(), r, r.Stamp.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(out.At(7, 7), 100) {
		t.Errorf("expected center shifted to (7,7), got %v", out.At(7, 7))
	}
}

func TestFastForward_ProviderFailureFailsChannel(t *testing.T) {
	rp := &Reprojector{
		Spec:     reprojSpec,
		Provider: stubProvider{err: errors.New("no transform data")},
	}

	_, err := rp.FastForward(context.Background(), reprojRaster(), time.Now())
	if err == nil {
		t.Fatal("expected error when the transform provider fails")
	}
}

func TestFastForward_EmptyRasterFails(t *testing.T) {
	rp := &Reprojector{Spec: reprojSpec, Provider: stubProvider{}}
	if _, err := rp.FastForward(context.Background(), &Raster{Channel: "occupancy"}, time.Now()); err == nil {
		t.Fatal("expected error for empty raster")
	}
}

func TestFastForward_InputIsNotMutated(t *testing.T) {
	rp := &Reprojector{
		Spec:     reprojSpec,
		Provider: stubProvider{d: Displacement{DX: 0.4}},
	}
	r := reprojRaster()
	r.Set(5, 5, 80)
	before := append([]float64(nil), r.Cells...)

	if _, err := rp.FastForward(context.Background(), r, r.Stamp.Add(time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range before {
		if r.Cells[i] != before[i] {
			t.Fatal("fast-forward mutated its input raster")
		}
	}
}
