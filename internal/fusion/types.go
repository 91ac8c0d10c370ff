package fusion

import "time"

// Cost value bounds. Cells carry a drive cost between CostMin (free) and
// CostMax (blocked). CostUnknown marks cells with no information, matching
// the -1 convention of upstream occupancy producers.
const (
	CostMin     = 0.0
	CostMax     = 100.0
	CostUnknown = -1.0
)

// Raster is one rectangular cost layer. Cells are stored row-major,
// Height rows by Width columns, in vehicle frame: row index grows forward,
// column index grows to the right. OriginX/OriginY give the vehicle-frame
// position of the lower-left cell in meters.
//
// Rasters are treated as immutable once handed to the fusion pipeline;
// every pipeline stage allocates a new Raster rather than mutating its
// input.
type Raster struct {
	Channel    string
	Width      int
	Height     int
	Resolution float64 // meters per cell
	OriginX    float64
	OriginY    float64
	Stamp      time.Time
	Cells      []float64
}

// NewRaster allocates a zero-filled raster of the given shape.
func NewRaster(width, height int, resolution float64) *Raster {
	return &Raster{
		Width:      width,
		Height:     height,
		Resolution: resolution,
		Cells:      make([]float64, width*height),
	}
}

// At returns the cell at (row, col). Callers are expected to stay in
// bounds; pipeline stages that sample outside use bilinear helpers with
// explicit fill instead.
func (r *Raster) At(row, col int) float64 {
	return r.Cells[row*r.Width+col]
}

// Set writes the cell at (row, col).
func (r *Raster) Set(row, col int, v float64) {
	r.Cells[row*r.Width+col] = v
}

// Empty reports whether the raster carries no cells.
func (r *Raster) Empty() bool {
	return r == nil || len(r.Cells) == 0
}

// Clone returns a deep copy of the raster.
func (r *Raster) Clone() *Raster {
	out := *r
	out.Cells = make([]float64, len(r.Cells))
	copy(out.Cells, r.Cells)
	return &out
}

// GridSpec describes the canonical output grid that every layer is
// reconciled to before fusion.
type GridSpec struct {
	Width      int
	Height     int
	Resolution float64 // meters per cell
	OriginX    float64 // vehicle-frame position of the lower-left cell
	OriginY    float64
}

// Matches reports whether a raster already has the canonical shape and
// resolution.
func (s GridSpec) Matches(r *Raster) bool {
	if r == nil {
		return false
	}
	return r.Width == s.Width && r.Height == s.Height && r.Resolution == s.Resolution
}

// Canvas allocates a canonical-shape raster filled with the given value.
func (s GridSpec) Canvas(fill float64) *Raster {
	out := NewRaster(s.Width, s.Height, s.Resolution)
	out.OriginX = s.OriginX
	out.OriginY = s.OriginY
	if fill != 0 {
		for i := range out.Cells {
			out.Cells[i] = fill
		}
	}
	return out
}
