package fusion

// NormalizerParams tunes how an off-spec raster is re-gridded onto the
// canonical grid. The defaults match the legacy occupancy producer that
// emits 128x128 cells at a finer resolution than the canonical grid.
type NormalizerParams struct {
	// DecimationStep deletes every Nth row and column to approximately
	// match the canonical cell size.
	DecimationStep int

	// TrimBehind removes this many columns from the behind-vehicle edge,
	// since the canonical convention keeps more map ahead of the vehicle
	// than behind.
	TrimBehind int

	// AnchorRow and AnchorCol place the re-gridded content into the
	// canonical background so the vehicle lands on the canonical
	// vehicle-relative cell. Downstream consumers index cost by position
	// relative to the vehicle, so this alignment must be exact.
	AnchorRow int
	AnchorCol int
}

// DefaultNormalizerParams matches the deployed legacy occupancy grid.
func DefaultNormalizerParams() NormalizerParams {
	return NormalizerParams{
		DecimationStep: 6,
		TrimBehind:     3,
		AnchorRow:      22,
		AnchorCol:      0,
	}
}

// Normalizer reconciles rasters published at a non-canonical resolution
// or extent onto the canonical grid. The re-gridding is deterministic and
// lossy; only the anchor alignment is exact.
type Normalizer struct {
	Spec   GridSpec
	Params NormalizerParams
}

// Normalize returns r expressed on the canonical grid. Already-canonical
// rasters pass through unchanged. Cells outside the re-gridded content
// are CostUnknown.
func (n *Normalizer) Normalize(r *Raster) *Raster {
	if n.Spec.Matches(r) {
		return r
	}

	decimated := decimate(r, n.Params.DecimationStep)

	// Trim the columns facing behind the vehicle.
	trim := n.Params.TrimBehind
	if trim > decimated.Width {
		trim = decimated.Width
	}
	trimmed := NewRaster(decimated.Width-trim, decimated.Height, decimated.Resolution)
	for row := 0; row < trimmed.Height; row++ {
		src := decimated.Cells[row*decimated.Width+trim:]
		copy(trimmed.Cells[row*trimmed.Width:(row+1)*trimmed.Width], src[:trimmed.Width])
	}

	out := n.Spec.Canvas(CostUnknown)
	out.Channel = r.Channel
	out.Stamp = r.Stamp

	rows := trimmed.Height
	if max := n.Spec.Height - n.Params.AnchorRow; rows > max {
		rows = max
	}
	cols := trimmed.Width
	if max := n.Spec.Width - n.Params.AnchorCol; cols > max {
		cols = max
	}
	for row := 0; row < rows; row++ {
		dst := out.Cells[(row+n.Params.AnchorRow)*out.Width+n.Params.AnchorCol:]
		copy(dst[:cols], trimmed.Cells[row*trimmed.Width:row*trimmed.Width+cols])
	}
	return out
}

// decimate drops every stepth row and column, scaling the resolution to
// match the coarser cell size. A step below 2 leaves the raster intact.
func decimate(r *Raster, step int) *Raster {
	if step < 2 {
		return r
	}

	keepRows := keepIndices(r.Height, step)
	keepCols := keepIndices(r.Width, step)

	out := NewRaster(len(keepCols), len(keepRows), r.Resolution*float64(step)/float64(step-1))
	out.Channel = r.Channel
	out.OriginX = r.OriginX
	out.OriginY = r.OriginY
	out.Stamp = r.Stamp

	for or, sr := range keepRows {
		for oc, sc := range keepCols {
			out.Cells[or*out.Width+oc] = r.Cells[sr*r.Width+sc]
		}
	}
	return out
}

// keepIndices lists the indices surviving deletion of every stepth entry
// (indices 0, step, 2*step, ...).
func keepIndices(n, step int) []int {
	keep := make([]int, 0, n-(n+step-1)/step)
	for i := 0; i < n; i++ {
		if i%step == 0 {
			continue
		}
		keep = append(keep, i)
	}
	return keep
}
