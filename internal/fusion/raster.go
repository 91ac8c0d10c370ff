package fusion

import "math"

// Pure raster operations backing the fast-forward reprojection. The
// pipeline applies them in a fixed order (rotate, shift, crop, resize);
// changing that order introduces systematic drift across cycles, so the
// steps are kept separate and individually tested rather than fused into
// one transform.

// sample returns the bilinear interpolation of r at fractional (row, col).
// Coordinates outside the raster contribute zero.
func sample(r *Raster, row, col float64) float64 {
	r0 := int(math.Floor(row))
	c0 := int(math.Floor(col))
	fr := row - float64(r0)
	fc := col - float64(c0)

	cell := func(ri, ci int) float64 {
		if ri < 0 || ri >= r.Height || ci < 0 || ci >= r.Width {
			return 0
		}
		return r.Cells[ri*r.Width+ci]
	}

	v00 := cell(r0, c0)
	v01 := cell(r0, c0+1)
	v10 := cell(r0+1, c0)
	v11 := cell(r0+1, c0+1)

	top := v00*(1-fc) + v01*fc
	bottom := v10*(1-fc) + v11*fc
	return top*(1-fr) + bottom*fr
}

// expandedDim rounds away float fuzz before taking the ceiling, so a 90
// degree rotation of a square grid keeps its exact dimensions.
func expandedDim(v float64) int {
	return int(math.Ceil(v - 1e-9))
}

// Rotate returns r rotated about its center by angle radians, with the
// output bounds expanded so no corner content is clipped. The rotated
// raster is generally larger than the source; callers crop afterwards.
// Cells uncovered by the source are zero.
func Rotate(r *Raster, angle float64) *Raster {
	sin, cos := math.Sincos(angle)
	absSin, absCos := math.Abs(sin), math.Abs(cos)

	w, h := float64(r.Width), float64(r.Height)
	outW := expandedDim(w*absCos + h*absSin)
	outH := expandedDim(w*absSin + h*absCos)

	out := NewRaster(outW, outH, r.Resolution)
	out.Channel = r.Channel
	out.OriginX = r.OriginX
	out.OriginY = r.OriginY
	out.Stamp = r.Stamp

	srcCR := (h - 1) / 2
	srcCC := (w - 1) / 2
	dstCR := (float64(outH) - 1) / 2
	dstCC := (float64(outW) - 1) / 2

	for row := 0; row < outH; row++ {
		dy := float64(row) - dstCR
		for col := 0; col < outW; col++ {
			dx := float64(col) - dstCC
			// inverse map: rotate destination offsets back into the source
			sx := dx*cos + dy*sin
			sy := -dx*sin + dy*cos
			out.Cells[row*outW+col] = sample(r, srcCR+sy, srcCC+sx)
		}
	}
	return out
}

// Shift translates raster content by a fractional number of cells.
// Positive dRow moves content toward higher rows, positive dCol toward
// higher columns. Vacated cells are zero.
func Shift(r *Raster, dRow, dCol float64) *Raster {
	out := NewRaster(r.Width, r.Height, r.Resolution)
	out.Channel = r.Channel
	out.OriginX = r.OriginX
	out.OriginY = r.OriginY
	out.Stamp = r.Stamp

	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			out.Cells[row*r.Width+col] = sample(r, float64(row)-dRow, float64(col)-dCol)
		}
	}
	return out
}

// CropCenter trims r symmetrically down toward the requested extent. The
// margin on each side is floor((current-target)/2), so when the parities
// of current and target differ the result overshoots the target by one
// cell; callers follow with Resize for an exact shape.
func CropCenter(r *Raster, width, height int) *Raster {
	marginR := (r.Height - height) / 2
	marginC := (r.Width - width) / 2
	if marginR < 0 {
		marginR = 0
	}
	if marginC < 0 {
		marginC = 0
	}
	outH := r.Height - 2*marginR
	outW := r.Width - 2*marginC

	out := NewRaster(outW, outH, r.Resolution)
	out.Channel = r.Channel
	out.OriginX = r.OriginX
	out.OriginY = r.OriginY
	out.Stamp = r.Stamp

	for row := 0; row < outH; row++ {
		src := r.Cells[(row+marginR)*r.Width+marginC:]
		copy(out.Cells[row*outW:(row+1)*outW], src[:outW])
	}
	return out
}

// Resize rescales r to exactly width x height using nearest-neighbor
// sampling. Used to absorb the off-by-one cell that rotation rounding can
// produce. Returns r unchanged when the shape already matches.
func Resize(r *Raster, width, height int) *Raster {
	if r.Width == width && r.Height == height {
		return r
	}

	out := NewRaster(width, height, r.Resolution)
	out.Channel = r.Channel
	out.OriginX = r.OriginX
	out.OriginY = r.OriginY
	out.Stamp = r.Stamp

	for row := 0; row < height; row++ {
		sr := int((float64(row) + 0.5) * float64(r.Height) / float64(height))
		if sr >= r.Height {
			sr = r.Height - 1
		}
		for col := 0; col < width; col++ {
			sc := int((float64(col) + 0.5) * float64(r.Width) / float64(width))
			if sc >= r.Width {
				sc = r.Width - 1
			}
			out.Cells[row*width+col] = r.Cells[sr*r.Width+sc]
		}
	}
	return out
}
