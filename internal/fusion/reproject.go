package fusion

import (
	"context"
	"fmt"
	"math"
	"time"
)

// DefaultTransformTimeout bounds how long a fast-forward waits for the
// transform provider before giving up on the channel for the cycle.
const DefaultTransformTimeout = 5 * time.Second

// Reprojector fast-forwards a stale raster into the current vehicle
// frame by applying the rigid-body motion that occurred since capture.
type Reprojector struct {
	Spec     GridSpec
	Provider TransformProvider

	// Timeout bounds each transform lookup. Zero selects
	// DefaultTransformTimeout.
	Timeout time.Duration

	// RotationCenterOffset is the distance in meters between the grid
	// center and the vehicle's rotation center. Rotating the raster and
	// rotating the physical vehicle are not centered at the same point,
	// so the translation is corrected by this offset.
	RotationCenterOffset float64
}

// FastForward re-expresses r, captured around the vehicle pose at
// r.Stamp, as a canonical-shape raster around the vehicle pose at now.
// The returned raster carries now as its timestamp and the canonical
// origin and resolution. A zero displacement skips the resampling but
// still returns a fresh raster with the canonical metadata.
//
// The operation order is rotate, shift, crop, resize. Rotation expands
// the bounds so corners survive, the shift lands the content in the
// current frame, the symmetric crop restores the pre-rotation extent and
// the resize absorbs any off-by-one from rotation rounding.
func (rp *Reprojector) FastForward(ctx context.Context, r *Raster, now time.Time) (*Raster, error) {
	if r.Empty() {
		return nil, fmt.Errorf("fast-forward %q: empty raster", r.Channel)
	}

	timeout := rp.Timeout
	if timeout <= 0 {
		timeout = DefaultTransformTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d, err := rp.Provider.Lookup(lookupCtx, r.Stamp, now)
	if err != nil {
		return nil, fmt.Errorf("fast-forward %q: %w", r.Channel, err)
	}
	if d.IsZero() {
		out := Resize(r, rp.Spec.Width, rp.Spec.Height)
		if out == r {
			out = r.Clone()
		}
		out.Channel = r.Channel
		out.Stamp = now
		out.Resolution = rp.Spec.Resolution
		out.OriginX = rp.Spec.OriginX
		out.OriginY = rp.Spec.OriginY
		return out, nil
	}

	rotated := Rotate(r, -d.DYaw)

	// Correct the translation for the offset between the grid center and
	// the vehicle's rotation center before converting to cell units.
	sin, cos := math.Sincos(-d.DYaw)
	x := d.DX + rp.RotationCenterOffset*(1-cos)
	y := d.DY - rp.RotationCenterOffset*sin

	res := r.Resolution
	shifted := Shift(rotated, y/res, x/res)

	cropped := CropCenter(shifted, r.Width, r.Height)
	out := Resize(cropped, rp.Spec.Width, rp.Spec.Height)
	if out == cropped {
		out = cropped.Clone()
	}

	out.Channel = r.Channel
	out.Stamp = now
	out.Resolution = rp.Spec.Resolution
	out.OriginX = rp.Spec.OriginX
	out.OriginY = rp.Spec.OriginY
	return out, nil
}
