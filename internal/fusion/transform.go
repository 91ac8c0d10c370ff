package fusion

import (
	"context"
	"time"
)

// Displacement is the planar rigid-body motion of the vehicle frame
// between two instants: translation in meters expressed in the source
// vehicle frame, plus the yaw change in radians.
type Displacement struct {
	DX   float64
	DY   float64
	DYaw float64
}

// IsZero reports whether the displacement is negligible for raster work,
// i.e. the vehicle has not meaningfully moved between the two instants.
func (d Displacement) IsZero() bool {
	const eps = 1e-9
	return d.DX > -eps && d.DX < eps &&
		d.DY > -eps && d.DY < eps &&
		d.DYaw > -eps && d.DYaw < eps
}

// TransformProvider resolves the vehicle displacement between a sample's
// capture time and the current cycle time. Implementations must honor ctx
// cancellation; the scheduler bounds each lookup with a timeout and treats
// failure as a per-channel miss for the cycle, never as fatal.
type TransformProvider interface {
	Lookup(ctx context.Context, sourceTime, targetTime time.Time) (Displacement, error)
}
