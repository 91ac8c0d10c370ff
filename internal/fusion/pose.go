package fusion

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Pose is a planar vehicle pose in a fixed map frame.
type Pose struct {
	X     float64 // meters
	Y     float64 // meters
	Yaw   float64 // radians
	Stamp time.Time
}

// DefaultPoseRetention bounds how much odometry history the buffer keeps.
// It only needs to cover the oldest sample a producer could still deliver.
const DefaultPoseRetention = 10 * time.Second

// poseWaitPoll is how often a blocked Lookup re-checks buffer coverage.
const poseWaitPoll = 10 * time.Millisecond

// PoseBuffer keeps a short, time-ordered history of vehicle poses fed by
// the odometry stream and resolves displacements between timestamps by
// interpolating within that history. It is the in-process equivalent of
// the external transform-lookup service.
type PoseBuffer struct {
	mu        sync.RWMutex
	poses     []Pose // ascending by Stamp
	retention time.Duration
}

// NewPoseBuffer returns a buffer retaining at least the given history.
// A zero retention selects DefaultPoseRetention.
func NewPoseBuffer(retention time.Duration) *PoseBuffer {
	if retention <= 0 {
		retention = DefaultPoseRetention
	}
	return &PoseBuffer{retention: retention}
}

// Add inserts an odometry sample and prunes history older than the
// retention window. Out-of-order samples are inserted in place.
func (b *PoseBuffer) Add(p Pose) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := sort.Search(len(b.poses), func(i int) bool {
		return b.poses[i].Stamp.After(p.Stamp)
	})
	b.poses = append(b.poses, Pose{})
	copy(b.poses[i+1:], b.poses[i:])
	b.poses[i] = p

	cutoff := p.Stamp.Add(-b.retention)
	drop := 0
	for drop < len(b.poses)-1 && b.poses[drop].Stamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		b.poses = append(b.poses[:0], b.poses[drop:]...)
	}
}

// Lookup resolves the vehicle displacement from sourceTime to targetTime,
// expressed in the source vehicle frame. If the buffer does not yet cover
// both instants it waits, polling, until coverage appears or ctx expires.
// Target times beyond the newest pose clamp to the newest pose, matching
// the "most recent available" convention of the odometry service.
func (b *PoseBuffer) Lookup(ctx context.Context, sourceTime, targetTime time.Time) (Displacement, error) {
	for {
		src, dst, err := b.tryResolve(sourceTime, targetTime)
		if err == nil {
			return relativeDisplacement(src, dst), nil
		}

		select {
		case <-ctx.Done():
			return Displacement{}, fmt.Errorf("transform lookup: %w (%v)", ctx.Err(), err)
		case <-time.After(poseWaitPoll):
		}
	}
}

// tryResolve interpolates poses at both instants without waiting.
func (b *PoseBuffer) tryResolve(sourceTime, targetTime time.Time) (Pose, Pose, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.poses) == 0 {
		return Pose{}, Pose{}, fmt.Errorf("no odometry received")
	}

	src, err := interpolatePose(b.poses, sourceTime, false)
	if err != nil {
		return Pose{}, Pose{}, err
	}
	dst, err := interpolatePose(b.poses, targetTime, true)
	if err != nil {
		return Pose{}, Pose{}, err
	}
	return src, dst, nil
}

// interpolatePose linearly interpolates the pose at t. When clampNewest is
// set, times past the newest pose resolve to the newest pose instead of
// failing; times before the oldest pose always fail since extrapolating
// backwards would invent motion.
func interpolatePose(poses []Pose, t time.Time, clampNewest bool) (Pose, error) {
	first, last := poses[0], poses[len(poses)-1]
	if t.Before(first.Stamp) {
		return Pose{}, fmt.Errorf("pose history starts at %v, requested %v", first.Stamp, t)
	}
	if !t.Before(last.Stamp) {
		if clampNewest || t.Equal(last.Stamp) {
			return last, nil
		}
		return Pose{}, fmt.Errorf("pose history ends at %v, requested %v", last.Stamp, t)
	}

	i := sort.Search(len(poses), func(i int) bool {
		return poses[i].Stamp.After(t)
	})
	lo, hi := poses[i-1], poses[i]
	span := hi.Stamp.Sub(lo.Stamp)
	if span <= 0 {
		return lo, nil
	}
	f := float64(t.Sub(lo.Stamp)) / float64(span)
	return Pose{
		X:     lo.X + f*(hi.X-lo.X),
		Y:     lo.Y + f*(hi.Y-lo.Y),
		Yaw:   lo.Yaw + f*normalizeAngle(hi.Yaw-lo.Yaw),
		Stamp: t,
	}, nil
}

// relativeDisplacement expresses the motion from src to dst in the source
// vehicle frame.
func relativeDisplacement(src, dst Pose) Displacement {
	dxMap := dst.X - src.X
	dyMap := dst.Y - src.Y
	sin, cos := math.Sincos(src.Yaw)
	return Displacement{
		DX:   cos*dxMap + sin*dyMap,
		DY:   -sin*dxMap + cos*dyMap,
		DYaw: normalizeAngle(dst.Yaw - src.Yaw),
	}
}

// normalizeAngle wraps an angle into (-pi, pi].
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
