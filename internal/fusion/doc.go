// Package fusion combines independently produced raster cost layers into
// the fused cost maps consumed by the trajectory planner.
//
// Producers push (channel, raster, timestamp) samples into a LayerStore at
// their own rates. A Scheduler ticks at a fixed period, snapshots the
// store, fast-forwards stale layers into the current vehicle frame,
// reconciles off-spec grids to the canonical shape, and feeds the result
// through the Aggregator. One slow or absent producer never corrupts the
// published output; affected outputs are withheld for the cycle instead.
package fusion
