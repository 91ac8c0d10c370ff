package fusion

import (
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/gridfuse/internal/monitoring"
)

// Operator selects how a weighted layer is folded into an output.
type Operator int

const (
	// OpMax keeps the elementwise maximum of the running result and the
	// weighted layer. Used for hard-constraint layers such as drivability.
	OpMax Operator = iota

	// OpAccumulate sums the weighted layer into the running result. Used
	// for continuous cost signals.
	OpAccumulate
)

// ParseOperator maps a config string onto an Operator.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(s) {
	case "max":
		return OpMax, nil
	case "accumulate":
		return OpAccumulate, nil
	}
	return 0, fmt.Errorf("unknown combine operator %q", s)
}

func (op Operator) String() string {
	switch op {
	case OpMax:
		return "max"
	case OpAccumulate:
		return "accumulate"
	}
	return fmt.Sprintf("operator(%d)", int(op))
}

// FusionRule assigns one channel to one named output with a weight and a
// combine operator. A channel may feed several outputs via several rules.
type FusionRule struct {
	Channel string
	Output  string
	Weight  float64
	Op      Operator
}

// Aggregator folds canonical per-channel rasters into the configured
// named outputs.
type Aggregator struct {
	Spec  GridSpec
	Rules []FusionRule
}

// OutputNames returns the distinct output names in rule order.
func (a *Aggregator) OutputNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, rule := range a.Rules {
		if !seen[rule.Output] {
			seen[rule.Output] = true
			names = append(names, rule.Output)
		}
	}
	return names
}

// Combine produces one raster per configured output from the given
// canonical layers, stamped with the cycle time. Channels are folded in
// rule order so results are deterministic. An output is abandoned for the
// cycle when any channel it requires is missing from layers; independent
// outputs are unaffected. Every produced cell is clamped to
// [CostMin, CostMax].
func (a *Aggregator) Combine(layers map[string]*Raster, now time.Time) map[string]*Raster {
	results := make(map[string]*Raster)
	abandoned := make(map[string]bool)

	for _, rule := range a.Rules {
		if abandoned[rule.Output] {
			continue
		}
		layer, ok := layers[rule.Channel]
		if !ok || layer.Empty() {
			monitoring.Logf("fusion: output %q abandoned this cycle: channel %q unavailable", rule.Output, rule.Channel)
			abandoned[rule.Output] = true
			delete(results, rule.Output)
			continue
		}

		out, ok := results[rule.Output]
		if !ok {
			out = a.Spec.Canvas(0)
			out.Stamp = now
			results[rule.Output] = out
		}

		weighted := make([]float64, len(layer.Cells))
		copy(weighted, layer.Cells)
		// Unknown cells contribute no cost.
		for i, v := range weighted {
			if v < CostMin {
				weighted[i] = 0
			}
		}
		floats.Scale(rule.Weight, weighted)

		switch rule.Op {
		case OpAccumulate:
			floats.Add(out.Cells, weighted)
		default:
			for i, v := range weighted {
				if v > out.Cells[i] {
					out.Cells[i] = v
				}
			}
		}
	}

	for _, out := range results {
		clamp(out.Cells, CostMin, CostMax)
	}
	return results
}

// clamp bounds every value to [lo, hi] in place.
func clamp(cells []float64, lo, hi float64) {
	for i, v := range cells {
		if v < lo {
			cells[i] = lo
		} else if v > hi {
			cells[i] = hi
		}
	}
}
