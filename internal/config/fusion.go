// Package config loads the static fusion deployment configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/gridfuse/internal/fusion"
)

// FusionConfig is the root configuration for the fusion engine. Fields
// are pointers so partial JSON files are safe: anything omitted keeps its
// deployment default via the Get* accessors.
type FusionConfig struct {
	// Canonical grid
	GridWidth  *int     `json:"grid_width,omitempty"`
	GridHeight *int     `json:"grid_height,omitempty"`
	Resolution *float64 `json:"resolution,omitempty"` // meters per cell
	OriginX    *float64 `json:"origin_x,omitempty"`   // vehicle-frame lower-left, meters
	OriginY    *float64 `json:"origin_y,omitempty"`

	// Cycle and reprojection
	CyclePeriod          *string  `json:"cycle_period,omitempty"`           // duration string like "50ms"
	TransformTimeout     *string  `json:"transform_timeout,omitempty"`      // duration string like "5s"
	RotationCenterOffset *float64 `json:"rotation_center_offset,omitempty"` // meters

	// Input channels and their fusion rules
	Channels []ChannelConfig `json:"channels,omitempty"`
}

// ChannelConfig describes one input cost layer and its fusion rule.
type ChannelConfig struct {
	Name               string           `json:"name"`
	StalenessTolerance *string          `json:"staleness_tolerance,omitempty"` // duration string
	Output             *string          `json:"output,omitempty"`
	Weight             *float64         `json:"weight,omitempty"`
	Operator           *string          `json:"operator,omitempty"` // "max" or "accumulate"
	Normalize          *NormalizeConfig `json:"normalize,omitempty"`
}

// NormalizeConfig overrides the re-gridding parameters for channels whose
// producers emit non-canonical grids.
type NormalizeConfig struct {
	DecimationStep *int `json:"decimation_step,omitempty"`
	TrimBehind     *int `json:"trim_behind,omitempty"`
	AnchorRow      *int `json:"anchor_row,omitempty"`
	AnchorCol      *int `json:"anchor_col,omitempty"`
}

// DefaultConfig returns the canonical deployment: a 151x151 grid at
// 0.4 m/cell with the occupancy, drivable, route_dist and junction
// channels. Occupancy, drivable and route_dist gate steering via max;
// junction accumulates into the speed cost.
func DefaultConfig() *FusionConfig {
	return &FusionConfig{
		Channels: []ChannelConfig{
			{Name: "occupancy"},
			{Name: "drivable"},
			{Name: "route_dist"},
			{Name: "junction", Output: ptrString("speed_cost"), Operator: ptrString("accumulate")},
		},
	}
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }

// LoadConfig reads a FusionConfig from a JSON file. Omitted fields retain
// their defaults, so partial configs are safe.
func LoadConfig(path string) (*FusionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &FusionConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *FusionConfig) Validate() error {
	if c.GridWidth != nil && *c.GridWidth <= 0 {
		return fmt.Errorf("grid_width must be positive, got %d", *c.GridWidth)
	}
	if c.GridHeight != nil && *c.GridHeight <= 0 {
		return fmt.Errorf("grid_height must be positive, got %d", *c.GridHeight)
	}
	if c.Resolution != nil && *c.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %f", *c.Resolution)
	}

	for _, field := range []struct {
		name  string
		value *string
	}{
		{"cycle_period", c.CyclePeriod},
		{"transform_timeout", c.TransformTimeout},
	} {
		if field.value != nil && *field.value != "" {
			if _, err := time.ParseDuration(*field.value); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", field.name, *field.value, err)
			}
		}
	}

	seen := make(map[string]bool)
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel with empty name")
		}
		if seen[ch.Name] {
			return fmt.Errorf("duplicate channel %q", ch.Name)
		}
		seen[ch.Name] = true

		if ch.StalenessTolerance != nil && *ch.StalenessTolerance != "" {
			if _, err := time.ParseDuration(*ch.StalenessTolerance); err != nil {
				return fmt.Errorf("channel %q: invalid staleness_tolerance: %w", ch.Name, err)
			}
		}
		if ch.Weight != nil && *ch.Weight < 0 {
			return fmt.Errorf("channel %q: weight must be non-negative, got %f", ch.Name, *ch.Weight)
		}
		if ch.Operator != nil {
			if _, err := fusion.ParseOperator(*ch.Operator); err != nil {
				return fmt.Errorf("channel %q: %w", ch.Name, err)
			}
		}
	}

	return nil
}

// GridSpec returns the canonical grid the deployment fuses onto.
func (c *FusionConfig) GridSpec() fusion.GridSpec {
	spec := fusion.GridSpec{Width: 151, Height: 151, Resolution: 0.4, OriginX: -20.0, OriginY: -30.0}
	if c.GridWidth != nil {
		spec.Width = *c.GridWidth
	}
	if c.GridHeight != nil {
		spec.Height = *c.GridHeight
	}
	if c.Resolution != nil {
		spec.Resolution = *c.Resolution
	}
	if c.OriginX != nil {
		spec.OriginX = *c.OriginX
	}
	if c.OriginY != nil {
		spec.OriginY = *c.OriginY
	}
	return spec
}

// GetCyclePeriod returns the fusion cycle period.
func (c *FusionConfig) GetCyclePeriod() time.Duration {
	return parseDurationOr(c.CyclePeriod, 50*time.Millisecond)
}

// GetTransformTimeout returns the transform lookup timeout.
func (c *FusionConfig) GetTransformTimeout() time.Duration {
	return parseDurationOr(c.TransformTimeout, 5*time.Second)
}

// GetRotationCenterOffset returns the grid-center to rotation-center
// distance in meters (default 4.0 m, ten canonical cells).
func (c *FusionConfig) GetRotationCenterOffset() float64 {
	if c.RotationCenterOffset == nil {
		return 4.0
	}
	return *c.RotationCenterOffset
}

// GetStalenessTolerance returns the tolerance for one channel.
func (ch *ChannelConfig) GetStalenessTolerance() time.Duration {
	return parseDurationOr(ch.StalenessTolerance, 250*time.Millisecond)
}

// GetWeight returns the fusion weight for one channel.
func (ch *ChannelConfig) GetWeight() float64 {
	if ch.Weight == nil {
		return 1.0
	}
	return *ch.Weight
}

// GetOutput returns the output the channel feeds.
func (ch *ChannelConfig) GetOutput() string {
	if ch.Output == nil || *ch.Output == "" {
		return "steering_cost"
	}
	return *ch.Output
}

// GetOperator returns the channel's combine operator.
func (ch *ChannelConfig) GetOperator() fusion.Operator {
	if ch.Operator == nil {
		return fusion.OpMax
	}
	op, err := fusion.ParseOperator(*ch.Operator)
	if err != nil {
		return fusion.OpMax
	}
	return op
}

// Rules builds the aggregation rule set in channel order.
func (c *FusionConfig) Rules() []fusion.FusionRule {
	rules := make([]fusion.FusionRule, 0, len(c.Channels))
	for i := range c.Channels {
		ch := &c.Channels[i]
		rules = append(rules, fusion.FusionRule{
			Channel: ch.Name,
			Output:  ch.GetOutput(),
			Weight:  ch.GetWeight(),
			Op:      ch.GetOperator(),
		})
	}
	return rules
}

// Policies builds the scheduler's per-channel policies in channel order.
func (c *FusionConfig) Policies() []fusion.ChannelPolicy {
	policies := make([]fusion.ChannelPolicy, 0, len(c.Channels))
	for i := range c.Channels {
		ch := &c.Channels[i]
		policies = append(policies, fusion.ChannelPolicy{
			Name:               ch.Name,
			StalenessTolerance: ch.GetStalenessTolerance(),
		})
	}
	return policies
}

// NormalizerParams returns the re-gridding parameters, taking the first
// channel-level override if one is configured.
func (c *FusionConfig) NormalizerParams() fusion.NormalizerParams {
	params := fusion.DefaultNormalizerParams()
	for i := range c.Channels {
		n := c.Channels[i].Normalize
		if n == nil {
			continue
		}
		if n.DecimationStep != nil {
			params.DecimationStep = *n.DecimationStep
		}
		if n.TrimBehind != nil {
			params.TrimBehind = *n.TrimBehind
		}
		if n.AnchorRow != nil {
			params.AnchorRow = *n.AnchorRow
		}
		if n.AnchorCol != nil {
			params.AnchorCol = *n.AnchorCol
		}
		break
	}
	return params
}

func parseDurationOr(s *string, fallback time.Duration) time.Duration {
	if s == nil || *s == "" {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fallback
	}
	return d
}
