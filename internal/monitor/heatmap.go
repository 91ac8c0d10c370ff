// Package monitor renders fused cost rasters for visual inspection.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gridfuse/internal/fusion"
)

// costGrid adapts a Raster to the plotter.GridXYZ interface. Axes are in
// vehicle-frame meters so the rendered map matches what the planner sees.
type costGrid struct {
	r *fusion.Raster
}

func (g costGrid) Dims() (c, r int) { return g.r.Width, g.r.Height }

func (g costGrid) Z(c, r int) float64 {
	v := g.r.At(r, c)
	if v < fusion.CostMin {
		return fusion.CostMin
	}
	return v
}

func (g costGrid) X(c int) float64 {
	return g.r.OriginX + (float64(c)+0.5)*g.r.Resolution
}

func (g costGrid) Y(r int) float64 {
	return g.r.OriginY + (float64(r)+0.5)*g.r.Resolution
}

// RenderHeatmap writes a PNG heat map of the raster to outPath, creating
// parent directories as needed.
func RenderHeatmap(r *fusion.Raster, title, outPath string) error {
	if r.Empty() {
		return fmt.Errorf("render heatmap: empty raster")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("render heatmap: %w", err)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	h := plotter.NewHeatMap(costGrid{r}, palette.Heat(32, 1))
	h.Min = fusion.CostMin
	h.Max = fusion.CostMax
	p.Add(h)

	if err := p.Save(6*vg.Inch, 6*vg.Inch, outPath); err != nil {
		return fmt.Errorf("render heatmap: %w", err)
	}
	return nil
}

// SnapshotPublisher renders every published output into a directory,
// overwriting one PNG per output name. Useful during bring-up to watch
// the fused maps evolve without a planner attached.
type SnapshotPublisher struct {
	Dir string
}

// Publish renders the raster as <dir>/<name>.png.
func (s SnapshotPublisher) Publish(name string, r *fusion.Raster) error {
	return RenderHeatmap(r, name, filepath.Join(s.Dir, name+".png"))
}
