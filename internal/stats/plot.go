package stats

import (
	"bufio"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"sticksolo/internal/ceo"
	"sticksolo/internal/world"
)

const plotDPI = 150

// SaveRewardCurve plots mean, best and elite-mean reward per generation.
func SaveRewardCurve(path string, history []ceo.GenerationDiagnostics) error {
	if len(history) == 0 {
		return fmt.Errorf("reward curve needs at least one generation")
	}
	p := plot.New()
	p.Title.Text = "Reward by generation"
	p.X.Label.Text = "generation"
	p.Y.Label.Text = "reward"
	stylePlot(p)

	series := []struct {
		name  string
		value func(ceo.GenerationDiagnostics) float64
		color color.RGBA
	}{
		{"mean", func(d ceo.GenerationDiagnostics) float64 { return d.MeanReward }, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"best", func(d ceo.GenerationDiagnostics) float64 { return d.BestReward }, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
		{"elite mean", func(d ceo.GenerationDiagnostics) float64 { return d.EliteMeanReward }, color.RGBA{R: 214, G: 39, B: 40, A: 255}},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(history))
		for i, d := range history {
			pts[i].X = float64(d.Generation)
			pts[i].Y = s.value(d)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true

	return savePlotPNG(p, 8.0, 5.0, path)
}

// SaveGoalMap draws the free-limb goal grid and the holding goal the policy
// chose for each point.
func SaveGoalMap(path string, points []world.GoalMapPoint) error {
	if len(points) == 0 {
		return fmt.Errorf("goal map needs at least one point")
	}
	p := plot.New()
	p.Title.Text = "Holding goal by free-limb goal"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	stylePlot(p)

	goals := make(plotter.XYs, len(points))
	holding := make(plotter.XYs, len(points))
	for i, pt := range points {
		goals[i].X, goals[i].Y = pt.Goal.X, pt.Goal.Y
		holding[i].X, holding[i].Y = pt.HoldingGoal.X, pt.HoldingGoal.Y
	}

	goalScatter, err := plotter.NewScatter(goals)
	if err != nil {
		return err
	}
	goalScatter.GlyphStyle.Radius = vg.Points(1)
	goalScatter.GlyphStyle.Color = color.Gray{Y: 180}

	holdingScatter, err := plotter.NewScatter(holding)
	if err != nil {
		return err
	}
	holdingScatter.GlyphStyle.Radius = vg.Points(1.5)
	holdingScatter.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}

	p.Add(goalScatter, holdingScatter)
	p.Legend.Add("free-limb goal", goalScatter)
	p.Legend.Add("holding goal", holdingScatter)

	return savePlotPNG(p, 7.0, 7.0, path)
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Title.Padding = vg.Points(8)
	p.X.Label.TextStyle.Font.Size = vg.Points(13)
	p.Y.Label.TextStyle.Font.Size = vg.Points(13)
	p.X.Tick.Label.Font.Size = vg.Points(11)
	p.Y.Tick.Label.Font.Size = vg.Points(11)
	p.Add(plotter.NewGrid())
}

func savePlotPNG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}

	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(plotDPI),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}
