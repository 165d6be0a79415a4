package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"

	"github.com/banshee-data/citysense/internal/db"
	"github.com/banshee-data/citysense/internal/fusion"
	"github.com/banshee-data/citysense/internal/security"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var errNoShocks = errors.New("event log holds no shocks to plot")

// plotCommand renders the stored shock history of the log at dbPath to a PNG.
func plotCommand(args []string, dbPath string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	out := fs.String("out", "shocks.png", "Output image (.png, .svg or .pdf)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := security.ValidatePlotPath(*out, ".png", ".svg", ".pdf"); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := db.NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	st, err := store.Stats()
	if err != nil {
		return err
	}
	if err := renderShockPlot(st, cfg.GetThresholds(), *out); err != nil {
		return err
	}
	log.Printf("wrote %d shocks to %s", len(st.Magnitudes), *out)
	return nil
}

// renderShockPlot draws each shock against uptime with the minor and major
// thresholds as horizontal guides. The format follows the file extension.
func renderShockPlot(st db.Stats, th fusion.Thresholds, out string) error {
	if len(st.Magnitudes) == 0 {
		return errNoShocks
	}

	pts := make(plotter.XYs, len(st.Magnitudes))
	maxX := 1.0
	for i, m := range st.Magnitudes {
		x := st.Uptimes[i] / 1000
		pts[i] = plotter.XY{X: x, Y: m}
		if x > maxX {
			maxX = x
		}
	}

	p := plot.New()
	p.Title.Text = "Road shocks"
	p.X.Label.Text = "Uptime (s)"
	p.Y.Label.Text = "Shock"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	p.Add(scatter)
	p.Legend.Add("shock", scatter)

	guides := []struct {
		name  string
		level int
		color color.Color
	}{
		{"minor", th.Minor, color.RGBA{R: 230, G: 160, A: 255}},
		{"major", th.Major, color.RGBA{R: 200, A: 255}},
	}
	for _, g := range guides {
		line, err := plotter.NewLine(plotter.XYs{{X: 0, Y: float64(g.level)}, {X: maxX, Y: float64(g.level)}})
		if err != nil {
			return fmt.Errorf("failed to build %s guide: %w", g.name, err)
		}
		line.Color = g.color
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s (%d)", g.name, g.level), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 5*vg.Inch, out); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
