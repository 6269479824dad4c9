package figure

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DataURIPrefix is prepended to every encoded image
const DataURIPrefix = "data:image/png;base64,"

// Default render settings
const (
	DefaultWidthIn  = 6.4
	DefaultHeightIn = 4.8
	DefaultPadIn    = 0.2
	DefaultBins     = 10
)

// Renderer draws figures to PNG
type Renderer struct {
	Width   vg.Length
	Height  vg.Length
	Padding vg.Length
}

// NewRenderer creates a renderer for the given size in inches
func NewRenderer(widthIn, heightIn float64) *Renderer {
	if widthIn <= 0 {
		widthIn = DefaultWidthIn
	}
	if heightIn <= 0 {
		heightIn = DefaultHeightIn
	}
	return &Renderer{
		Width:   vg.Length(widthIn) * vg.Inch,
		Height:  vg.Length(heightIn) * vg.Inch,
		Padding: DefaultPadIn * vg.Inch,
	}
}

// PNG renders the figure to PNG bytes
func (r *Renderer) PNG(f *Figure) ([]byte, error) {
	if f == nil {
		return nil, errors.New("no figure to render")
	}

	p, err := build(f)
	if err != nil {
		return nil, err
	}

	img := vgimg.New(r.Width, r.Height)
	dc := draw.New(img)
	p.Draw(draw.Crop(dc, r.Padding, -r.Padding, r.Padding, -r.Padding))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI renders the figure and encodes it as a base64 data URI
func (r *Renderer) DataURI(f *Figure) (string, error) {
	data, err := r.PNG(f)
	if err != nil {
		return "", err
	}
	return DataURIPrefix + base64.StdEncoding.EncodeToString(data), nil
}

func build(f *Figure) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel

	if f.Grid {
		p.Add(plotter.NewGrid())
	}

	for i, s := range f.Series {
		c := plotutil.Color(i)
		if err := addSeries(p, s, c, f.Legend); err != nil {
			return nil, fmt.Errorf("series %d (%s): %w", i, s.Kind, err)
		}
	}

	if len(f.Series) == 0 {
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
	}

	return p, nil
}

func addSeries(p *plot.Plot, s Series, c color.Color, legend bool) error {
	switch s.Kind {
	case KindLine:
		line, err := plotter.NewLine(points(s))
		if err != nil {
			return err
		}
		line.LineStyle.Color = c
		p.Add(line)
		if legend && s.Label != "" {
			p.Legend.Add(s.Label, line)
		}
	case KindScatter:
		sc, err := plotter.NewScatter(points(s))
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = c
		p.Add(sc)
		if legend && s.Label != "" {
			p.Legend.Add(s.Label, sc)
		}
	case KindBar:
		bars, err := plotter.NewBarChart(plotter.Values(s.Y), vg.Points(20))
		if err != nil {
			return err
		}
		bars.Color = c
		p.Add(bars)
		if legend && s.Label != "" {
			p.Legend.Add(s.Label, bars)
		}
	case KindHist:
		bins := s.Bins
		if bins <= 0 {
			bins = DefaultBins
		}
		h, err := plotter.NewHist(plotter.Values(s.Y), bins)
		if err != nil {
			return err
		}
		h.FillColor = c
		p.Add(h)
		if legend && s.Label != "" {
			p.Legend.Add(s.Label, h)
		}
	default:
		return fmt.Errorf("unsupported series kind %d", s.Kind)
	}
	return nil
}

func points(s Series) plotter.XYs {
	xys := make(plotter.XYs, len(s.Y))
	for i, y := range s.Y {
		x := float64(i)
		if i < len(s.X) {
			x = s.X[i]
		}
		xys[i] = plotter.XY{X: x, Y: y}
	}
	return xys
}
