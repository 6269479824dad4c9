package sandbox

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/isdmx/cellbox/figure"
)

// NewPlotModule returns the plt module. Its builtins draw into the figure
// list of the calling execution, found through the thread.
func NewPlotModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "plt",
		Members: starlark.StringDict{
			"figure":  starlark.NewBuiltin("figure", pltFigure),
			"plot":    starlark.NewBuiltin("plot", pltPlot),
			"scatter": starlark.NewBuiltin("scatter", pltScatter),
			"bar":     starlark.NewBuiltin("bar", pltBar),
			"hist":    starlark.NewBuiltin("hist", pltHist),
			"title":   starlark.NewBuiltin("title", pltText(func(f *figure.Figure, s string) { f.Title = s })),
			"xlabel":  starlark.NewBuiltin("xlabel", pltText(func(f *figure.Figure, s string) { f.XLabel = s })),
			"ylabel":  starlark.NewBuiltin("ylabel", pltText(func(f *figure.Figure, s string) { f.YLabel = s })),
			"grid":    starlark.NewBuiltin("grid", pltGrid),
			"legend":  starlark.NewBuiltin("legend", pltLegend),
			"show":    starlark.NewBuiltin("show", pltShow),
			"close":   starlark.NewBuiltin("close", pltClose),
		},
	}
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func figures(thread *starlark.Thread) (*figure.List, error) {
	list, ok := thread.Local(figuresKey).(*figure.List)
	if !ok || list == nil {
		return nil, errors.New("plt is only available while a cell executes")
	}
	return list, nil
}

func pltFigure(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var title string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "title?", &title); err != nil {
		return nil, err
	}
	list, err := figures(thread)
	if err != nil {
		return nil, err
	}
	list.New().Title = title
	return starlark.None, nil
}

// pltPlot accepts plot(y) or plot(x, y)
func pltPlot(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return addXY(thread, b, args, kwargs, figure.KindLine, true)
}

func pltScatter(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return addXY(thread, b, args, kwargs, figure.KindScatter, false)
}

func addXY(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, kind figure.Kind, optionalX bool) (starlark.Value, error) {
	var (
		first, second starlark.Value
		label         string
	)
	secondName := "y"
	if optionalX {
		secondName = "y?"
	}
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &first, secondName, &second, "label?", &label); err != nil {
		return nil, err
	}

	series := figure.Series{Kind: kind, Label: label}
	if second == nil {
		y, err := floats(b.Name(), first)
		if err != nil {
			return nil, err
		}
		series.Y = y
	} else {
		x, err := floats(b.Name(), first)
		if err != nil {
			return nil, err
		}
		y, err := floats(b.Name(), second)
		if err != nil {
			return nil, err
		}
		if len(x) != len(y) {
			return nil, fmt.Errorf("%s: x and y must have the same length, got %d and %d", b.Name(), len(x), len(y))
		}
		series.X, series.Y = x, y
	}

	list, err := figures(thread)
	if err != nil {
		return nil, err
	}
	list.Current().Add(series)
	return starlark.None, nil
}

func pltBar(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		heights starlark.Value
		label   string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "height", &heights, "label?", &label); err != nil {
		return nil, err
	}
	y, err := floats(b.Name(), heights)
	if err != nil {
		return nil, err
	}
	list, err := figures(thread)
	if err != nil {
		return nil, err
	}
	list.Current().Add(figure.Series{Kind: figure.KindBar, Label: label, Y: y})
	return starlark.None, nil
}

func pltHist(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		values starlark.Value
		bins   = figure.DefaultBins
		label  string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &values, "bins?", &bins, "label?", &label); err != nil {
		return nil, err
	}
	if bins <= 0 {
		return nil, fmt.Errorf("%s: bins must be positive, got %d", b.Name(), bins)
	}
	y, err := floats(b.Name(), values)
	if err != nil {
		return nil, err
	}
	list, err := figures(thread)
	if err != nil {
		return nil, err
	}
	list.Current().Add(figure.Series{Kind: figure.KindHist, Label: label, Y: y, Bins: bins})
	return starlark.None, nil
}

func pltText(set func(*figure.Figure, string)) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
			return nil, err
		}
		list, err := figures(thread)
		if err != nil {
			return nil, err
		}
		set(list.Current(), text)
		return starlark.None, nil
	}
}

func pltGrid(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	visible := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "visible?", &visible); err != nil {
		return nil, err
	}
	list, err := figures(thread)
	if err != nil {
		return nil, err
	}
	list.Current().Grid = visible
	return starlark.None, nil
}

func pltLegend(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	list, err := figures(thread)
	if err != nil {
		return nil, err
	}
	list.Current().Legend = true
	return starlark.None, nil
}

// pltShow is a no-op: open figures are rendered when the execution ends
func pltShow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// pltClose closes the current figure, or every figure with close("all")
func pltClose(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var which string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fig?", &which); err != nil {
		return nil, err
	}
	list, err := figures(thread)
	if err != nil {
		return nil, err
	}
	switch which {
	case "":
		list.CloseCurrent()
	case "all":
		list.Close()
	default:
		return nil, fmt.Errorf("%s: unsupported argument %q", b.Name(), which)
	}
	return starlark.None, nil
}

func floats(fn string, v starlark.Value) ([]float64, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want iterable of numbers", fn, v.Type())
	}

	var out []float64
	iter := iterable.Iterate()
	defer iter.Done()

	var x starlark.Value
	for iter.Next(&x) {
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: got %s in data, want number", fn, x.Type())
		}
		out = append(out, f)
	}
	return out, nil
}
