// Package figure holds the figures a single cell execution draws and renders
// the most recent one to a PNG data URI.
//
// A List is owned by exactly one execution: it is created empty when the
// execution starts and closed when the execution ends, so figures never leak
// from one cell into the next.
package figure

// Kind identifies how a series is drawn
type Kind int

// Series kinds
const (
	KindLine Kind = iota
	KindScatter
	KindBar
	KindHist
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindScatter:
		return "scatter"
	case KindBar:
		return "bar"
	case KindHist:
		return "hist"
	default:
		return "unknown"
	}
}

// Series is one data set added to a figure
type Series struct {
	Kind  Kind
	Label string
	X     []float64
	Y     []float64
	// Bins is only used by KindHist.
	Bins int
}

// Figure is an open drawing surface with its accumulated series
type Figure struct {
	Title  string
	XLabel string
	YLabel string
	Grid   bool
	Legend bool
	Series []Series
}

// Add appends a series to the figure
func (f *Figure) Add(s Series) {
	f.Series = append(f.Series, s)
}

// List is the set of open figures of one execution.
// It is not safe for concurrent use.
type List struct {
	figures []*Figure
}

// NewList returns an empty figure list
func NewList() *List {
	return &List{}
}

// New opens a new figure and makes it current
func (l *List) New() *Figure {
	f := &Figure{}
	l.figures = append(l.figures, f)
	return f
}

// Current returns the most recent figure, opening one if none is open
func (l *List) Current() *Figure {
	if len(l.figures) == 0 {
		return l.New()
	}
	return l.figures[len(l.figures)-1]
}

// Last returns the most recent figure or nil
func (l *List) Last() *Figure {
	if len(l.figures) == 0 {
		return nil
	}
	return l.figures[len(l.figures)-1]
}

// Len reports the number of open figures
func (l *List) Len() int {
	return len(l.figures)
}

// CloseCurrent closes the most recent figure
func (l *List) CloseCurrent() {
	if len(l.figures) > 0 {
		l.figures = l.figures[:len(l.figures)-1]
	}
}

// Close closes all open figures
func (l *List) Close() {
	l.figures = nil
}
