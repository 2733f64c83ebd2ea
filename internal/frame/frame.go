package frame

import (
	"fmt"
	"sort"
	"time"
)

// Frame is an immutable-by-convention columnar table with an optional
// date index. Accessors return copies; the only mutating method is SetFloat,
// which callers use on frames they own (for example the result of Clone).
type Frame struct {
	columns []Column
	lookup  map[string]int
	index   []time.Time
	indexed bool
}

// New creates a frame from the given columns. Columns are copied.
func New(cols ...Column) (*Frame, error) {
	owned := make([]Column, len(cols))
	for i, c := range cols {
		owned[i] = c.Clone()
	}
	return newOwned(owned)
}

// newOwned builds a frame that takes ownership of cols.
func newOwned(cols []Column) (*Frame, error) {
	f := &Frame{
		columns: cols,
		lookup:  make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if _, exists := f.lookup[c.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		if i > 0 && c.Len() != cols[0].Len() {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d",
				ErrLengthMismatch, c.Name, c.Len(), cols[0].Len())
		}
		f.lookup[c.Name] = i
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if len(f.columns) == 0 {
		return len(f.index)
	}
	return f.columns[0].Len()
}

// Names returns column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the named column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.lookup[name]
	return ok
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) (Column, error) {
	i, ok := f.lookup[name]
	if !ok {
		return Column{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return f.columns[i].Clone(), nil
}

// Float returns a copy of the named float column.
func (f *Frame) Float(name string) ([]float64, error) {
	c, err := f.kindColumn(name, KindFloat)
	if err != nil {
		return nil, err
	}
	return append(make([]float64, 0, len(c.Floats)), c.Floats...), nil
}

// Times returns a copy of the named time column.
func (f *Frame) Times(name string) ([]time.Time, error) {
	c, err := f.kindColumn(name, KindTime)
	if err != nil {
		return nil, err
	}
	return append(make([]time.Time, 0, len(c.Times)), c.Times...), nil
}

// Strings returns a copy of the named string column.
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.kindColumn(name, KindString)
	if err != nil {
		return nil, err
	}
	return append(make([]string, 0, len(c.Strings)), c.Strings...), nil
}

func (f *Frame) kindColumn(name string, kind Kind) (*Column, error) {
	i, ok := f.lookup[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	c := &f.columns[i]
	if c.Kind != kind {
		return nil, fmt.Errorf("%w: %q is %s, want %s", ErrKindMismatch, name, c.Kind, kind)
	}
	return c, nil
}

// Indexed reports whether the frame carries a date index.
func (f *Frame) Indexed() bool {
	return f.indexed
}

// Index returns a copy of the date index, or nil for unindexed frames.
func (f *Frame) Index() []time.Time {
	if !f.indexed {
		return nil
	}
	return append(make([]time.Time, 0, len(f.index)), f.index...)
}

// WithIndex returns a copy of the frame indexed by idx.
func (f *Frame) WithIndex(idx []time.Time) (*Frame, error) {
	if len(f.columns) > 0 && len(idx) != f.Len() {
		return nil, fmt.Errorf("%w: index has %d entries, frame has %d rows",
			ErrLengthMismatch, len(idx), f.Len())
	}
	out := f.Clone()
	out.index = append(make([]time.Time, 0, len(idx)), idx...)
	out.indexed = true
	return out, nil
}

// Drop returns a copy without the named columns. Every name must exist.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		if !f.Has(n) {
			return nil, fmt.Errorf("drop: %w: %q", ErrColumnNotFound, n)
		}
		drop[n] = struct{}{}
	}

	cols := make([]Column, 0, len(f.columns))
	for _, c := range f.columns {
		if _, skip := drop[c.Name]; !skip {
			cols = append(cols, c.Clone())
		}
	}
	out, err := newOwned(cols)
	if err != nil {
		return nil, err
	}
	out.copyIndexFrom(f, nil)
	return out, nil
}

// Select returns a copy holding only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		cols = append(cols, c)
	}
	out, err := newOwned(cols)
	if err != nil {
		return nil, err
	}
	out.copyIndexFrom(f, nil)
	return out, nil
}

// Take returns a new frame with the given rows, in the given order.
// Row positions must be within [0, Len()).
func (f *Frame) Take(rows []int) *Frame {
	cols := make([]Column, len(f.columns))
	for i, c := range f.columns {
		cols[i] = c.take(rows)
	}
	out := &Frame{columns: cols, lookup: make(map[string]int, len(cols))}
	for i, c := range cols {
		out.lookup[c.Name] = i
	}
	out.copyIndexFrom(f, rows)
	return out
}

// Filter returns the rows for which keep returns true, preserving order.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	rows := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return f.Take(rows)
}

// SortByIndex returns a copy ordered by the date index. The sort is stable.
func (f *Frame) SortByIndex(descending bool) (*Frame, error) {
	if !f.indexed {
		return nil, ErrNoIndex
	}
	return f.Take(order(f.index, descending)), nil
}

// SortByTime returns a copy ordered by the named time column. The sort is stable.
func (f *Frame) SortByTime(name string, descending bool) (*Frame, error) {
	c, err := f.kindColumn(name, KindTime)
	if err != nil {
		return nil, err
	}
	return f.Take(order(c.Times, descending)), nil
}

// SetFloat replaces the named column with values, or appends it when absent.
// The frame is modified in place.
func (f *Frame) SetFloat(name string, values []float64) error {
	if len(f.columns) > 0 && len(values) != f.Len() {
		return fmt.Errorf("%w: %q has %d values, frame has %d rows",
			ErrLengthMismatch, name, len(values), f.Len())
	}
	col := FloatColumn(name, values)
	if i, ok := f.lookup[name]; ok {
		f.columns[i] = col
		return nil
	}
	f.lookup[name] = len(f.columns)
	f.columns = append(f.columns, col)
	return nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	cols := make([]Column, len(f.columns))
	lookup := make(map[string]int, len(f.columns))
	for i, c := range f.columns {
		cols[i] = c.Clone()
		lookup[c.Name] = i
	}
	out := &Frame{columns: cols, lookup: lookup}
	out.copyIndexFrom(f, nil)
	return out
}

// copyIndexFrom copies src's index, restricted to rows when rows is non-nil.
func (f *Frame) copyIndexFrom(src *Frame, rows []int) {
	if !src.indexed {
		return
	}
	f.indexed = true
	if rows == nil {
		f.index = append(make([]time.Time, 0, len(src.index)), src.index...)
		return
	}
	f.index = make([]time.Time, len(rows))
	for i, r := range rows {
		f.index[i] = src.index[r]
	}
}

// order returns the stable permutation that sorts ts.
func order(ts []time.Time, descending bool) []int {
	perm := make([]int, len(ts))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		if descending {
			return ts[perm[a]].After(ts[perm[b]])
		}
		return ts[perm[a]].Before(ts[perm[b]])
	})
	return perm
}
