// Package frame provides a small columnar table used to move panel data
// between loaders, the adjustment pipeline and the sequence framer.
package frame

import (
	"fmt"
	"time"
)

// Kind identifies the element type stored in a Column.
type Kind int

const (
	KindFloat Kind = iota
	KindTime
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is a named, typed vector. Exactly one of Floats, Times or Strings
// is populated according to Kind.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Times   []time.Time
	Strings []string
}

// FloatColumn creates a float column holding a copy of values.
func FloatColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: KindFloat, Floats: append([]float64(nil), values...)}
}

// TimeColumn creates a time column holding a copy of values.
func TimeColumn(name string, values []time.Time) Column {
	return Column{Name: name, Kind: KindTime, Times: append([]time.Time(nil), values...)}
}

// StringColumn creates a string column holding a copy of values.
func StringColumn(name string, values []string) Column {
	return Column{Name: name, Kind: KindString, Strings: append([]string(nil), values...)}
}

// Len returns the number of elements in the column.
func (c Column) Len() int {
	switch c.Kind {
	case KindFloat:
		return len(c.Floats)
	case KindTime:
		return len(c.Times)
	default:
		return len(c.Strings)
	}
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case KindFloat:
		out.Floats = append(make([]float64, 0, len(c.Floats)), c.Floats...)
	case KindTime:
		out.Times = append(make([]time.Time, 0, len(c.Times)), c.Times...)
	default:
		out.Strings = append(make([]string, 0, len(c.Strings)), c.Strings...)
	}
	return out
}

// take returns a new column with the given rows, in the given order.
func (c Column) take(rows []int) Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case KindFloat:
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
	case KindTime:
		out.Times = make([]time.Time, len(rows))
		for i, r := range rows {
			out.Times[i] = c.Times[r]
		}
	default:
		out.Strings = make([]string, len(rows))
		for i, r := range rows {
			out.Strings[i] = c.Strings[r]
		}
	}
	return out
}
