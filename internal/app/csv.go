package app

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"jpx-stock-lab/internal/frame"
)

// IndexColumn heads the date index when a frame carries one.
const IndexColumn = "index"

// WriteFrameCSV writes f with a header row. Floats use the shortest exact
// form, NaN becomes an empty cell and times are written as dates.
func WriteFrameCSV(w io.Writer, f *frame.Frame) error {
	names := f.Names()
	cols := make([]frame.Column, len(names))
	for i, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return err
		}
		cols[i] = c
	}
	var index []time.Time
	header := names
	if f.Indexed() {
		index = f.Index()
		header = append([]string{IndexColumn}, names...)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i := 0; i < f.Len(); i++ {
		row = row[:0]
		if index != nil {
			row = append(row, index[i].Format(time.DateOnly))
		}
		for _, c := range cols {
			row = append(row, cell(c, i))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(c frame.Column, i int) string {
	switch c.Kind {
	case frame.KindFloat:
		if math.IsNaN(c.Floats[i]) {
			return ""
		}
		return strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
	case frame.KindTime:
		return c.Times[i].Format(time.DateOnly)
	default:
		return c.Strings[i]
	}
}
