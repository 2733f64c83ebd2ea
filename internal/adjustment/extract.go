package adjustment

import (
	"fmt"
	"sort"
	"time"

	"jpx-stock-lab/internal/frame"
)

// SecurityData returns the records of one security sorted by date, without
// the code and date columns, indexed by the panel's canonical date index.
// An unknown code yields an empty frame and no error; callers check Len.
func SecurityData(panel *frame.Frame, code string, opts Options) (*frame.Frame, error) {
	opts = opts.withDefaults()

	dateIndex, err := DateIndex(panel, opts.DateColumn)
	if err != nil {
		return nil, err
	}
	codes, err := codeValues(panel, opts.CodeColumn)
	if err != nil {
		return nil, err
	}
	dates, err := dateValues(panel, opts.DateColumn)
	if err != nil {
		return nil, err
	}

	var rows []int
	for i, c := range codes {
		if c == code {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return dates[rows[a]].Before(dates[rows[b]])
	})
	recordDates := make([]time.Time, len(rows))
	for i, r := range rows {
		recordDates[i] = dates[r]
	}

	records, err := panel.Take(rows).Drop(opts.CodeColumn, opts.DateColumn)
	if err != nil {
		return nil, err
	}
	if records.Len() == 0 {
		return records.WithIndex(nil)
	}

	switch opts.Alignment {
	case AlignPositional:
		if records.Len() != len(dateIndex) {
			return nil, fmt.Errorf("%w: security %s has %d records, panel has %d dates",
				ErrMisaligned, code, records.Len(), len(dateIndex))
		}
		return records.WithIndex(dateIndex)
	case AlignByDate:
		return alignByDate(records, recordDates, dateIndex, code, opts)
	default:
		return nil, fmt.Errorf("%w: alignment %q", ErrInvalidOption, string(opts.Alignment))
	}
}

// alignByDate places records on dateIndex by date value. records and
// recordDates are in ascending date order.
func alignByDate(records *frame.Frame, recordDates, dateIndex []time.Time, code string, opts Options) (*frame.Frame, error) {
	byDate := make(map[int64]int, len(recordDates))
	for i, d := range recordDates {
		key := d.UnixNano()
		if _, dup := byDate[key]; dup {
			return nil, fmt.Errorf("%w: security %s on %s", ErrDuplicateDate, code, d.Format("2006-01-02"))
		}
		byDate[key] = i
	}

	rows := make([]int, 0, len(dateIndex))
	index := make([]time.Time, 0, len(dateIndex))
	var filled []int
	last := -1

	for _, d := range dateIndex {
		if r, ok := byDate[d.UnixNano()]; ok {
			rows = append(rows, r)
			index = append(index, d)
			last = r
			continue
		}

		switch opts.Missing {
		case MissingError:
			return nil, fmt.Errorf("%w: security %s on %s", ErrMissingDate, code, d.Format("2006-01-02"))
		case MissingDrop:
		case MissingForwardFill:
			if last < 0 {
				continue
			}
			filled = append(filled, len(rows))
			rows = append(rows, last)
			index = append(index, d)
		default:
			return nil, fmt.Errorf("%w: missing policy %q", ErrInvalidOption, string(opts.Missing))
		}
	}

	aligned, err := records.Take(rows).WithIndex(index)
	if err != nil {
		return nil, err
	}
	if len(filled) == 0 {
		return aligned, nil
	}

	// A carried-forward day had no trading and no corporate action.
	if err := overwrite(aligned, opts.VolumeColumn, filled, 0); err != nil {
		return nil, err
	}
	if err := overwrite(aligned, opts.AdjustmentFactorColumn, filled, 1); err != nil {
		return nil, err
	}
	return aligned, nil
}

// overwrite sets column[rows] = value when the column exists.
func overwrite(f *frame.Frame, column string, rows []int, value float64) error {
	if !f.Has(column) {
		return nil
	}
	values, err := f.Float(column)
	if err != nil {
		return err
	}
	for _, r := range rows {
		values[r] = value
	}
	return f.SetFloat(column, values)
}
