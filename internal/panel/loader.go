package panel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"jpx-stock-lab/internal/adjustment"
	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/idhash"
)

// ErrBadRecord is returned for a header or row that cannot be parsed.
var ErrBadRecord = errors.New("bad panel record")

// rowParser maps header positions to StockPrice fields.
type rowParser struct {
	pos  map[string]int
	opts adjustment.Options
}

func newRowParser(header []string, opts adjustment.Options) (*rowParser, error) {
	opts = withDefaults(opts)
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	required := []string{opts.DateColumn, opts.CodeColumn, "Open", "High", "Low", "Close", opts.VolumeColumn}
	for _, name := range required {
		if _, ok := pos[name]; !ok {
			return nil, fmt.Errorf("%w: header lacks column %q", ErrBadRecord, name)
		}
	}
	return &rowParser{pos: pos, opts: opts}, nil
}

func (p *rowParser) cell(row []string, name string) (string, bool) {
	i, ok := p.pos[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

// float parses a numeric cell; empty or absent cells yield NaN.
func (p *rowParser) float(row []string, name string) (float64, error) {
	s, ok := p.cell(row, name)
	if !ok || s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: column %s value %q", ErrBadRecord, name, s)
	}
	return v, nil
}

func (p *rowParser) optional(row []string, name string) (*float64, error) {
	v, err := p.float(row, name)
	if err != nil || math.IsNaN(v) {
		return nil, err
	}
	return &v, nil
}

func (p *rowParser) parse(row []string) (*domain.StockPrice, error) {
	dateCell, _ := p.cell(row, p.opts.DateColumn)
	date, err := adjustment.ParseDate(dateCell)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	code, _ := p.cell(row, p.opts.CodeColumn)
	if code == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrBadRecord, p.opts.CodeColumn)
	}
	// Spreadsheets may render integer codes as "1301.0".
	code = strings.TrimSuffix(code, ".0")

	rec := &domain.StockPrice{Date: date.UTC(), SecuritiesCode: code, AdjustmentFactor: 1}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"Open", &rec.Open},
		{"High", &rec.High},
		{"Low", &rec.Low},
		{"Close", &rec.Close},
		{p.opts.VolumeColumn, &rec.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = p.float(row, f.name); err != nil {
			return nil, err
		}
	}
	if factor, err := p.float(row, p.opts.AdjustmentFactorColumn); err != nil {
		return nil, err
	} else if !math.IsNaN(factor) {
		rec.AdjustmentFactor = factor
	}
	if rec.ExpectedDividend, err = p.optional(row, ExpectedDividendColumn); err != nil {
		return nil, err
	}
	if rec.Target, err = p.optional(row, TargetColumn); err != nil {
		return nil, err
	}
	if flag, ok := p.cell(row, SupervisionFlagColumn); ok && flag != "" {
		if rec.SupervisionFlag, err = strconv.ParseBool(flag); err != nil {
			return nil, fmt.Errorf("%w: %s value %q", ErrBadRecord, SupervisionFlagColumn, flag)
		}
	}
	if rowID, ok := p.cell(row, RowIDColumn); ok && rowID != "" {
		rec.RowID = rowID
	} else {
		rec.RowID = idhash.RowID(rec.Date, rec.SecuritiesCode)
	}
	return rec, nil
}

// LoadCSV reads a stock price CSV with a header row.
// Empty numeric cells become NaN except AdjustmentFactor, which defaults to 1.
func LoadCSV(r io.Reader, opts adjustment.Options) ([]*domain.StockPrice, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	parser, err := newRowParser(header, opts)
	if err != nil {
		return nil, err
	}

	var records []*domain.StockPrice
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		rec, err := parser.parse(row)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadXLSX reads a stock price sheet. An empty sheet name selects the first sheet.
func LoadXLSX(path, sheet string, opts adjustment.Options) ([]*domain.StockPrice, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrBadRecord)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %s is empty", ErrBadRecord, sheet)
	}

	parser, err := newRowParser(rows[0], opts)
	if err != nil {
		return nil, err
	}

	records := make([]*domain.StockPrice, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		rec, err := parser.parse(row)
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", sheet, i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
