package adjustment

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpx-stock-lab/internal/frame"
)

func d(day int) time.Time {
	return time.Date(2021, 12, day, 0, 0, 0, 0, time.UTC)
}

type rawRow struct {
	code   string
	date   time.Time
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
	factor float64
}

func buildPanel(t *testing.T, rows []rawRow) *frame.Frame {
	t.Helper()
	n := len(rows)
	codes := make([]string, n)
	dates := make([]time.Time, n)
	open, high, low, closes, volume, factor := make([]float64, n), make([]float64, n), make([]float64, n),
		make([]float64, n), make([]float64, n), make([]float64, n)
	for i, r := range rows {
		codes[i] = r.code
		dates[i] = r.date
		open[i], high[i], low[i], closes[i] = r.open, r.high, r.low, r.close
		volume[i], factor[i] = r.volume, r.factor
	}
	panel, err := frame.New(
		frame.StringColumn(DefaultCodeColumn, codes),
		frame.TimeColumn(DefaultDateColumn, dates),
		frame.FloatColumn("Open", open),
		frame.FloatColumn("High", high),
		frame.FloatColumn("Low", low),
		frame.FloatColumn("Close", closes),
		frame.FloatColumn(DefaultVolumeColumn, volume),
		frame.FloatColumn(DefaultAdjustmentFactorColumn, factor),
	)
	require.NoError(t, err)
	return panel
}

// twoSecurityPanel holds a 2:1 split for 1301 on the second day; rows are
// deliberately out of date order.
func twoSecurityPanel(t *testing.T) *frame.Frame {
	return buildPanel(t, []rawRow{
		{"1301", d(3), 50, 52, 49, 51, 2000, 1},
		{"1332", d(1), 10, 11, 9, 10, 500, 1},
		{"1301", d(1), 100, 104, 98, 102, 1000, 1},
		{"1332", d(3), 12, 13, 11, 12, 700, 1},
		{"1301", d(2), 101, 103, 99, 100, 1100, 0.5},
		{"1332", d(2), 11, 12, 10, 11, 600, 1},
	})
}

func TestDateIndex_SortedDistinct(t *testing.T) {
	panel := twoSecurityPanel(t)

	idx, err := DateIndex(panel, DefaultDateColumn)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{d(1), d(2), d(3)}, idx)
	assert.LessOrEqual(t, len(idx), panel.Len())
}

func TestDateIndex_StringDates(t *testing.T) {
	panel, err := frame.New(frame.StringColumn("Date", []string{"2021-12-03", "2021-12-01", "2021-12-03"}))
	require.NoError(t, err)

	idx, err := DateIndex(panel, "Date")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d(1), d(3)}, idx)
}

func TestDateIndex_MissingColumn(t *testing.T) {
	panel := twoSecurityPanel(t)

	_, err := DateIndex(panel, "TradeDate")
	assert.ErrorIs(t, err, frame.ErrColumnNotFound)
}

func TestDateIndex_BadDateString(t *testing.T) {
	panel, err := frame.New(frame.StringColumn("Date", []string{"not-a-date"}))
	require.NoError(t, err)

	_, err = DateIndex(panel, "Date")
	assert.ErrorIs(t, err, ErrUnparsableDate)
}

func TestFactorSeries_InvalidMode(t *testing.T) {
	data, err := SecurityData(twoSecurityPanel(t), "1301", Options{})
	require.NoError(t, err)

	_, err = FactorSeries(data, DefaultAdjustmentFactorColumn, Mode("foo"))
	require.ErrorIs(t, err, ErrInvalidMode)
	assert.Contains(t, err.Error(), "foo")
}

func TestFactorSeries_InvalidModeCheckedFirst(t *testing.T) {
	// Unindexed frame with no factor column: mode error must win.
	empty, err := frame.New()
	require.NoError(t, err)

	_, err = FactorSeries(empty, "missing", Mode("bar"))
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestFactorSeries_CumulativeFromNewest(t *testing.T) {
	data, err := SecurityData(twoSecurityPanel(t), "1301", Options{})
	require.NoError(t, err)

	price, err := FactorSeries(data, DefaultAdjustmentFactorColumn, ModePrice)
	require.NoError(t, err)

	// Newest first: d3=1, d2=0.5, d1=0.5*1
	assert.Equal(t, []float64{0.5, 0.5, 1}, price.Values)
	assert.Equal(t, []time.Time{d(1), d(2), d(3)}, price.Index)
}

func TestFactorSeries_ReciprocalInvariant(t *testing.T) {
	data, err := SecurityData(twoSecurityPanel(t), "1301", Options{})
	require.NoError(t, err)

	price, err := FactorSeries(data, DefaultAdjustmentFactorColumn, ModePrice)
	require.NoError(t, err)
	volume, err := FactorSeries(data, DefaultAdjustmentFactorColumn, ModeVolume)
	require.NoError(t, err)

	require.Equal(t, price.Len(), volume.Len())
	for i := range price.Values {
		assert.InDelta(t, 1.0, price.Values[i]*volume.Values[i], 1e-12)
	}
}

func TestFactorSeries_IdentityFactors(t *testing.T) {
	data, err := SecurityData(twoSecurityPanel(t), "1332", Options{})
	require.NoError(t, err)

	for _, mode := range []Mode{ModePrice, ModeVolume} {
		s, err := FactorSeries(data, DefaultAdjustmentFactorColumn, mode)
		require.NoError(t, err)
		for _, v := range s.Values {
			assert.Equal(t, 1.0, v, "mode %s", mode)
		}
	}
}

func TestFactorSeries_NaNKeepsProduct(t *testing.T) {
	got := cumProd([]float64{2, math.NaN(), 3})

	assert.Equal(t, 2.0, got[0])
	assert.True(t, math.IsNaN(got[1]))
	assert.Equal(t, 6.0, got[2])
}

func TestFactorSeries_DoesNotMutateInput(t *testing.T) {
	data, err := SecurityData(twoSecurityPanel(t), "1301", Options{})
	require.NoError(t, err)
	before, _ := data.Float(DefaultAdjustmentFactorColumn)

	_, err = FactorSeries(data, DefaultAdjustmentFactorColumn, ModeVolume)
	require.NoError(t, err)

	after, _ := data.Float(DefaultAdjustmentFactorColumn)
	assert.Equal(t, before, after)
}

func TestSecurityData_SortedAndReindexed(t *testing.T) {
	data, err := SecurityData(twoSecurityPanel(t), "1301", Options{})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{d(1), d(2), d(3)}, data.Index())
	assert.False(t, data.Has(DefaultCodeColumn))
	assert.False(t, data.Has(DefaultDateColumn))

	closes, err := data.Float("Close")
	require.NoError(t, err)
	assert.Equal(t, []float64{102, 100, 51}, closes)
}

func TestSecurityData_UnknownCodeIsEmpty(t *testing.T) {
	data, err := SecurityData(twoSecurityPanel(t), "9999", Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, data.Len())
	assert.True(t, data.Has("Close"))
}

func TestSecurityData_PositionalMisaligned(t *testing.T) {
	panel := buildPanel(t, []rawRow{
		{"A", d(1), 1, 1, 1, 1, 1, 1},
		{"A", d(2), 1, 1, 1, 1, 1, 1},
		{"B", d(1), 1, 1, 1, 1, 1, 1},
	})

	_, err := SecurityData(panel, "B", Options{})
	assert.ErrorIs(t, err, ErrMisaligned)
}

func TestSecurityData_NumericCodes(t *testing.T) {
	panel, err := frame.New(
		frame.FloatColumn("Code", []float64{1301, 1301}),
		frame.TimeColumn("Date", []time.Time{d(2), d(1)}),
		frame.FloatColumn("Close", []float64{2, 1}),
	)
	require.NoError(t, err)

	data, err := SecurityData(panel, "1301", Options{CodeColumn: "Code"})
	require.NoError(t, err)
	closes, _ := data.Float("Close")
	assert.Equal(t, []float64{1, 2}, closes)
}

func gappedPanel(t *testing.T) *frame.Frame {
	return buildPanel(t, []rawRow{
		{"A", d(1), 10, 10, 10, 10, 100, 1},
		{"A", d(2), 11, 11, 11, 11, 110, 1},
		{"A", d(3), 12, 12, 12, 12, 120, 1},
		{"A", d(4), 13, 13, 13, 13, 130, 1},
		{"B", d(2), 20, 20, 20, 20, 200, 1},
		{"B", d(4), 40, 40, 40, 40, 400, 2},
	})
}

func TestSecurityData_AlignByDateForwardFill(t *testing.T) {
	data, err := SecurityData(gappedPanel(t), "B", Options{Alignment: AlignByDate, Missing: MissingForwardFill})
	require.NoError(t, err)

	// d1 precedes the first record and is dropped; d3 is carried forward.
	assert.Equal(t, []time.Time{d(2), d(3), d(4)}, data.Index())
	closes, _ := data.Float("Close")
	assert.Equal(t, []float64{20, 20, 40}, closes)
	volume, _ := data.Float(DefaultVolumeColumn)
	assert.Equal(t, []float64{200, 0, 400}, volume)
	factor, _ := data.Float(DefaultAdjustmentFactorColumn)
	assert.Equal(t, []float64{1, 1, 2}, factor)
}

func TestSecurityData_AlignByDateDrop(t *testing.T) {
	data, err := SecurityData(gappedPanel(t), "B", Options{Alignment: AlignByDate, Missing: MissingDrop})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{d(2), d(4)}, data.Index())
}

func TestSecurityData_AlignByDateError(t *testing.T) {
	_, err := SecurityData(gappedPanel(t), "B", Options{Alignment: AlignByDate, Missing: MissingError})
	assert.ErrorIs(t, err, ErrMissingDate)
}

func TestSecurityData_AlignByDateDuplicate(t *testing.T) {
	panel := buildPanel(t, []rawRow{
		{"A", d(1), 1, 1, 1, 1, 1, 1},
		{"A", d(1), 2, 2, 2, 2, 2, 1},
	})

	_, err := SecurityData(panel, "A", Options{Alignment: AlignByDate})
	assert.ErrorIs(t, err, ErrDuplicateDate)
}

func TestSecurityData_InvalidAlignment(t *testing.T) {
	_, err := SecurityData(twoSecurityPanel(t), "1301", Options{Alignment: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestAdjustedSecurityData_Values(t *testing.T) {
	data, err := AdjustedSecurityData(twoSecurityPanel(t), "1301", Options{})
	require.NoError(t, err)

	closes, _ := data.Float("Close")
	assert.InDeltaSlice(t, []float64{51, 50, 51}, closes, 1e-12)
	highs, _ := data.Float("High")
	assert.InDeltaSlice(t, []float64{52, 51.5, 52}, highs, 1e-12)
	volume, _ := data.Float(DefaultVolumeColumn)
	assert.InDeltaSlice(t, []float64{2000, 2200, 2000}, volume, 1e-9)

	// The factor column itself stays raw.
	factor, _ := data.Float(DefaultAdjustmentFactorColumn)
	assert.Equal(t, []float64{1, 0.5, 1}, factor)
}

func TestAdjustedSecurityData_CustomColumns(t *testing.T) {
	panel, err := frame.New(
		frame.StringColumn("ticker", []string{"X", "X"}),
		frame.TimeColumn("day", []time.Time{d(1), d(2)}),
		frame.FloatColumn("px", []float64{10, 5}),
		frame.FloatColumn("qty", []float64{1, 2}),
		frame.FloatColumn("adj", []float64{0.5, 1}),
	)
	require.NoError(t, err)

	data, err := AdjustedSecurityData(panel, "X", Options{
		CodeColumn:             "ticker",
		DateColumn:             "day",
		VolumeColumn:           "qty",
		AdjustmentFactorColumn: "adj",
		PriceColumns:           []string{"px"},
	})
	require.NoError(t, err)

	px, _ := data.Float("px")
	assert.Equal(t, []float64{5, 5}, px)
	qty, _ := data.Float("qty")
	assert.Equal(t, []float64{2, 2}, qty)
}

func TestAdjustedSecurityData_MissingPriceColumn(t *testing.T) {
	_, err := AdjustedSecurityData(twoSecurityPanel(t), "1301", Options{PriceColumns: []string{"VWAP"}})
	assert.ErrorIs(t, err, frame.ErrColumnNotFound)
}

func TestAdjustedSecurityData_NoAliasing(t *testing.T) {
	panel := twoSecurityPanel(t)
	before, _ := panel.Float("Close")

	data, err := AdjustedSecurityData(panel, "1301", Options{})
	require.NoError(t, err)
	require.NoError(t, data.SetFloat("Close", []float64{0, 0, 0}))

	after, _ := panel.Float("Close")
	assert.Equal(t, before, after)
}

func TestAdjustedSecurityData_UnknownCode(t *testing.T) {
	data, err := AdjustedSecurityData(twoSecurityPanel(t), "0000", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, data.Len())
}

func TestCodes_FirstSeenOrder(t *testing.T) {
	codes, err := Codes(twoSecurityPanel(t), DefaultCodeColumn)
	require.NoError(t, err)
	assert.Equal(t, []string{"1301", "1332"}, codes)
}
