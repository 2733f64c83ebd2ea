package adjustment

// Default column names of the JPX stock price panel.
const (
	DefaultCodeColumn             = "SecuritiesCode"
	DefaultDateColumn             = "Date"
	DefaultVolumeColumn           = "Volume"
	DefaultAdjustmentFactorColumn = "AdjustmentFactor"
)

// DefaultPriceColumns returns the OHLC column names adjusted by default.
func DefaultPriceColumns() []string {
	return []string{"High", "Low", "Open", "Close"}
}

// Alignment selects how a security's records are placed on the canonical date index.
type Alignment string

const (
	// AlignPositional maps the k-th chronological record to the k-th panel date.
	// It assumes every security trades on every panel date.
	AlignPositional Alignment = "positional"

	// AlignByDate joins records to the panel dates by value and applies a MissingPolicy.
	AlignByDate Alignment = "date"
)

// MissingPolicy decides what AlignByDate does with panel dates a security did not trade.
type MissingPolicy string

const (
	// MissingForwardFill carries prices forward, sets volume to 0 and the
	// adjustment factor to 1. Dates before the first record are dropped.
	MissingForwardFill MissingPolicy = "ffill"

	// MissingDrop leaves the date out of the result.
	MissingDrop MissingPolicy = "drop"

	// MissingError fails with ErrMissingDate.
	MissingError MissingPolicy = "error"
)

// Options holds the overridable column names and alignment policy.
// Zero-valued fields take the package defaults.
type Options struct {
	CodeColumn             string        `yaml:"code_column"`
	DateColumn             string        `yaml:"date_column"`
	VolumeColumn           string        `yaml:"volume_column"`
	AdjustmentFactorColumn string        `yaml:"adjustment_factor_column"`
	PriceColumns           []string      `yaml:"price_columns"`
	Alignment              Alignment     `yaml:"alignment"`
	Missing                MissingPolicy `yaml:"missing"`
}

// DefaultOptions returns options with every default filled in.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.CodeColumn == "" {
		o.CodeColumn = DefaultCodeColumn
	}
	if o.DateColumn == "" {
		o.DateColumn = DefaultDateColumn
	}
	if o.VolumeColumn == "" {
		o.VolumeColumn = DefaultVolumeColumn
	}
	if o.AdjustmentFactorColumn == "" {
		o.AdjustmentFactorColumn = DefaultAdjustmentFactorColumn
	}
	if len(o.PriceColumns) == 0 {
		o.PriceColumns = DefaultPriceColumns()
	} else {
		o.PriceColumns = append([]string(nil), o.PriceColumns...)
	}
	if o.Alignment == "" {
		o.Alignment = AlignPositional
	}
	if o.Missing == "" {
		o.Missing = MissingForwardFill
	}
	return o
}
