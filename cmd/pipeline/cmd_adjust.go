package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jpx-stock-lab/internal/adjustment"
	"jpx-stock-lab/internal/app"
	"jpx-stock-lab/internal/frame"
	"jpx-stock-lab/internal/panel"
	"jpx-stock-lab/internal/tsprep"
)

var (
	fileInput  string
	fileSheet  string
	fileCode   string
	fileOutput string
	fileColumn string
	timeDim    int
	outputDim  int
	hurstCodes []string
)

// adjustCmd prints one security's adjusted records straight from a file.
var adjustCmd = &cobra.Command{
	Use:   "adjust",
	Short: "Print one security's adjusted series as CSV",
	Example: `  pipeline adjust --input jpx/train_files/stock_prices.csv --code 1301
  pipeline adjust --input prices.xlsx --code 7203 --output 7203.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		adjusted, err := adjustFromFile(fileCode)
		if err != nil {
			return err
		}
		return withOutput(cmd, func(w io.Writer) error {
			return app.WriteFrameCSV(w, adjusted)
		})
	},
}

// frameCmd prints the supervised windows of one adjusted column.
var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Print sliding windows of one adjusted column as CSV",
	Example: `  pipeline frame --input jpx/train_files/stock_prices.csv --code 1301 --time-dim 5 --output-dim 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		series, err := adjustedColumn(fileCode)
		if err != nil {
			return err
		}
		features, targets, err := tsprep.ToSupervised(series, timeDim, tsprep.WithOutputDim(outputDim))
		if err != nil {
			return err
		}
		combined, err := joinFrames(features, targets)
		if err != nil {
			return err
		}
		return withOutput(cmd, func(w io.Writer) error {
			return app.WriteFrameCSV(w, combined)
		})
	},
}

// hurstCmd estimates the Hurst exponent of adjusted columns from a file.
var hurstCmd = &cobra.Command{
	Use:   "hurst",
	Short: "Estimate Hurst exponents of adjusted series",
	Example: `  pipeline hurst --input jpx/train_files/stock_prices.csv --codes 1301,1332
  pipeline hurst --input prices.csv --column Volume`,
	RunE: func(cmd *cobra.Command, args []string) error {
		panelFrame, err := readPanel()
		if err != nil {
			return err
		}
		codes := hurstCodes
		if len(codes) == 0 {
			if codes, err = adjustment.Codes(panelFrame, cfg.Columns.Code); err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tROWS\tHURST\tNOTE")
		for _, code := range codes {
			rows, h, err := hurstOf(panelFrame, code)
			note := ""
			if err != nil {
				note = err.Error()
			}
			value := "-"
			if !math.IsNaN(h) {
				value = fmt.Sprintf("%.4f", h)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", code, rows, value, note)
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{adjustCmd, frameCmd, hurstCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringVar(&fileInput, "input", "", "Stock price file (.csv or .xlsx)")
		c.Flags().StringVar(&fileSheet, "sheet", "", "Workbook sheet (default: first sheet)")
		c.MarkFlagRequired("input")
	}
	for _, c := range []*cobra.Command{adjustCmd, frameCmd} {
		c.Flags().StringVar(&fileCode, "code", "", "Security code")
		c.Flags().StringVar(&fileOutput, "output", "", "Output CSV path (default: stdout)")
		c.MarkFlagRequired("code")
	}
	for _, c := range []*cobra.Command{frameCmd, hurstCmd} {
		c.Flags().StringVar(&fileColumn, "column", "", "Adjusted column (default: pipeline.hurst_column)")
	}
	frameCmd.Flags().IntVar(&timeDim, "time-dim", 0, "Window length (default: pipeline.time_dim)")
	frameCmd.Flags().IntVar(&outputDim, "output-dim", -1, "Targets per window (default: pipeline.output_dim)")
	hurstCmd.Flags().StringSliceVar(&hurstCodes, "codes", nil, "Securities (default: all)")
}

func readPanel() (*frame.Frame, error) {
	records, err := app.ReadPanelFile(fileInput, fileSheet, cfg.AdjustmentOptions())
	if err != nil {
		return nil, err
	}
	return panel.ToFrame(records, cfg.AdjustmentOptions())
}

func adjustFromFile(code string) (*frame.Frame, error) {
	panelFrame, err := readPanel()
	if err != nil {
		return nil, err
	}
	return adjustSecurity(panelFrame, code)
}

func adjustSecurity(panelFrame *frame.Frame, code string) (*frame.Frame, error) {
	adjusted, err := adjustment.AdjustedSecurityData(panelFrame, code, cfg.AdjustmentOptions())
	if err != nil {
		return nil, err
	}
	if adjusted.Len() == 0 {
		return nil, fmt.Errorf("security %s not in %s", code, fileInput)
	}
	return adjusted, nil
}

func column() string {
	if fileColumn != "" {
		return fileColumn
	}
	return cfg.Pipeline.HurstColumn
}

func adjustedColumn(code string) ([]float64, error) {
	adjusted, err := adjustFromFile(code)
	if err != nil {
		return nil, err
	}
	if timeDim <= 0 {
		timeDim = cfg.Pipeline.TimeDim
	}
	if outputDim < 0 {
		outputDim = cfg.Pipeline.OutputDim
	}
	return adjusted.Float(column())
}

func hurstOf(panelFrame *frame.Frame, code string) (int, float64, error) {
	adjusted, err := adjustSecurity(panelFrame, code)
	if err != nil {
		return 0, math.NaN(), err
	}
	series, err := adjusted.Float(column())
	if err != nil {
		return adjusted.Len(), math.NaN(), err
	}
	h, err := tsprep.HurstExponent(series)
	return len(series), h, err
}

// joinFrames places the target columns after the feature columns.
func joinFrames(features, targets *frame.Frame) (*frame.Frame, error) {
	if targets == nil {
		return features, nil
	}
	var cols []frame.Column
	for _, f := range []*frame.Frame{features, targets} {
		for _, name := range f.Names() {
			c, err := f.Column(name)
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
		}
	}
	return frame.New(cols...)
}

func withOutput(cmd *cobra.Command, write func(io.Writer) error) error {
	if fileOutput == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(fileOutput)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info().Str("path", fileOutput).Msg("written")
	return nil
}
