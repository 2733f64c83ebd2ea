package reporting

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// RenderSecuritiesCSV renders per-security rows as CSV string.
func RenderSecuritiesCSV(rows []SecurityRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("securities_code,status,rows,first_date,last_date,series_id,hurst_exponent,error\n")

	// Rows
	for _, r := range rows {
		msg := r.Error
		if msg == "" {
			msg = r.HurstError
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%s,%s,%s,%s\n",
			r.Code,
			r.Status,
			r.Rows,
			formatDate(r.FirstDate),
			formatDate(r.LastDate),
			r.SeriesID,
			formatFloat(r.Hurst),
			quote(msg),
		))
	}

	return sb.String()
}

// RenderTrialsCSV renders search trials as CSV string. Params are JSON with
// sorted keys.
func RenderTrialsCSV(trials []TrialRow) string {
	var sb strings.Builder

	sb.WriteString("trial_id,family,status,score_mean,score_std,loss,duration_ms,params,error\n")

	for _, t := range trials {
		params, err := json.Marshal(t.Params)
		if err != nil {
			params = []byte("{}")
		}
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%.6f,%.6f,%.6f,%d,%s,%s\n",
			t.TrialID,
			t.Family,
			t.Status,
			t.ScoreMean,
			t.ScoreStd,
			t.Loss,
			t.DurationMs,
			quote(string(params)),
			quote(t.Error),
		))
	}

	return sb.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.6f", v)
}

// quote wraps a field in double quotes when it holds a separator or quote.
func quote(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
