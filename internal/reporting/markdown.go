package reporting

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Adjustment Pipeline Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: %s | Hurst column: %s\n\n", r.RunID, r.HurstColumn))

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Securities | %d |\n", r.DataSummary.Securities))
	sb.WriteString(fmt.Sprintf("| Succeeded | %d |\n", r.DataSummary.Succeeded))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.DataSummary.Failed))
	sb.WriteString(fmt.Sprintf("| Hurst Skipped | %d |\n", r.DataSummary.HurstSkipped))
	sb.WriteString(fmt.Sprintf("| Rows Adjusted | %d |\n", r.DataSummary.RowsAdjusted))
	sb.WriteString(fmt.Sprintf("| Date Range Start | %s |\n", formatDate(r.DataSummary.DateRangeStart)))
	sb.WriteString(fmt.Sprintf("| Date Range End | %s |\n", formatDate(r.DataSummary.DateRangeEnd)))
	sb.WriteString("\n")

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	if r.DataQuality.AllChecksPassed {
		sb.WriteString("**All checks passed.**\n\n")
	} else {
		sb.WriteString("### Integrity Errors\n\n")
		for _, err := range r.DataQuality.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	// Hurst
	sb.WriteString("## Hurst Exponent\n\n")
	if r.Hurst.Count > 0 {
		sb.WriteString("| Count | Mean | Median | P10 | P90 | Trending | Mean-Reverting |\n")
		sb.WriteString("|-------|------|--------|-----|-----|----------|----------------|\n")
		sb.WriteString(fmt.Sprintf("| %d | %.4f | %.4f | %.4f | %.4f | %d | %d |\n",
			r.Hurst.Count, r.Hurst.Mean, r.Hurst.Median, r.Hurst.P10, r.Hurst.P90,
			r.Hurst.Trending, r.Hurst.MeanReverting))
	} else {
		sb.WriteString("No Hurst estimates available.\n")
	}
	sb.WriteString("\n")

	// Securities
	sb.WriteString("## Securities\n\n")
	if len(r.Securities) > 0 {
		sb.WriteString("| Code | Status | Rows | First | Last | Hurst | Note |\n")
		sb.WriteString("|------|--------|------|-------|------|-------|------|\n")
		for _, s := range r.Securities {
			hurst := "-"
			if !math.IsNaN(s.Hurst) {
				hurst = fmt.Sprintf("%.4f", s.Hurst)
			}
			note := s.Error
			if note == "" {
				note = s.HurstError
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s | %s | %s |\n",
				s.Code, s.Status, s.Rows, formatDate(s.FirstDate), formatDate(s.LastDate), hurst,
				strings.ReplaceAll(note, "|", "\\|")))
		}
	} else {
		sb.WriteString("No securities processed.\n")
	}
	sb.WriteString("\n")

	if r.Search != nil {
		renderSearch(&sb, r.Search)
	}

	return sb.String()
}

func renderSearch(sb *strings.Builder, s *SearchSection) {
	sb.WriteString("## Model Search\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s | Family: %s | Trials: %d | Failed: %d\n\n",
		s.RunID, s.Family, s.TotalTrials, s.FailedTrials))

	if s.BestTrialID < 0 {
		sb.WriteString("No successful trial.\n\n")
		return
	}
	sb.WriteString(fmt.Sprintf("Best trial %d (%s): ROC AUC %.4f ± %.4f\n\n",
		s.BestTrialID, s.BestFamily, s.BestScore, s.BestStd))
	params, _ := json.MarshalIndent(s.BestParams, "", "  ")
	sb.WriteString("```json\n")
	sb.Write(params)
	sb.WriteString("\n```\n\n")

	sb.WriteString("| Trial | Family | Status | Mean | Std | Duration (ms) |\n")
	sb.WriteString("|-------|--------|--------|------|-----|---------------|\n")
	for _, t := range s.Trials {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %.4f | %.4f | %d |\n",
			t.TrialID, t.Family, t.Status, t.ScoreMean, t.ScoreStd, t.DurationMs))
	}
	sb.WriteString("\n")
}
