package reporting

import (
	"os"
	"path/filepath"
)

// Output file names.
const (
	ReportFile     = "REPORT.md"
	SecuritiesFile = "securities.csv"
	TrialsFile     = "search_trials.csv"
)

// WriteFiles writes REPORT.md and securities.csv into dir, plus
// search_trials.csv when the report has a search section. It returns the
// written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	files := []struct {
		name    string
		content string
	}{
		{ReportFile, RenderMarkdown(r)},
		{SecuritiesFile, RenderSecuritiesCSV(r.Securities)},
	}
	if r.Search != nil {
		files = append(files, struct {
			name    string
			content string
		}{TrialsFile, RenderTrialsCSV(r.Search.Trials)})
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
