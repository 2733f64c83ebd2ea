package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jpx-stock-lab/internal/dataset"
)

var (
	fetchURL string
	fetchDir string
)

// fetchCmd downloads and unpacks the competition archive.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and extract the competition dataset",
	Long: `Downloads the competition archive into the dataset folder, extracts it
and removes the archive. Credentials come from dataset.username and
dataset.key (JPX_DATASET_USERNAME / JPX_DATASET_KEY).`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "Archive URL (default: derived from dataset.competition)")
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "", "Target folder (default: dataset.dir)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	url := fetchURL
	if url == "" {
		url = cfg.Dataset.URL
	}
	if url == "" {
		url = dataset.CompetitionURL(cfg.Dataset.Competition)
	}
	dir := fetchDir
	if dir == "" {
		dir = cfg.Dataset.Dir
	}

	opts := []dataset.Option{dataset.WithLogger(logger)}
	if cfg.Dataset.Username != "" {
		opts = append(opts, dataset.WithBasicAuth(cfg.Dataset.Username, cfg.Dataset.Key))
	}
	files, err := dataset.NewFetcher(opts...).Fetch(ctx, url, dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return nil
}
