// Package dataset downloads and unpacks the competition data archive.
package dataset

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Minute
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// DefaultBaseURL is the competition download endpoint; the competition
	// name is appended.
	DefaultBaseURL = "https://www.kaggle.com/api/v1/competitions/data/download-all/"
)

var (
	// ErrUnsafePath is returned for an archive entry that would escape the target folder.
	ErrUnsafePath = errors.New("archive entry escapes target folder")
	// ErrStatus is returned for a non-retryable HTTP status.
	ErrStatus = errors.New("unexpected http status")
)

// Fetcher downloads an archive, extracts it and removes it.
type Fetcher struct {
	client      *http.Client
	username    string
	key         string
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      zerolog.Logger
}

// Option configures Fetcher.
type Option func(*Fetcher)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithBasicAuth sets API credentials.
func WithBasicAuth(username, key string) Option {
	return func(f *Fetcher) {
		f.username = username
		f.key = key
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CompetitionURL returns the download address of a competition.
func CompetitionURL(competition string) string {
	return DefaultBaseURL + competition
}

// Fetch downloads url into dir, extracts the zip there and deletes the
// archive. It returns the extracted file paths.
func (f *Fetcher) Fetch(ctx context.Context, url, dir string) ([]string, error) {
	log := f.logger.With().Str("url", url).Str("dir", dir).Logger()

	log.Info().Msg("creating target folder")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Msg("create target folder")
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	archive := filepath.Join(dir, archiveName(url))
	log.Info().Str("archive", archive).Msg("downloading archive")
	if err := f.download(ctx, url, archive); err != nil {
		os.Remove(archive)
		log.Error().Err(err).Msg("download failed")
		return nil, err
	}

	log.Info().Msg("extracting archive")
	files, err := Extract(archive, dir)
	if err != nil {
		log.Error().Err(err).Msg("extract failed")
		return nil, err
	}

	log.Info().Int("files", len(files)).Msg("deleting archive")
	if err := os.Remove(archive); err != nil {
		log.Error().Err(err).Msg("delete archive")
		return files, fmt.Errorf("delete archive: %w", err)
	}
	return files, nil
}

// download streams url to path with retries and exponential backoff.
func (f *Fetcher) download(ctx context.Context, url, path string) error {
	delay := f.retryDelay
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * f.backoffMult)
			if delay > f.maxDelay {
				delay = f.maxDelay
			}
			f.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("retrying download")
		}

		retry, err := f.downloadOnce(ctx, url, path)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (f *Fetcher) downloadOnce(ctx context.Context, url, path string) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if f.username != "" {
		req.SetBasicAuth(f.username, f.key)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("rate limited (429)")
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("create archive: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return true, fmt.Errorf("read response: %w", err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close archive: %w", err)
	}
	return false, nil
}

// Extract unpacks a zip archive into dir and returns the written file paths.
func Extract(archive, dir string) ([]string, error) {
	r, err := zip.OpenReader(archive)
	if errors.Is(err, zip.ErrInsecurePath) {
		r.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range r.File {
		target := filepath.Join(root, filepath.FromSlash(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return files, fmt.Errorf("%w: %s", ErrUnsafePath, entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return files, err
		}
		if err := extractFile(entry, target); err != nil {
			return files, fmt.Errorf("extract %s: %w", entry.Name, err)
		}
		files = append(files, target)
	}
	return files, nil
}

func extractFile(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// archiveName derives a local file name from the last URL path segment.
func archiveName(url string) string {
	name := url
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "dataset"
	}
	if !strings.HasSuffix(name, ".zip") {
		name += ".zip"
	}
	return name
}
