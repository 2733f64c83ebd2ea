package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestFetcher_Fetch(t *testing.T) {
	payload := buildZip(t, map[string]string{
		"stock_list.csv":                 "SecuritiesCode,Name\n1301,KYOKUYO\n",
		"train_files/stock_prices.csv":   "Date,SecuritiesCode\n",
		"supplemental_files/options.csv": "Date\n",
	})

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, key, ok := r.BasicAuth()
		if !ok || user != "alice" || key != "secret" {
			t.Errorf("unexpected auth: %q %q %v", user, key, ok)
		}
		// first attempt fails to exercise the retry path
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(payload)
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "jpx")
	f := NewFetcher(WithBasicAuth("alice", "secret"), WithRetryDelay(time.Millisecond))

	files, err := f.Fetch(context.Background(), server.URL+"/download/jpx-tokyo-stock-exchange-prediction", dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %v", files)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stock_list.csv"))
	if err != nil {
		t.Fatalf("read extracted: %v", err)
	}
	if string(data) != "SecuritiesCode,Name\n1301,KYOKUYO\n" {
		t.Errorf("unexpected content %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "train_files", "stock_prices.csv")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "jpx-tokyo-stock-exchange-prediction.zip")); !os.IsNotExist(err) {
		t.Errorf("archive should be deleted, stat err = %v", err)
	}
}

func TestFetcher_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "competition rules not accepted", http.StatusForbidden)
	}))
	defer server.Close()

	f := NewFetcher(WithRetryDelay(time.Millisecond))
	_, err := f.Fetch(context.Background(), server.URL+"/data.zip", t.TempDir())
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestFetcher_MaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := NewFetcher(WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	_, err := f.Fetch(context.Background(), server.URL+"/data.zip", t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestExtract_RejectsEscapingEntry(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	if err := os.WriteFile(archive, buildZip(t, map[string]string{"../outside.txt": "x"}), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	_, err := Extract(archive, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "outside.txt")); !os.IsNotExist(err) {
		t.Error("entry was written outside the target folder")
	}
}

func TestArchiveName(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a/jpx":          "jpx.zip",
		"https://example.com/a/data.zip?x=1": "data.zip",
		"https://example.com/":               "example.com.zip",
		"":                                   "dataset.zip",
	}
	for in, want := range tests {
		if got := archiveName(in); got != want {
			t.Errorf("archiveName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompetitionURL(t *testing.T) {
	want := "https://www.kaggle.com/api/v1/competitions/data/download-all/jpx-tokyo-stock-exchange-prediction"
	if got := CompetitionURL("jpx-tokyo-stock-exchange-prediction"); got != want {
		t.Errorf("CompetitionURL = %q, want %q", got, want)
	}
}
