package idhash

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// ComputeSeriesID computes a deterministic series_id.
// Formula: SHA256(securities_code|column|first_date|last_date|observations)
// with dates as yyyy-mm-dd. Returns the base58-encoded hash (43 or 44 characters).
func ComputeSeriesID(
	securitiesCode string,
	column string,
	firstDate time.Time,
	lastDate time.Time,
	observations int,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		securitiesCode,
		column,
		firstDate.UTC().Format(time.DateOnly),
		lastDate.UTC().Format(time.DateOnly),
		observations,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// ComputeRunID computes a search run_id from the classifier family, the
// sampler seed and the start time in Unix ms. Returns at most 17 base58
// characters (a 96-bit prefix of the hash).
func ComputeRunID(family string, seed int64, startedAtMs int64) string {
	data := fmt.Sprintf("%s|%d|%d", family, seed, startedAtMs)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:12])
}

// RowID formats the panel row identifier "<yyyymmdd>_<code>".
func RowID(date time.Time, securitiesCode string) string {
	return date.UTC().Format("20060102") + "_" + securitiesCode
}
