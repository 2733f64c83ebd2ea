package migrations

import "embed"

// PostgresFS holds the raw-panel and search-trial schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the adjusted-series and feature schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
