package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/stock"
)

const createStockTable = `
	CREATE TABLE IF NOT EXISTS stock (
		run_id VARCHAR NOT NULL,
		profile VARCHAR NOT NULL,
		good VARCHAR NOT NULL,
		area VARCHAR NOT NULL,
		region VARCHAR NOT NULL,
		stock BIGINT NOT NULL,
		request DOUBLE NOT NULL,
		in_flight_in BIGINT NOT NULL,
		in_flight_out BIGINT NOT NULL,
		iteration BIGINT NOT NULL,
		observed_at TIMESTAMP,
		classification VARCHAR NOT NULL,
		outdated BOOLEAN NOT NULL,
		reasons VARCHAR
	)
`

// DuckDBExporter appends view records to a DuckDB stock table. Every
// export is one run and carries its own run id. When ParquetDir is set the
// run is also written as a star schema under ParquetDir/<profile>.
type DuckDBExporter struct {
	db         *sql.DB
	parquetDir string

	mu sync.Mutex
}

// NewDuckDBExporter opens the database at path. An empty path keeps the
// table in memory, which is useful when only Parquet output is wanted.
func NewDuckDBExporter(path, parquetDir string) (*DuckDBExporter, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, rlerrors.Wrap(err, rlerrors.CodeDuckDBInit, "failed to create database directory")
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, rlerrors.Wrap(err, rlerrors.CodeDuckDBInit, "failed to open duckdb").WithContext("path", path)
	}
	if _, err := db.Exec(createStockTable); err != nil {
		db.Close()
		return nil, rlerrors.Wrap(err, rlerrors.CodeDuckDBInit, "failed to create stock table")
	}

	return &DuckDBExporter{db: db, parquetDir: parquetDir}, nil
}

// DB exposes the underlying database for queries.
func (e *DuckDBExporter) DB() *sql.DB { return e.db }

// Export implements Exporter.
func (e *DuckDBExporter) Export(ctx context.Context, profile string, view *stock.View) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	runID := newRunID()
	records := Records(view)
	if err := e.insert(ctx, runID, profile, records); err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Target: TargetDuckDB, Profile: profile, Rows: len(records)}
	if e.parquetDir != "" {
		dir := filepath.Join(e.parquetDir, profileDir(profile))
		if err := e.writeStarSchema(ctx, runID, dir); err != nil {
			return nil, err
		}
		res.Target = TargetParquet
		res.Location = dir
	}
	return res, nil
}

func (e *DuckDBExporter) insert(ctx context.Context, runID, profile string, records []Record) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return rlerrors.Wrap(err, rlerrors.CodeDuckDBWrite, "failed to begin transaction")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stock (run_id, profile, good, area, region, stock, request,
			in_flight_in, in_flight_out, iteration, observed_at, classification, outdated, reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return rlerrors.Wrap(err, rlerrors.CodeDuckDBWrite, "failed to prepare insert")
	}
	defer stmt.Close()

	for _, r := range records {
		var observed any
		if !r.ObservedAt.IsZero() {
			observed = r.ObservedAt
		}
		_, err := stmt.ExecContext(ctx, runID, profile, r.Good, r.Area, r.Region, r.Stock, r.Request,
			r.InFlightIn, r.InFlightOut, r.Iteration, observed, r.Classification, r.Outdated, r.Reasons)
		if err != nil {
			tx.Rollback()
			return rlerrors.Wrap(err, rlerrors.CodeDuckDBWrite, "failed to insert stock row").
				WithContext("good", r.Good).WithContext("area", r.Area)
		}
	}

	if err := tx.Commit(); err != nil {
		return rlerrors.Wrap(err, rlerrors.CodeDuckDBWrite, "failed to commit transaction")
	}
	return nil
}

// profileDir is the directory name holding one profile's star schema.
func profileDir(profile string) string {
	name := sanitizeKey(profile)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return strings.ReplaceAll(name, `\`, "_")
}

// writeStarSchema writes the run into dir as Fact_Stock with Dim_Goods and
// Dim_Areas.
func (e *DuckDBExporter) writeStarSchema(ctx context.Context, runID, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rlerrors.Wrap(err, rlerrors.CodeWriteFailed, "failed to create output directory")
	}

	run := quoteLiteral(runID)
	queries := map[string]string{
		"Dim_Goods.parquet": fmt.Sprintf(`
			SELECT
				ROW_NUMBER() OVER (ORDER BY good) AS good_key,
				good,
				SUM(stock) AS total_stock,
				COUNT(*) AS area_count
			FROM stock WHERE run_id = %s
			GROUP BY good`, run),
		"Dim_Areas.parquet": fmt.Sprintf(`
			SELECT
				ROW_NUMBER() OVER (ORDER BY region, area) AS area_key,
				area,
				region,
				MAX(iteration) AS latest_iteration
			FROM stock WHERE run_id = %s
			GROUP BY area, region`, run),
		"Fact_Stock.parquet": fmt.Sprintf(`
			SELECT profile, good, area, region, stock, request, in_flight_in, in_flight_out,
				iteration, observed_at, classification, outdated, reasons
			FROM stock WHERE run_id = %s
			ORDER BY good, area`, run),
	}

	for file, query := range queries {
		copyStmt := fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, COMPRESSION 'zstd')",
			query, quoteLiteral(filepath.Join(dir, file)))
		if _, err := e.db.ExecContext(ctx, copyStmt); err != nil {
			return rlerrors.Wrap(err, rlerrors.CodeWriteFailed, "failed to write parquet").WithContext("file", file)
		}
	}
	return nil
}

// Close closes the database.
func (e *DuckDBExporter) Close() error {
	return e.db.Close()
}
