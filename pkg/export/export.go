// Package export writes stock views to external stores: a DuckDB table with
// Parquet star-schema output, an XLSX workbook, and Redis snapshots.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/stock"
)

// Target names an export destination.
type Target string

const (
	TargetDuckDB  Target = "duckdb"
	TargetParquet Target = "parquet"
	TargetXLSX    Target = "xlsx"
	TargetRedis   Target = "redis"
)

// ParseTarget parses a target name.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(s)); t {
	case TargetDuckDB, TargetParquet, TargetXLSX, TargetRedis:
		return t, nil
	}
	return "", rlerrors.New(rlerrors.CodeUnknownTarget, "unknown export target").
		WithContext("target", s)
}

// Record is one visible cell of a view, flattened.
type Record struct {
	Good           string    `json:"good"`
	Area           string    `json:"area"`
	Region         string    `json:"region"`
	Stock          int64     `json:"stock"`
	Request        float64   `json:"request"`
	InFlightIn     int64     `json:"inFlightIn"`
	InFlightOut    int64     `json:"inFlightOut"`
	Iteration      int64     `json:"iteration"`
	ObservedAt     time.Time `json:"observedAt"`
	Classification string    `json:"classification"`
	Outdated       bool      `json:"outdated"`
	Reasons        string    `json:"reasons,omitempty"`
}

// Records flattens view in row then column order, skipping absent cells.
func Records(view *stock.View) []Record {
	var out []Record
	for _, row := range view.Rows {
		for i, cell := range row.Cells {
			if !cell.Present || cell.Data == nil {
				continue
			}
			obs := cell.Data
			out = append(out, Record{
				Good:           row.Good,
				Area:           cell.Area,
				Region:         view.Columns[i].Region,
				Stock:          obs.Stock,
				Request:        obs.Request,
				InFlightIn:     obs.InFlightIn,
				InFlightOut:    obs.InFlightOut,
				Iteration:      obs.Iteration,
				ObservedAt:     obs.Timestamp,
				Classification: cell.Classification.String(),
				Outdated:       cell.Outdated,
				Reasons:        strings.Join(obs.Reasons, ", "),
			})
		}
	}
	return out
}

// Result describes one finished export.
type Result struct {
	RunID    string `json:"runId"`
	Target   Target `json:"target"`
	Profile  string `json:"profile"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
}

// Exporter writes one profile's view.
type Exporter interface {
	Export(ctx context.Context, profile string, view *stock.View) (*Result, error)
	Close() error
}

// Job is one profile view to export.
type Job struct {
	Profile string
	View    *stock.View
}

// Retry policy for transient backend failures.
var (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// ExportAll exports every job, retrying transient failures. A failed
// profile does not stop the others; the returned error combines every
// failure. observe, when set, sees the outcome of each job.
func ExportAll(ctx context.Context, exp Exporter, jobs []Job, observe func(profile string, err error)) ([]*Result, error) {
	var (
		results []*Result
		errs    rlerrors.MultiError
	)
	for _, job := range jobs {
		res, err := exportWithRetry(ctx, exp, job)
		if observe != nil {
			observe(job.Profile, err)
		}
		if err != nil {
			errs.Add(fmt.Errorf("export %s: %w", job.Profile, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		results = append(results, res)
	}
	return results, errs.Combined()
}

func exportWithRetry(ctx context.Context, exp Exporter, job Job) (*Result, error) {
	backoff := retryBackoff
	for attempt := 1; ; attempt++ {
		res, err := exp.Export(ctx, job.Profile, job.View)
		if err == nil || attempt >= maxAttempts || !rlerrors.IsRetryable(err) {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func newRunID() string { return uuid.NewString() }

// quoteLiteral quotes s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
