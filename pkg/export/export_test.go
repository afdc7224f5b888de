package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/routelens/routelens/internal/model"
	"github.com/routelens/routelens/pkg/config"
	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/stock"
)

var observed = time.Date(2025, 12, 9, 22, 0, 0, 0, time.UTC)

func areaStock(region, area, good string, iteration, amount int64, request float64, reasons ...string) *model.AreaStock {
	return &model.AreaStock{
		Base:      model.Base{Region: region, Timestamp: observed},
		TradeType: model.TradeRegular,
		Iteration: iteration,
		AreaName:  area,
		GoodName:  good,
		Stock:     amount,
		Request:   request,
		Reasons:   reasons,
	}
}

func testView() *stock.View {
	data := stock.Aggregate([]model.Event{
		areaStock("OW", "Tartagena", "Soap", 2, 100, 50, "Production/Soap Factory"),
		areaStock("OW", "Tartagena", "Beer", 2, 0, 10),
		areaStock("NW", "Manola", "Soap", 1, 5, 10),
	})
	return stock.Run(data, stock.DefaultQuery(data))
}

func TestRecords(t *testing.T) {
	got := Records(testView())
	want := []Record{
		{Good: "Soap", Area: "Tartagena", Region: "OW", Stock: 100, Request: 50, Iteration: 2, ObservedAt: observed, Classification: "bold-green", Reasons: "Production/Soap Factory"},
		{Good: "Soap", Area: "Manola", Region: "NW", Stock: 5, Request: 10, Iteration: 1, ObservedAt: observed, Classification: "red"},
		{Good: "Beer", Area: "Tartagena", Region: "OW", Stock: 0, Request: 10, Iteration: 2, ObservedAt: observed, Classification: "unavailable"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Records() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTarget(t *testing.T) {
	for _, s := range []string{"duckdb", "PARQUET", "xlsx", "redis"} {
		if _, err := ParseTarget(s); err != nil {
			t.Errorf("ParseTarget(%q) error = %v", s, err)
		}
	}
	if _, err := ParseTarget("csv"); !rlerrors.IsCode(err, rlerrors.CodeUnknownTarget) {
		t.Errorf("ParseTarget(csv) error = %v, want unknown target", err)
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"alpha", "alpha"},
		{"a/b:c", "a_b_c"},
		{"", "Sheet1"},
		{"a very long profile name that overflows", "a very long profile name that o"},
	}
	for _, tt := range tests {
		if got := sheetName(tt.input); got != tt.want {
			t.Errorf("sheetName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestXLSXExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "stock.xlsx")
	e := NewXLSXExporter(path)
	defer e.Close()

	res, err := e.Export(context.Background(), "alpha", testView())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Rows != 2 || res.Target != TargetXLSX || res.RunID == "" {
		t.Errorf("Export() = %+v", res)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 1 || got[0] != "alpha" {
		t.Errorf("sheets = %v, want [alpha]", got)
	}
	rows, err := f.GetRows("alpha")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Good", "Reasons", "Tartagena", "Manola"},
		{"Soap", "Pr/SF", "100", "5"},
		{"Beer", "", "0"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDuckDBExporter(t *testing.T) {
	dir := t.TempDir()
	e, err := NewDuckDBExporter(filepath.Join(dir, "stock.duckdb"), filepath.Join(dir, "parquet"))
	if err != nil {
		t.Fatalf("NewDuckDBExporter() error = %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	first, err := e.Export(ctx, "alpha", testView())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	second, err := e.Export(ctx, "alpha", testView())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if first.RunID == second.RunID {
		t.Error("each export should get its own run id")
	}
	if first.Rows != 3 || first.Target != TargetParquet {
		t.Errorf("Export() = %+v", first)
	}

	var count int
	if err := e.DB().QueryRow(`SELECT COUNT(*) FROM stock WHERE run_id = ?`, second.RunID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("rows for run = %d, want 3", count)
	}

	if want := filepath.Join(dir, "parquet", "alpha"); second.Location != want {
		t.Errorf("Location = %q, want %q", second.Location, want)
	}
	for _, name := range []string{"Fact_Stock.parquet", "Dim_Goods.parquet", "Dim_Areas.parquet"} {
		if _, err := os.Stat(filepath.Join(dir, "parquet", "alpha", name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestDuckDBExporter_ParquetKeepsEveryProfile(t *testing.T) {
	dir := t.TempDir()
	e, err := NewDuckDBExporter("", dir)
	if err != nil {
		t.Fatalf("NewDuckDBExporter() error = %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	beta := stock.Aggregate([]model.Event{areaStock("OW", "Tartagena", "Wood", 3, 40, 20)})
	if _, err := e.Export(ctx, "alpha", testView()); err != nil {
		t.Fatalf("Export(alpha) error = %v", err)
	}
	if _, err := e.Export(ctx, "beta", stock.Run(beta, stock.DefaultQuery(beta))); err != nil {
		t.Fatalf("Export(beta) error = %v", err)
	}

	got := map[string]int{}
	for _, profile := range []string{"alpha", "beta"} {
		fact := filepath.Join(dir, profile, "Fact_Stock.parquet")
		rows, err := e.DB().QueryContext(ctx,
			"SELECT profile, COUNT(*) FROM read_parquet("+quoteLiteral(fact)+") GROUP BY profile")
		if err != nil {
			t.Fatalf("read %s: %v", fact, err)
		}
		for rows.Next() {
			var name string
			var n int
			if err := rows.Scan(&name, &n); err != nil {
				t.Fatal(err)
			}
			got[name] += n
		}
		rows.Close()
	}

	want := map[string]int{"alpha": 3, "beta": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parquet rows per profile mismatch (-want +got):\n%s", diff)
	}
}

func TestProfileDir(t *testing.T) {
	tests := map[string]string{
		"alpha":        "alpha",
		"My Profile/2": "My_Profile_2",
		"..":           "_",
		"":             "_",
		`a\b`:          "a_b",
	}
	for in, want := range tests {
		if got := profileDir(in); got != want {
			t.Errorf("profileDir(%q) = %q, want %q", in, got, want)
		}
	}
}

// scriptedExporter fails each profile with the queued errors before
// succeeding.
type scriptedExporter struct {
	failures map[string][]error
	calls    map[string]int
}

func (s *scriptedExporter) Export(ctx context.Context, profile string, view *stock.View) (*Result, error) {
	s.calls[profile]++
	if queue := s.failures[profile]; len(queue) > 0 {
		s.failures[profile] = queue[1:]
		return nil, queue[0]
	}
	return &Result{Profile: profile, Rows: len(Records(view))}, nil
}

func (s *scriptedExporter) Close() error { return nil }

func TestExportAll(t *testing.T) {
	defer func(d time.Duration) { retryBackoff = d }(retryBackoff)
	retryBackoff = time.Millisecond

	exp := &scriptedExporter{
		failures: map[string][]error{
			"alpha": {rlerrors.New(rlerrors.CodeRedis, "connection reset")},
			"beta":  {rlerrors.New(rlerrors.CodeWriteFailed, "disk full")},
			"gamma": {
				rlerrors.New(rlerrors.CodeS3, "slow down"),
				rlerrors.New(rlerrors.CodeS3, "slow down"),
				rlerrors.New(rlerrors.CodeS3, "slow down"),
			},
		},
		calls: map[string]int{},
	}
	jobs := []Job{
		{Profile: "alpha", View: testView()},
		{Profile: "beta", View: testView()},
		{Profile: "gamma", View: testView()},
		{Profile: "delta", View: testView()},
	}

	outcomes := map[string]bool{}
	results, err := ExportAll(context.Background(), exp, jobs, func(profile string, err error) {
		outcomes[profile] = err == nil
	})

	var profiles []string
	for _, r := range results {
		profiles = append(profiles, r.Profile)
	}
	if diff := cmp.Diff([]string{"alpha", "delta"}, profiles); diff != "" {
		t.Errorf("exported profiles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"alpha": 2, "beta": 1, "gamma": 3, "delta": 1}, exp.calls); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]bool{"alpha": true, "beta": false, "gamma": false, "delta": true}, outcomes); diff != "" {
		t.Errorf("observed outcomes mismatch (-want +got):\n%s", diff)
	}

	multi, ok := err.(*rlerrors.MultiError)
	if !ok || len(multi.Errors) != 2 {
		t.Fatalf("ExportAll() error = %v, want two combined failures", err)
	}
	if !rlerrors.IsCode(multi.Errors[0], rlerrors.CodeWriteFailed) || !rlerrors.IsCode(multi.Errors[1], rlerrors.CodeS3) {
		t.Errorf("combined errors = %v", multi.Errors)
	}
}

func TestExportAll_NoFailures(t *testing.T) {
	exp := &scriptedExporter{failures: map[string][]error{}, calls: map[string]int{}}
	results, err := ExportAll(context.Background(), exp, []Job{{Profile: "alpha", View: testView()}}, nil)
	if err != nil || len(results) != 1 || results[0].Rows != 3 {
		t.Errorf("ExportAll() = %v, %v", results, err)
	}
}

func TestRedisPublisher_Unreachable(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	if !rlerrors.IsCode(err, rlerrors.CodeRedis) {
		t.Errorf("NewRedisPublisher() error = %v, want %s", err, rlerrors.CodeRedis)
	}
}

func TestRedisPublisher_Keys(t *testing.T) {
	p := NewRedisPublisherWithClient(nil, "routelens:", time.Hour)
	if got := p.Key("My Profile/2"); got != "routelens:stock:My_Profile_2" {
		t.Errorf("Key() = %q", got)
	}
	if got := p.Channel(); got != "routelens:updates" {
		t.Errorf("Channel() = %q", got)
	}
}
