package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/routelens/routelens/internal/model"
	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/export"
	"github.com/routelens/routelens/pkg/metrics"
	"github.com/routelens/routelens/pkg/parser"
	"github.com/routelens/routelens/pkg/source"
	"github.com/routelens/routelens/pkg/stock"
	"github.com/routelens/routelens/pkg/tui"
	"github.com/routelens/routelens/pkg/usage"
)

var (
	jsonOutput bool

	// Stock query flags
	queryRegions    []string
	queryAreas      []string
	queryGoods      []string
	queryLegend     []string
	queryCategories []string
	queryReasons    []string
	allIterations   bool
	sortBy          string
	sortArea        string
	sortOrder       string

	// Event flags
	eventKinds []string
	eventLimit int

	// Usage flags
	usageWindow int

	// Export flags
	exportTarget string
	exportOutput string
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List discovered profiles and load errors",
	RunE:  runProfiles,
}

var stockCmd = &cobra.Command{
	Use:   "stock <profile>",
	Short: "Show the stock table of a profile",
	Long: `Show the latest stock of every good at every area of a profile.

Set flags take comma separated values. --goods and --areas replace the
default selection of everything; an empty value selects nothing. The other
set filters only restrict when given.

Examples:
  routelens stock main
  routelens stock main --regions OW,NW --legend red,unavailable
  routelens stock main --sort-area Tartagena --sort-order asc
  routelens stock main --categories Construction --json`,
	Args: cobra.ExactArgs(1),
	RunE: runStock,
}

var eventsCmd = &cobra.Command{
	Use:   "events <profile>",
	Short: "Show parsed events of a profile",
	Long: `Without --json, prints the number of events per kind. With --json, writes
the events as JSON lines, optionally restricted with --kind.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show ship usage across all profiles",
	RunE:  runUsage,
}

var exportCmd = &cobra.Command{
	Use:   "export [profile...]",
	Short: "Export stock tables",
	Long: `Export the default stock view of each profile (all loaded profiles when
none are named).

Targets:
  duckdb   append to the stock table of export.duckdb_path
  parquet  write Dim_Goods, Dim_Areas and Fact_Stock files to --output
  xlsx     write one sheet per profile to the --output workbook
  redis    publish a snapshot per profile to export.redis`,
	RunE: runExport,
}

func init() {
	for _, c := range []*cobra.Command{profilesCmd, stockCmd, eventsCmd, usageCmd, exportCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Write JSON instead of a table")
	}

	stockCmd.Flags().StringSliceVar(&queryRegions, "regions", nil, "Only these regions")
	stockCmd.Flags().StringSliceVar(&queryAreas, "areas", nil, "Areas to show (default all)")
	stockCmd.Flags().StringSliceVar(&queryGoods, "goods", nil, "Goods to show (default all)")
	stockCmd.Flags().StringSliceVar(&queryLegend, "legend", nil, "Only goods with a cell of these classifications")
	stockCmd.Flags().StringSliceVar(&queryCategories, "categories", nil, "Only goods requested for these reason categories")
	stockCmd.Flags().StringArrayVar(&queryReasons, "reason", nil, "Only goods requested for this exact reason (repeatable)")
	stockCmd.Flags().BoolVar(&allIterations, "all-iterations", false, "Include cells older than their region's latest iteration")
	stockCmd.Flags().StringVar(&sortBy, "sort-by", "stock", "Sort value at --sort-area (stock, request)")
	stockCmd.Flags().StringVar(&sortArea, "sort-area", "", "Area whose value orders the rows")
	stockCmd.Flags().StringVar(&sortOrder, "sort-order", "", "Row order at --sort-area (asc, desc)")

	eventsCmd.Flags().StringSliceVar(&eventKinds, "kind", nil, "Only these event kinds: "+kindList())
	eventsCmd.Flags().IntVar(&eventLimit, "limit", 0, "Maximum events to write (0 for all)")

	usageCmd.Flags().IntVar(&usageWindow, "window", 0, "Moving average window over ships available")

	exportCmd.Flags().StringVarP(&exportTarget, "target", "t", "duckdb", "Export target (duckdb, parquet, xlsx, redis)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output directory (parquet) or workbook (xlsx)")

	rootCmd.AddCommand(profilesCmd, stockCmd, eventsCmd, usageCmd, exportCmd)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, snap, err := loadStore(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(map[string]any{
			"profiles": snap.Names,
			"loaded":   snap.ProfileNames(),
			"errors":   snap.Errors,
		})
	}
	tui.PrintSnapshot(os.Stdout, snap)
	return nil
}

// stockQuery applies the query flags that were set on top of the defaults of d.
func stockQuery(cmd *cobra.Command, d *stock.Data) (stock.Query, error) {
	q := stock.DefaultQuery(d)
	flags := cmd.Flags()

	sets := []struct {
		name   string
		values []string
		dst    *stock.Set
	}{
		{"regions", queryRegions, &q.Regions},
		{"areas", queryAreas, &q.Areas},
		{"goods", queryGoods, &q.Goods},
		{"legend", queryLegend, &q.Legend},
		{"categories", queryCategories, &q.Categories},
		{"reason", queryReasons, &q.Reasons},
	}
	for _, s := range sets {
		if flags.Changed(s.name) {
			*s.dst = stock.NewSet(s.values...)
		}
	}
	for c := range q.Legend {
		if _, ok := stock.ParseClassification(c); !ok {
			return q, fmt.Errorf("invalid --legend value %q", c)
		}
	}

	q.OnlyLatest = !allIterations
	f, ok := stock.ParseSortField(sortBy)
	if !ok {
		return q, fmt.Errorf("invalid --sort-by value %q", sortBy)
	}
	q.SortBy = f
	if sortOrder != "" {
		o, ok := stock.ParseSortOrder(sortOrder)
		if !ok {
			return q, fmt.Errorf("invalid --sort-order value %q", sortOrder)
		}
		q.SortOrder = o
	}
	q.SortArea = sortArea
	return q, nil
}

func runStock(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, snap, err := loadStore(ctx)
	if err != nil {
		return err
	}
	p, err := snap.Profile(args[0])
	if err != nil {
		return err
	}
	q, err := stockQuery(cmd, p.Stock)
	if err != nil {
		return err
	}

	view := stock.Run(p.Stock, q)
	if jsonOutput {
		return writeJSON(view)
	}
	fmt.Println()
	fmt.Print(tui.RenderStock(view))
	fmt.Println()
	fmt.Println(tui.RenderLegend(view, p.Stock.LatestIterations, time.Now()))
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, snap, err := loadStore(ctx)
	if err != nil {
		return err
	}
	p, err := snap.Profile(args[0])
	if err != nil {
		return err
	}

	if !jsonOutput {
		counts := make(map[string]int, len(p.Counts))
		for k, n := range p.Counts {
			counts[k.String()] = n
		}
		fmt.Println()
		tui.PrintCounts(os.Stdout, counts)
		fmt.Println()
		return nil
	}

	kinds, err := parseKinds(eventKinds)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	written := 0
	for _, ev := range p.Events {
		if kinds != nil && !kinds[ev.Kind()] {
			continue
		}
		if eventLimit > 0 && written >= eventLimit {
			break
		}
		if err := enc.Encode(map[string]any{"kind": ev.Kind(), "event": ev}); err != nil {
			return err
		}
		written++
	}
	return nil
}

// parseKinds returns nil when names is empty, meaning every kind.
func parseKinds(names []string) (map[model.Kind]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	kinds := make(map[model.Kind]bool)
	for _, name := range names {
		k, ok := model.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown event kind %q (want one of %s)", name, kindList())
		}
		kinds[k] = true
	}
	return kinds, nil
}

// kindList is the comma-separated list of event kind names.
func kindList() string {
	kinds := model.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, snap, err := loadStore(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		out := map[string]any{
			"series":  snap.Usage,
			"regular": usage.Summarize(snap.Usage.Regular),
			"hub":     usage.Summarize(snap.Usage.Hub),
		}
		if usageWindow > 1 {
			out["regularAvg"] = usage.MovingAverage(usage.Ships(snap.Usage.Regular), usageWindow)
			out["hubAvg"] = usage.MovingAverage(usage.Ships(snap.Usage.Hub), usageWindow)
		}
		return writeJSON(out)
	}
	fmt.Println()
	tui.PrintUsage(os.Stdout, snap.Usage)
	fmt.Println()
	return nil
}

func newExporter(cmd *cobra.Command, target export.Target) (export.Exporter, error) {
	switch target {
	case export.TargetDuckDB:
		return export.NewDuckDBExporter(cfg.Export.DuckDBPath, "")
	case export.TargetParquet:
		dir := exportOutput
		if dir == "" {
			dir = "stock-parquet"
		}
		return export.NewDuckDBExporter("", dir)
	case export.TargetXLSX:
		path := exportOutput
		if path == "" {
			path = "stock.xlsx"
		}
		return export.NewXLSXExporter(path), nil
	case export.TargetRedis:
		return export.NewRedisPublisher(cmd.Context(), cfg.Export.Redis)
	}
	return nil, rlerrors.New(rlerrors.CodeUnknownTarget, "unknown export target").WithContext("target", string(target))
}

func runExport(cmd *cobra.Command, args []string) error {
	target, err := export.ParseTarget(exportTarget)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, snap, err := loadStore(ctx)
	if err != nil {
		return err
	}
	profiles := args
	if len(profiles) == 0 {
		profiles = snap.ProfileNames()
	}

	exp, err := newExporter(cmd, target)
	if err != nil {
		return err
	}
	defer exp.Close()

	jobs := make([]export.Job, 0, len(profiles))
	for _, name := range profiles {
		p, err := snap.Profile(name)
		if err != nil {
			return err
		}
		jobs = append(jobs, export.Job{Profile: name, View: stock.Run(p.Stock, stock.DefaultQuery(p.Stock))})
	}

	results, exportErr := export.ExportAll(ctx, exp, jobs, func(profile string, err error) {
		metrics.Exports.WithLabelValues(string(target), metrics.Result(err)).Inc()
		if err != nil {
			logger.Warn("export failed", zap.String("profile", profile), zap.Error(err))
		}
	})

	if jsonOutput {
		if err := writeJSON(results); err != nil {
			return err
		}
		return exportErr
	}
	for _, res := range results {
		location := res.Location
		if location == "" {
			location = cfg.Export.DuckDBPath
		}
		if abs, err := filepath.Abs(location); err == nil && target != export.TargetRedis {
			location = abs
		}
		fmt.Printf("  %-20s %6d rows -> %s\n", res.Profile, res.Rows, location)
	}
	return exportErr
}

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Classify a single base log without loading profiles",
	Long: `Stream one base log (plain or .gz, "-" for stdin) through the line
classifier. Prints per-kind counts, or the events as JSON lines with --json.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().BoolVar(&jsonOutput, "json", false, "Write events as JSON lines")
	parseCmd.Flags().StringSliceVar(&eventKinds, "kind", nil, "Only these event kinds (with --json): "+kindList())
	rootCmd.AddCommand(parseCmd)
}

func openLog(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return source.OpenFile(path)
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	kinds, err := parseKinds(eventKinds)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	r, err := openLog(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	pcfg := parser.DefaultConfig()
	pcfg.BufferSize = cfg.Parser.BufferSize
	pcfg.Location = loc
	p := parser.NewLogParser(pcfg)

	events := make(chan model.Event, 1024)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		return p.Parse(gctx, r, events)
	})

	counts := make(map[model.Kind]int)
	enc := json.NewEncoder(os.Stdout)
	g.Go(func() error {
		for ev := range events {
			counts[ev.Kind()]++
			if !jsonOutput || (kinds != nil && !kinds[ev.Kind()]) {
				continue
			}
			if err := enc.Encode(map[string]any{"kind": ev.Kind(), "event": ev}); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	metrics.RecordKinds(counts)

	if !jsonOutput {
		named := make(map[string]int, len(counts))
		for k, n := range counts {
			named[k.String()] = n
		}
		fmt.Println()
		tui.PrintCounts(os.Stdout, named)
		fmt.Println()
	}
	return nil
}
