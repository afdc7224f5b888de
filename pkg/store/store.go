// Package store loads every profile found in a Source, parses its base log
// and keeps the per-profile aggregates for the query surfaces.
//
// A load reads all profiles concurrently. A profile that fails to load is
// recorded in LoadErrors and does not stop the others. Snapshots are
// immutable; a reload builds a new one and swaps it in.
package store

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/routelens/routelens/internal/model"
	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/metrics"
	"github.com/routelens/routelens/pkg/parser"
	"github.com/routelens/routelens/pkg/source"
	"github.com/routelens/routelens/pkg/stock"
	"github.com/routelens/routelens/pkg/usage"
)

var (
	// ProfileFilePattern matches the per-region deficit and surplus files
	// that name a profile.
	ProfileFilePattern = regexp.MustCompile(`^TrRAt_(.+?)_(?:OW|NW|AR|EN|CT)_remaining-(?:deficit|surplus)\.json$`)

	// BaseLogPattern matches base log files.
	BaseLogPattern = regexp.MustCompile(`^TrRAt_([a-zA-Z0-9_\s-]+?)_base\.log$`)
)

// ErrAlreadyLoading is returned when Load is called during another load.
var ErrAlreadyLoading = errors.New("store: already loading")

// BaseLogName returns the base log file name of profile.
func BaseLogName(profile string) string {
	return "TrRAt_" + profile + "_base.log"
}

// Profile is the parsed data of one profile.
type Profile struct {
	Name     string
	Events   []model.Event
	Counts   map[model.Kind]int
	Stock    *stock.Data
	Usage    usage.Series
	LoadedAt time.Time
}

// HasBaseLog reports whether a base log was found for the profile.
func (p *Profile) HasBaseLog() bool { return p.Events != nil }

// LoadErrors holds the failures of one load, keyed the way they occurred.
type LoadErrors struct {
	Profiles string            `json:"profiles,omitempty"`
	BaseLogs map[string]string `json:"baseLogs,omitempty"`
}

// Empty reports whether nothing failed.
func (e LoadErrors) Empty() bool {
	return e.Profiles == "" && len(e.BaseLogs) == 0
}

// Snapshot is the result of one load.
type Snapshot struct {
	// Names lists the discovered profiles, sorted.
	Names    []string
	Usage    usage.Series
	Errors   LoadErrors
	LoadedAt time.Time
	Duration time.Duration

	profiles map[string]*Profile
}

// Profile returns the named profile.
func (s *Snapshot) Profile(name string) (*Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return nil, rlerrors.UnknownProfile(name)
	}
	return p, nil
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLocation sets the zone base-log timestamps are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.classifier = parser.NewClassifier(loc) }
}

// WithConcurrency bounds the number of profiles read at once.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithProgress registers a callback run after each profile finishes.
func WithProgress(fn func(done, total int)) Option {
	return func(s *Store) { s.progress = fn }
}

// Store owns the current snapshot.
type Store struct {
	src         source.Source
	classifier  *parser.Classifier
	logger      *zap.Logger
	tracer      trace.Tracer
	concurrency int
	progress    func(done, total int)

	loading atomic.Bool

	mu          sync.RWMutex
	snap        *Snapshot
	subscribers []func(*Snapshot)
}

// New creates a Store reading from src. Nothing is loaded until Load.
func New(src source.Source, opts ...Option) *Store {
	s := &Store{
		src:         src,
		classifier:  parser.NewClassifier(time.Local),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("github.com/routelens/routelens/pkg/store"),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Source returns the source the store reads from.
func (s *Store) Source() source.Source { return s.src }

// Snapshot returns the current snapshot, or nil before the first load.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Profile looks name up in the current snapshot.
func (s *Store) Profile(name string) (*Profile, error) {
	snap := s.Snapshot()
	if snap == nil {
		return nil, rlerrors.UnknownProfile(name)
	}
	return snap.Profile(name)
}

// Subscribe registers fn to run after every successful load.
func (s *Store) Subscribe(fn func(*Snapshot)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Reload is Load labelled with what triggered it.
func (s *Store) Reload(ctx context.Context, trigger string) (*Snapshot, error) {
	metrics.Reloads.WithLabelValues(trigger).Inc()
	s.logger.Info("reloading profiles", zap.String("trigger", trigger), zap.Stringer("source", s.src))
	return s.Load(ctx)
}

// Load discovers and loads every profile, then replaces the current
// snapshot. Per-profile failures land in Snapshot.Errors; only cancellation
// or a concurrent load make Load itself fail.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	if !s.loading.CompareAndSwap(false, true) {
		return nil, ErrAlreadyLoading
	}
	defer s.loading.Store(false)

	ctx, span := s.tracer.Start(ctx, "store.Load")
	defer span.End()
	start := time.Now()

	snap := &Snapshot{profiles: make(map[string]*Profile)}

	names, err := DiscoverProfiles(ctx, s.src)
	if err != nil {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "canceled")
			return nil, rlerrors.ContextCanceled("load profiles")
		}
		snap.Errors.Profiles = err.Error()
		s.logger.Warn("profile discovery failed", zap.Error(err))
	}
	snap.Names = names
	span.SetAttributes(attribute.Int("profiles", len(names)))

	results := make([]*Profile, len(names))
	loadErrs := make([]error, len(names))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i], loadErrs[i] = s.loadProfile(gctx, name)
			n := done.Add(1)
			if s.progress != nil {
				s.progress(int(n), len(names))
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "canceled")
		return nil, rlerrors.ContextCanceled("load profiles")
	}

	var series []usage.Series
	for i, name := range names {
		if loadErrs[i] != nil {
			if snap.Errors.BaseLogs == nil {
				snap.Errors.BaseLogs = make(map[string]string)
			}
			snap.Errors.BaseLogs[name] = loadErrs[i].Error()
			continue
		}
		snap.profiles[name] = results[i]
		series = append(series, results[i].Usage)
	}
	snap.Usage = usage.Merge(series...)
	snap.LoadedAt = time.Now()
	snap.Duration = time.Since(start)

	metrics.Profiles.Set(float64(len(snap.profiles)))
	s.logger.Info("profiles loaded",
		zap.Int("profiles", len(snap.profiles)),
		zap.Int("failed", len(snap.Errors.BaseLogs)),
		zap.Duration("duration", snap.Duration))

	s.mu.Lock()
	s.snap = snap
	subs := append([]func(*Snapshot){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return snap, nil
}

func (s *Store) loadProfile(ctx context.Context, name string) (p *Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "store.loadProfile", trace.WithAttributes(attribute.String("profile", name)))
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.ProfileLoads.WithLabelValues(metrics.Result(err)).Inc()
		metrics.LoadDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	p = &Profile{Name: name, LoadedAt: time.Now()}

	content, err := s.src.ReadText(ctx, BaseLogName(name))
	if rlerrors.IsNotFound(err) {
		s.logger.Debug("profile has no base log", zap.String("profile", name))
		p.Stock = stock.Aggregate(nil)
		return p, nil
	}
	if err != nil {
		s.logger.Warn("base log load failed", zap.String("profile", name), zap.Error(err))
		return nil, err
	}

	p.Events = s.classifier.ParseText(content)
	p.Counts = parser.CountKinds(p.Events)
	p.Stock = stock.Aggregate(p.Events)
	p.Usage = usage.FromEvents(p.Events)
	metrics.RecordKinds(p.Counts)

	span.SetAttributes(attribute.Int("events", len(p.Events)))
	s.logger.Debug("profile loaded",
		zap.String("profile", name),
		zap.Int("events", len(p.Events)),
		zap.Int("unparsed", p.Counts[model.KindGeneric]),
		zap.Int("goods", p.Stock.Goods.Len()))
	return p, nil
}

// DiscoverProfiles returns the sorted, unique profile names found in the
// deficit/surplus file names and the base log names of src.
func DiscoverProfiles(ctx context.Context, src source.Source) ([]string, error) {
	found := stock.NewSet()

	for _, pattern := range []*regexp.Regexp{ProfileFilePattern, BaseLogPattern} {
		files, err := src.ListFiles(ctx, pattern)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if m := pattern.FindStringSubmatch(f); m != nil {
				found.Add(m[1])
			}
		}
	}
	return found.Sorted(), nil
}

// ProfileNames returns the names of the profiles in snap that have a base
// log, sorted.
func (s *Snapshot) ProfileNames() []string {
	names := make([]string, 0, len(s.profiles))
	for name, p := range s.profiles {
		if p.HasBaseLog() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
