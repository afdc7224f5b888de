// Package server provides the HTTP JSON API over the profile store.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/model"
	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/metrics"
	"github.com/routelens/routelens/pkg/stock"
	"github.com/routelens/routelens/pkg/store"
	"github.com/routelens/routelens/pkg/usage"
)

// Server handles HTTP requests.
type Server struct {
	store       *store.Store
	broker      *SSEBroker
	router      chi.Router
	logger      *zap.Logger
	corsOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCORSOrigins sets the allowed origins; "*" allows any.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// New creates a server over st. Every completed load is announced to SSE
// clients as a "reload" event.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{
		store:  st,
		broker: NewSSEBroker(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	st.Subscribe(func(snap *store.Snapshot) {
		s.broker.Publish(SSEEvent{Event: "reload", Data: summarize(snap)})
	})

	s.setupRoutes()
	return s
}

// Broker returns the SSE broker.
func (s *Server) Broker() *SSEBroker { return s.broker }

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/profiles", s.handleProfiles)
		r.Get("/errors", s.handleErrors)
		r.Get("/usage", s.handleUsage)
		r.Post("/reload", s.handleReload)
		r.Get("/events", s.broker.Handler(func() any { return summarize(s.store.Snapshot()) }))

		r.Route("/profiles/{profile}", func(r chi.Router) {
			r.Get("/", s.handleProfile)
			r.Get("/stock", s.handleStock)
			r.Post("/stock", s.handleStockQuery)
			r.Get("/reasons", s.handleReasons)
			r.Get("/events", s.handleEvents)
		})
	})

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Summary describes a snapshot.
type Summary struct {
	Profiles []string         `json:"profiles"`
	Loaded   []string         `json:"loaded"`
	LoadedAt time.Time        `json:"loadedAt"`
	Duration string           `json:"duration"`
	Errors   store.LoadErrors `json:"errors"`
}

func summarize(snap *store.Snapshot) *Summary {
	if snap == nil {
		return nil
	}
	return &Summary{
		Profiles: nonNil(snap.Names),
		Loaded:   nonNil(snap.ProfileNames()),
		LoadedAt: snap.LoadedAt,
		Duration: snap.Duration.String(),
		Errors:   snap.Errors,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"status": "ok",
		"loaded": s.store.Snapshot() != nil,
	})
}

func (s *Server) snapshot(w http.ResponseWriter) *store.Snapshot {
	snap := s.store.Snapshot()
	if snap == nil {
		jsonError(w, "data not loaded yet", http.StatusServiceUnavailable)
	}
	return snap
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	jsonResponse(w, summarize(snap))
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	jsonResponse(w, snap.Errors)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Reload(r.Context(), "api")
	if errors.Is(err, store.ErrAlreadyLoading) {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, summarize(snap))
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) *store.Profile {
	if s.snapshot(w) == nil {
		return nil
	}
	p, err := s.store.Profile(chi.URLParam(r, "profile"))
	if err != nil {
		writeError(w, err)
		return nil
	}
	return p
}

// ProfileInfo is the aggregate overview of one profile.
type ProfileInfo struct {
	Name             string             `json:"name"`
	HasBaseLog       bool               `json:"hasBaseLog"`
	Events           int                `json:"events"`
	Counts           map[model.Kind]int `json:"counts"`
	Goods            stock.Set          `json:"goods"`
	Areas            stock.Set          `json:"areas"`
	Regions          stock.Set          `json:"regions"`
	Categories       stock.Set          `json:"categories"`
	AreaRegions      map[string]string  `json:"areaRegions"`
	LatestIterations map[string]int64   `json:"latestIterations"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p := s.profile(w, r)
	if p == nil {
		return
	}
	jsonResponse(w, ProfileInfo{
		Name:             p.Name,
		HasBaseLog:       p.HasBaseLog(),
		Events:           len(p.Events),
		Counts:           p.Counts,
		Goods:            p.Stock.Goods,
		Areas:            p.Stock.Areas,
		Regions:          p.Stock.Regions,
		Categories:       p.Stock.Categories,
		AreaRegions:      p.Stock.AreaRegions,
		LatestIterations: p.Stock.LatestIterations,
	})
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	p := s.profile(w, r)
	if p == nil {
		return
	}
	q, err := parseQuery(p.Stock, r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, stock.Run(p.Stock, q))
}

// handleStockQuery runs a JSON query body. Fields left out of the body keep
// their default values.
func (s *Server) handleStockQuery(w http.ResponseWriter, r *http.Request) {
	p := s.profile(w, r)
	if p == nil {
		return
	}
	q := stock.DefaultQuery(p.Stock)
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		jsonError(w, "invalid query body: "+err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, stock.Run(p.Stock, q))
}

func (s *Server) handleReasons(w http.ResponseWriter, r *http.Request) {
	p := s.profile(w, r)
	if p == nil {
		return
	}
	jsonResponse(w, map[string]any{
		"categories": p.Stock.Categories,
		"tree":       stock.BuildReasonTree(p.Stock.ExactReasons.Sorted()),
	})
}

// EventRecord is an event tagged with its kind.
type EventRecord struct {
	Kind  model.Kind  `json:"kind"`
	Event model.Event `json:"event"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	p := s.profile(w, r)
	if p == nil {
		return
	}

	values := r.URL.Query()
	var kinds map[model.Kind]bool
	if v := values.Get("kind"); v != "" {
		kinds = make(map[model.Kind]bool)
		for name := range splitSet([]string{v}, ",") {
			k, ok := model.ParseKind(name)
			if !ok {
				writeError(w, badParam("kind", name))
				return
			}
			kinds[k] = true
		}
	}
	offset, err := intParam(values.Get("offset"), 0)
	if err != nil {
		writeError(w, badParam("offset", values.Get("offset")))
		return
	}
	limit, err := intParam(values.Get("limit"), 500)
	if err != nil {
		writeError(w, badParam("limit", values.Get("limit")))
		return
	}

	out := []EventRecord{}
	skipped := 0
	for _, ev := range p.Events {
		if kinds != nil && !kinds[ev.Kind()] {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, EventRecord{Kind: ev.Kind(), Event: ev})
	}
	jsonResponse(w, out)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}

// UsageReport is the ship usage of all profiles with summary statistics.
type UsageReport struct {
	Series  usage.Series `json:"series"`
	Regular usage.Stats  `json:"regular"`
	Hub     usage.Stats  `json:"hub"`
	// Moving averages of ships available, present when window > 1.
	RegularAvg []float64 `json:"regularAvg,omitempty"`
	HubAvg     []float64 `json:"hubAvg,omitempty"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	window, err := intParam(r.URL.Query().Get("window"), 0)
	if err != nil {
		writeError(w, badParam("window", r.URL.Query().Get("window")))
		return
	}

	report := UsageReport{
		Series:  snap.Usage,
		Regular: usage.Summarize(snap.Usage.Regular),
		Hub:     usage.Summarize(snap.Usage.Hub),
	}
	if window > 1 {
		report.RegularAvg = usage.MovingAverage(usage.Ships(snap.Usage.Regular), window)
		report.HubAvg = usage.MovingAverage(usage.Ships(snap.Usage.Hub), window)
	}
	jsonResponse(w, report)
}

// Helper functions

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeError maps error codes to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch rlerrors.GetCode(err) {
	case rlerrors.CodeUnknownTarget, rlerrors.CodeFileNotFound:
		status = http.StatusNotFound
	case rlerrors.CodeInvalidFormat:
		status = http.StatusBadRequest
	case rlerrors.CodeContextCanceled:
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  string(rlerrors.GetCode(err)),
	})
}
