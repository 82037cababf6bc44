package dashboard

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/hepviz/go-forecast-dashboard/internal/accuracy"
	"github.com/hepviz/go-forecast-dashboard/internal/cache"
	"github.com/hepviz/go-forecast-dashboard/internal/config"
	"github.com/hepviz/go-forecast-dashboard/internal/demo"
	pipeerr "github.com/hepviz/go-forecast-dashboard/internal/errors"
	"github.com/hepviz/go-forecast-dashboard/internal/logger"
	"github.com/hepviz/go-forecast-dashboard/internal/models"
	"github.com/hepviz/go-forecast-dashboard/internal/normalize"
	"github.com/hepviz/go-forecast-dashboard/internal/source"
)

// Server is the dashboard HTTP application. It owns the source-to-chart
// flow: load raw table, run the normalization pipeline through the result
// cache, derive accuracy metrics, render.
type Server struct {
	cfg        *config.AppConfig
	logger     *slog.Logger
	sources    *source.Loader
	results    *cache.Loader
	normalizer *normalize.Normalizer
	httpServer *http.Server

	mu      sync.RWMutex
	current *source.Result // most recent upload, takes precedence over config

	now func() time.Time
}

// NewServer wires the dashboard application together.
func NewServer(cfg *config.AppConfig, log *slog.Logger, sources *source.Loader, results *cache.Loader) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		logger:     log,
		sources:    sources,
		results:    results,
		normalizer: normalize.New(log),
		now:        time.Now,
	}
}

// view is everything the handlers need to answer one request.
type view struct {
	entry      *cache.Entry
	metrics    *models.MetricsTable
	sourceName string
	demoMode   bool
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/charts/forecast", s.handleForecastChart).Methods(http.MethodGet)
	r.HandleFunc("/charts/metrics", s.handleMetricsChart).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/download.csv", s.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/metrics.csv", s.handleMetricsCSV).Methods(http.MethodGet)
	r.HandleFunc("/patients.csv", s.handlePatientsCSV).Methods(http.MethodGet)
	r.HandleFunc("/patients/anonymize", s.handleAnonymize).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Use(s.requestIDMiddleware, s.loggingMiddleware)
	return r
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  parseDurationOr(s.cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: parseDurationOr(s.cfg.Server.WriteTimeout, 30*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard server listening", "addr", s.cfg.Server.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		parseDurationOr(s.cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	s.logger.Info("dashboard server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// requestIDMiddleware tags every request with an ID for log correlation.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), requestID)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", logger.GetRequestID(r.Context()),
			"duration", time.Since(start))
	})
}

// loadView resolves the active source, runs it through the cached pipeline,
// and computes metrics. When no source is available or the pipeline fails
// terminally, the configured demo series is substituted; the pipeline itself
// never falls back.
func (s *Server) loadView(ctx context.Context) (*view, error) {
	result, err := s.resolveSource(ctx)
	if err == nil && result != nil {
		entry, pipelineErr := s.runPipeline(ctx, result)
		if pipelineErr == nil {
			return &view{
				entry:      entry,
				metrics:    accuracy.Compute(entry.Table),
				sourceName: result.Name,
			}, nil
		}
		err = pipelineErr
	}

	if err != nil {
		if !s.cfg.Demo.Enabled {
			return nil, err
		}
		s.logger.Warn("falling back to demo data", "error", err)
	} else if !s.cfg.Demo.Enabled {
		return nil, pipeerr.NewSource("no source configured", nil)
	}

	return s.demoView(), nil
}

// resolveSource returns the active raw table: the latest upload if present,
// else the configured file or URL. A nil result with nil error means no
// source is configured at all.
func (s *Server) resolveSource(ctx context.Context) (*source.Result, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current != nil {
		return current, nil
	}

	switch {
	case s.cfg.Source.Path != "":
		return s.sources.FromFile(s.cfg.Source.Path)
	case s.cfg.Source.URL != "":
		return s.sources.FromURL(ctx, s.cfg.Source.URL)
	}
	return nil, nil
}

// runPipeline normalizes a raw table through the result cache.
func (s *Server) runPipeline(ctx context.Context, result *source.Result) (*cache.Entry, error) {
	key := cache.Key{
		SourceID:    result.ID,
		Fingerprint: cache.Fingerprint(result.Table.Columns()),
	}
	return s.results.Do(ctx, key, func(ctx context.Context) (*cache.Entry, error) {
		table, report, err := s.normalizer.Normalize(result.Table, normalize.Options{
			DateColumn:  s.cfg.Pipeline.DateColumn,
			ValueColumn: s.cfg.Pipeline.ValueColumn,
			SampleSize:  s.cfg.Pipeline.SampleSize,
		})
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Table: table, Report: report}, nil
	})
}

func (s *Server) demoView() *view {
	table := demo.Forecast(s.now(), s.cfg.Demo.Days, s.cfg.Demo.Seed)
	report := &normalize.Report{
		DateColumn:  "date",
		ValueColumn: "predicted_median",
		PI80Source:  normalize.BoundSupplied,
		PI95Source:  normalize.BoundSupplied,
		RowsIn:      table.Len(),
		RowsOut:     table.Len(),
	}
	return &view{
		entry:      &cache.Entry{Table: table, Report: report, StoredAt: s.now()},
		metrics:    accuracy.Compute(table),
		sourceName: "simulated demo series",
		demoMode:   true,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	v, err := s.loadView(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	var patients []demo.Patient
	if s.cfg.Demo.Patients > 0 {
		patients = demo.Patients(s.now(), s.cfg.Demo.Patients, s.cfg.Demo.Seed)
	}

	data := newPageData(s.cfg.AppName, v.sourceName, v.demoMode, v.entry.Table, v.metrics, v.entry.Report, patients)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("render dashboard page", "error", err)
	}
}

func (s *Server) handleForecastChart(w http.ResponseWriter, r *http.Request) {
	v, err := s.loadView(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := BuildForecastChart(v.entry.Table).Render(w); err != nil {
		s.logger.Error("render forecast chart", "error", err)
	}
}

func (s *Server) handleMetricsChart(w http.ResponseWriter, r *http.Request) {
	v, err := s.loadView(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := BuildMetricsChart(v.metrics).Render(w); err != nil {
		s.logger.Error("render metrics chart", "error", err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.Source.UploadMaxBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.Source.UploadMaxBytes+1))
	if err != nil {
		http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(data)) > s.cfg.Source.UploadMaxBytes {
		http.Error(w, "upload exceeds size limit", http.StatusRequestEntityTooLarge)
		return
	}

	result, err := s.sources.FromBytes(header.Filename, data)
	if err != nil {
		http.Error(w, fmt.Sprintf("%v", err), http.StatusBadRequest)
		return
	}

	// Run the pipeline now so a broken upload is rejected instead of
	// silently replaced by demo data on the next page view.
	if _, err := s.runPipeline(r.Context(), result); err != nil {
		s.renderError(w, r, err)
		return
	}

	s.mu.Lock()
	s.current = result
	s.mu.Unlock()

	s.logger.Info("upload accepted",
		"name", header.Filename,
		"rows", result.Table.NumRows(),
		"request_id", logger.GetRequestID(r.Context()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	v, err := s.loadView(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="forecast_normalized.csv"`)
	if err := v.entry.Table.WriteCSV(w); err != nil {
		s.logger.Error("write normalized csv", "error", err)
	}
}

func (s *Server) handleMetricsCSV(w http.ResponseWriter, r *http.Request) {
	v, err := s.loadView(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="forecast_metrics.csv"`)
	if err := v.metrics.WriteCSV(w); err != nil {
		s.logger.Error("write metrics csv", "error", err)
	}
}

func (s *Server) handlePatientsCSV(w http.ResponseWriter, r *http.Request) {
	patients := demo.Patients(s.now(), s.cfg.Demo.Patients, s.cfg.Demo.Seed)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="patients_simulated.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"patient_hash", "date", "predicted_risk", "probability", "top_feature_1", "top_feature_2"})
	for _, p := range patients {
		cw.Write([]string{
			p.Hash,
			p.Date,
			p.Risk,
			strconv.FormatFloat(p.Probability, 'f', 2, 64),
			p.TopFeature1,
			p.TopFeature2,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("write patients csv", "error", err)
	}
}

// handleAnonymize strips identity columns from an uploaded patient CSV and
// streams the cleaned file back.
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.Source.UploadMaxBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="patients_anonymized.csv"`)
	if err := demo.AnonymizePatientCSV(file, w); err != nil {
		s.logger.Error("anonymize patient csv", "error", err, "name", header.Filename)
		http.Error(w, "anonymize failed: "+err.Error(), http.StatusUnprocessableEntity)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"app":     s.cfg.AppName,
		"version": s.cfg.Version,
	})
}

// renderError maps pipeline errors to HTTP statuses: data problems are the
// client's to fix, everything else is a server fault.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch pipeerr.KindOf(err) {
	case pipeerr.KindMissingRequiredColumn, pipeerr.KindDateResolution, pipeerr.KindEmptyResult:
		status = http.StatusUnprocessableEntity
	case pipeerr.KindSource:
		status = http.StatusBadGateway
	}

	s.logger.Error("request failed",
		"path", r.URL.Path,
		"status", status,
		"request_id", logger.GetRequestID(r.Context()),
		"error", err)
	http.Error(w, fmt.Sprintf("%v", err), status)
}
