// Package web serves the prediction forms, a JSON API and the operational
// endpoints. Every request is synchronous: one form submission or API call
// runs the pipeline once and returns its result or a typed error.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"pervious-predictor/internal/metrics"
	"pervious-predictor/internal/ml"
	"pervious-predictor/internal/schema"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templatesFS embed.FS

const appTitle = "Pervious Concrete Predictor"

// Variant is one prediction form. Pipeline is nil when the artifacts failed
// to load; the form is then served disabled with Err.
type Variant struct {
	Name     string
	Schema   *schema.Schema
	Pipeline *ml.Pipeline
	Err      error
}

// NewVariant binds a loaded pipeline, or the load error when p is nil.
func NewVariant(name string, p *ml.Pipeline, loadErr error) (*Variant, error) {
	v := &Variant{Name: name, Pipeline: p, Err: loadErr}
	if p != nil {
		v.Schema = p.Artifacts().Schema
		return v, nil
	}
	if loadErr == nil {
		return nil, fmt.Errorf("variant %s has neither a pipeline nor a load error", name)
	}
	s, err := schema.Builtin(name)
	if err != nil {
		return nil, err
	}
	v.Schema = s
	return v, nil
}

func (v *Variant) Loaded() bool {
	return v.Pipeline != nil
}

// Options configures the server.
type Options struct {
	Addr           string
	RequestTimeout time.Duration
	Metrics        *metrics.Wrapper    // optional
	Gatherer       prometheus.Gatherer // defaults to prometheus.DefaultGatherer
}

// Server is the HTTP front end.
type Server struct {
	variants map[string]*Variant
	order    []string
	opts     Options
	tmpl     *template.Template
	router   *mux.Router
	server   *http.Server
	listener net.Listener
}

// New builds the router. Variants keep the order given.
func New(variants []*Variant, opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		variants: make(map[string]*Variant, len(variants)),
		opts:     opts,
		tmpl:     tmpl,
	}
	for _, v := range variants {
		if _, dup := s.variants[v.Name]; dup {
			return nil, fmt.Errorf("duplicate variant %s", v.Name)
		}
		s.variants[v.Name] = v
		s.order = append(s.order, v.Name)
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/", s.handleIndex).Methods("GET").Name("index")
	r.HandleFunc("/health", s.handleHealth).Methods("GET").Name("health")
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET").Name("metrics")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/{variant}/schema", s.handleSchema).Methods("GET").Name("schema")
	api.HandleFunc("/{variant}/predict", s.handlePredictAPI).Methods("POST").Name("predict")

	r.HandleFunc("/{variant}", s.handleForm).Methods("GET").Name("form")
	r.HandleFunc("/{variant}", s.handleSubmit).Methods("POST").Name("submit")
	s.router = r

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background. Bind errors
// are returned; serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		log.Info().
			Str("address", ln.Addr().String()).
			Strs("variants", s.order).
			Msg("Starting web server")

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()
	return nil
}

// Addr is the bound address once Start returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown web server")
		return err
	}
	log.Info().Msg("Web server stopped")
	return nil
}

func (s *Server) variant(r *http.Request) (*Variant, bool) {
	v, ok := s.variants[variantName(r)]
	return v, ok
}

func variantName(r *http.Request) string {
	return mux.Vars(r)["variant"]
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if cr := mux.CurrentRoute(r); cr != nil && cr.GetName() != "" {
			route = cr.GetName()
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.RequestInc(route, fmt.Sprint(rec.status))
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// statusFor maps a failure to an HTTP status: configuration problems are
// 503, bad input is 422, everything else 500.
func statusFor(err error) int {
	if errors.Is(err, schema.ErrMissingField) ||
		errors.Is(err, schema.ErrInvalidValue) ||
		errors.Is(err, schema.ErrUnknownOption) {
		return http.StatusUnprocessableEntity
	}
	kind, ok := ml.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case ml.KindConfiguration:
		return http.StatusServiceUnavailable
	case ml.KindTransform:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
