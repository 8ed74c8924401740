package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fdg312/cdr-hub/internal/cdr"
	"github.com/fdg312/cdr-hub/internal/config"
)

// Server представляет HTTP сервер
type Server struct {
	config   *config.Config
	mux      *http.ServeMux
	logger   *zap.Logger
	fetcher  *cdr.Fetcher
	gatherer prometheus.Gatherer
	http     *http.Server
}

// New создаёт новый HTTP сервер. gatherer may be nil, in which case /metrics
// is not registered.
func New(cfg *config.Config, fetcher *cdr.Fetcher, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:   cfg,
		mux:      http.NewServeMux(),
		logger:   logger,
		fetcher:  fetcher,
		gatherer: gatherer,
	}

	s.routes()
	return s
}

// routes регистрирует маршруты
func (s *Server) routes() {
	// Health check
	s.mux.HandleFunc("/healthz", s.handleHealthz)

	cdrHandlers := cdr.NewHandlers(s.fetcher)

	// POST /v1/cdr/imports - run one report fetch and save the CSV
	s.mux.HandleFunc("POST /v1/cdr/imports", cdrHandlers.HandleImport)

	// GET /v1/cdr/imports - list saved reports
	s.mux.HandleFunc("GET /v1/cdr/imports", cdrHandlers.HandleHistory)

	// GET /v1/cdr/imports/{filename} - download a saved report
	s.mux.HandleFunc("GET /v1/cdr/imports/{filename}", cdrHandlers.HandleDownload)

	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// handleHealthz возвращает статус сервера
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Handler returns the router wrapped in the middleware chain
// (outermost first): CORS → Rate Limit → Access log → Router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = AccessLogMiddleware(s.logger, handler)
	handler = RateLimitMiddleware(s.config, handler)
	handler = CORSMiddleware(s.config, handler)
	return handler
}

// Start запускает HTTP сервер и блокирует до Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      importWriteTimeout(s.config),
	}

	s.logger.Info("server listening", zap.String("addr", "http://localhost"+addr))
	s.logger.Info("health check", zap.String("url", "http://localhost"+addr+"/healthz"))
	s.logger.Info("cdr imports api", zap.String("url", "http://localhost"+addr+"/v1/cdr/imports"))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// importWriteTimeout bounds one synchronous import: the create call, the
// polling window, a poll started just before the deadline, the download and
// some slack for storing and writing the result.
func importWriteTimeout(cfg *config.Config) time.Duration {
	seconds := cfg.Webex.ControlTimeoutSeconds + // create
		cfg.Fetch.PollTimeoutSeconds +
		cfg.Webex.ControlTimeoutSeconds + // last poll
		cfg.Webex.DownloadTimeoutSeconds +
		30
	return time.Duration(seconds) * time.Second
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
