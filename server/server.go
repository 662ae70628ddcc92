package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/ratefeed/storage"
	"github.com/sig-0/ratefeed/storage/types"

	"github.com/sig-0/ratefeed/server/config"
)

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Server is the ops HTTP surface of the ingestion service:
// health, ingestion status and prometheus metrics
type Server struct {
	logger *slog.Logger
	config *config.Config

	storage storage.Storage
	base    types.Currency

	mux *chi.Mux
}

// New creates a new ops server instance
func New(storage storage.Storage, base types.Currency, opts ...Option) (*Server, error) {
	s := &Server{
		logger:  noopLogger,
		storage: storage,
		base:    base,
		config:  config.DefaultConfig(),
		mux:     chi.NewMux(),
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	// Validate the configuration
	if err := config.ValidateConfig(s.config); err != nil {
		return nil, fmt.Errorf("invalid configuration, %w", err)
	}

	// Set up the CORS middleware
	if s.config.CORSConfig != nil {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSConfig.AllowedOrigins,
			AllowedMethods: s.config.CORSConfig.AllowedMethods,
			AllowedHeaders: s.config.CORSConfig.AllowedHeaders,
		})

		s.mux.Use(corsMiddleware.Handler)
	}

	s.mux.Use(httplog.RequestLogger(s.logger, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaOTEL,
		RecoverPanics: true,
		Skip: func(_ *http.Request, respStatus int) bool {
			return respStatus == 404 || respStatus == 405
		},
	}))

	// Register the health check handler
	s.mux.Get("/health", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})

	// Register the ingestion status handler
	s.mux.Get("/status", s.Status)

	// Register the prometheus metrics handler
	s.mux.Handle("/metrics", promhttp.Handler())

	return s, nil
}

// Status reports the ingestion coverage: how many days are stored for the
// configured base currency, and which day is the latest
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	dates, err := s.storage.ListDates(r.Context(), s.base)
	if err != nil {
		http.Error(w, "unable to fetch stored dates", http.StatusServiceUnavailable)

		return
	}

	status := struct {
		Base      string `json:"base"`
		Days      int    `json:"days"`
		LatestDay string `json:"latest_day,omitempty"`
	}{
		Base: s.base.String(),
		Days: len(dates),
	}

	if len(dates) > 0 {
		status.LatestDay = dates[len(dates)-1].Format(time.DateOnly)
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("unable to encode status", "err", err)
	}
}

// Serve serves the ops endpoints
func (s *Server) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 60 * time.Second,
	}

	group, gCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer s.logger.Info("server shut down")

		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}

		s.logger.Info(
			fmt.Sprintf(
				"server started at %s",
				ln.Addr().String(),
			),
		)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-gCtx.Done()

		s.logger.Info("server to be shutdown")

		wsCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		return server.Shutdown(wsCtx)
	})

	return group.Wait()
}
