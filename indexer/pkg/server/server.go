package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stakewatch/lake/indexer/pkg/cache"
	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/indexer"
	"github.com/stakewatch/lake/indexer/pkg/metrics"
	"github.com/stakewatch/lake/indexer/pkg/staking"
)

const maxErasLimit = 336

// Views serves the published cache entries.
type Views interface {
	Get(key string) (cache.Entry, bool)
}

// History reads per-validator records from the durable store.
type History interface {
	ListValidatorEras(ctx context.Context, accountID string, limit int) ([]staking.ValidatorEraRecord, error)
	GetValidatorUnclaimedEras(ctx context.Context, accountID string) ([]chain.Era, error)
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	indexer *indexer.Indexer
	httpSrv *http.Server

	views   Views
	history History
	ready   func() bool
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	idx, err := indexer.New(ctx, cfg.IndexerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	s := &Server{
		log:     cfg.IndexerConfig.Logger,
		cfg:     cfg,
		indexer: idx,
		views:   idx.Cache(),
		history: idx.Store(),
		ready:   idx.Ready,
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

// Handler returns the router serving health, version, and the read API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthzHandler)
	r.Get("/readyz", s.readyzHandler)
	r.Get("/version", s.versionHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/validators", s.viewHandler(cache.KeyValidatorsSummary))
		r.Get("/nominators", s.viewHandler(cache.KeyNominatorsSummary))
		r.Get("/onekv", s.viewHandler(cache.KeyQualityProgramSummary))
		r.Get("/onekv/nominators", s.viewHandler(cache.KeyQualityProgramNominators))
		r.Get("/validators/{accountID}/eras", s.validatorErasHandler)
		r.Get("/validators/{accountID}/unclaimed-eras", s.unclaimedErasHandler)
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	s.indexer.Start(ctx)
	defer func() {
		if err := s.indexer.Close(); err != nil {
			s.log.Error("server: failed to close indexer", "error", err)
		}
	}()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("server: http server error causing shutdown", "error", err, "address", s.cfg.ListenAddr)
		return err
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, http.StatusOK, "ok\n")
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		s.log.Debug("readyz: indexer not ready")
		s.writeText(w, http.StatusServiceUnavailable, "indexer not ready\n")
		return
	}
	s.writeText(w, http.StatusOK, "ok\n")
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
}

// viewHandler serves the cached value at key as published, or 404 until the
// first cycle has published it.
func (s *Server) viewHandler(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := s.views.Get(key)
		if !ok {
			http.Error(w, key+" not published yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Last-Modified", entry.UpdatedAt.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(entry.Body); err != nil {
			s.log.Error("failed to write view response", "key", key, "error", err)
		}
	}
}

func (s *Server) validatorErasHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxErasLimit {
			http.Error(w, fmt.Sprintf("limit must be between 1 and %d", maxErasLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := s.history.ListValidatorEras(r.Context(), accountID, limit)
	if err != nil {
		s.log.Error("server: failed to list validator eras", "account", accountID, "error", err)
		http.Error(w, "failed to list validator eras", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []staking.ValidatorEraRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"accountId": accountID, "eras": recs})
}

func (s *Server) unclaimedErasHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountParam(w, r)
	if !ok {
		return
	}

	eras, err := s.history.GetValidatorUnclaimedEras(r.Context(), accountID)
	if err != nil {
		s.log.Error("server: failed to get unclaimed eras", "account", accountID, "error", err)
		http.Error(w, "failed to get unclaimed eras", http.StatusInternalServerError)
		return
	}
	if eras == nil {
		http.Error(w, "no unclaimed eras recorded for "+accountID, http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"accountId": accountID, "unclaimedEras": eras})
}

func (s *Server) accountParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := chi.URLParam(r, "accountID")
	if err := chain.ValidateAccountID(accountID); err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return "", false
	}
	return accountID, true
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write json response", "error", err)
	}
}
