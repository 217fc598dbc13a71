// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/patterncore/pattern/pkg/auth"
	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/datasource"
	"github.com/patterncore/pattern/pkg/embedding"
	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/observability"
	"github.com/patterncore/pattern/pkg/router"
	"github.com/patterncore/pattern/pkg/runtime"
)

// Options wires the already-constructed collaborators the admin surface
// drives. Building those collaborators (the entity store connection,
// the model/embedding provider registries, the OAuth resolver) is the
// composition root's job (cmd/patternd), not the server's — Server only
// knows how to expose them over HTTP.
type Options struct {
	Config *config.ServerConfig

	Runtime     *runtime.Runtime
	Store       *entity.Store
	Router      *router.Router
	DataSources *datasource.Coordinator

	// Embeddings embeds a search query's text before
	// handleSearchMemories hands the vector to the store. Memory search
	// returns 501 when left nil.
	Embeddings embedding.Provider

	// Auth is nil when authentication is disabled (config.AuthConfig
	// with Enabled: false), in which case every route is open.
	Auth auth.TokenValidator

	Observability *observability.Manager

	Log *slog.Logger
}

// Server is the admin HTTP surface: health/readiness/metrics plus a
// thin JSON API over the runtime, entity store, router, and data-source
// coordinator.
type Server struct {
	cfg         *config.ServerConfig
	runtime     *runtime.Runtime
	store       *entity.Store
	router      *router.Router
	dataSources *datasource.Coordinator
	embeddings  embedding.Provider
	auth        auth.TokenValidator
	obs         *observability.Manager
	log         *slog.Logger

	httpServer *http.Server
}

// New builds a Server from opts but does not start listening; call
// ListenAndServe or Shutdown to control its lifecycle.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if opts.Runtime == nil {
		return nil, fmt.Errorf("server: runtime is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("server: entity store is required")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("server: router is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:         opts.Config,
		runtime:     opts.Runtime,
		store:       opts.Store,
		router:      opts.Router,
		dataSources: opts.DataSources,
		embeddings:  opts.Embeddings,
		auth:        opts.Auth,
		obs:         opts.Observability,
		log:         log,
	}

	s.httpServer = &http.Server{
		Addr:         opts.Config.Addr(),
		Handler:      s.routes(),
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
	}

	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.obs != nil {
		r.Use(observability.HTTPMiddleware(s.obs.Tracer(), s.obs.Metrics()))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.obs != nil && s.obs.MetricsEnabled() {
		r.Handle(s.obs.MetricsEndpoint(), s.obs.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		if s.auth != nil {
			v1.Use(s.requireAuth)
		}

		v1.Route("/users/{ownerID}/agents", func(ar chi.Router) {
			ar.Get("/", s.handleListAgents)
			ar.Post("/", s.handleCreateAgent)
		})

		v1.Route("/agents/{agentID}", func(ar chi.Router) {
			ar.Get("/", s.handleGetAgent)
			ar.Patch("/", s.handleUpdateAgent)
			ar.Get("/rules", s.handleGetRules)
			ar.Put("/rules", s.handlePutRules)

			ar.Get("/messages", s.handleListMessages)
			ar.Post("/messages", s.handleSendMessage)

			ar.Get("/memories", s.handleListMemories)
			ar.Post("/memories", s.handleCreateMemory)
			ar.Post("/memories/search", s.handleSearchMemories)
		})

		v1.Route("/datasources", func(dr chi.Router) {
			dr.Post("/filetail", s.handleRegisterFileTail)
			dr.Delete("/{sourceID}", s.handleUnregisterDataSource)
			dr.Post("/{sourceID}/notifications", s.handleSetDataSourceNotifications)
			dr.Post("/{sourceID}/pause", s.handlePauseDataSource)
			dr.Post("/{sourceID}/resume", s.handleResumeDataSource)
			dr.Get("/{sourceID}/buffer-stats", s.handleGetBufferStats)
		})

		v1.Post("/router/send", s.handleRouterSend)
	})

	return r
}

// ListenAndServe starts the HTTP listener and blocks until it returns
// (ErrServerClosed on a clean Shutdown, any other error otherwise).
func (s *Server) ListenAndServe() error {
	s.log.Info("admin server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener, giving in-flight
// requests up to cfg.ShutdownGrace to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// requireAuth gates a route group behind s.auth, the interface form of
// auth.HTTPMiddleware: that helper is a method on the concrete
// *auth.JWTValidator, but Options.Auth is typed as the interface so
// tests can substitute a stub, so the bearer-token extraction is
// reimplemented here against the interface instead.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if header == "" || !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or malformed Authorization header"})
			return
		}

		claims, err := s.auth.ValidateToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized: " + err.Error()})
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
