// Package server exposes the gatekeeper decision lifecycle over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sentinelops/gatekeeper"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Server serves the decision submission and approval API.
type Server struct {
	cfg        Config
	service    *gatekeeper.Service
	router     chi.Router
	httpServer *http.Server
}

// New creates a server around the supplied gatekeeper service.
func New(cfg Config, service *gatekeeper.Service) *Server {
	s := &Server{cfg: cfg, service: service}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/decisions", s.handleSubmit)
		r.Get("/decisions", s.handleList)
		r.Get("/decisions/{id}", s.handleGet)
		r.Get("/decisions/{id}/history", s.handleHistory)
		r.Post("/decisions/{id}/approval", s.handleApproval)
		r.Post("/decisions/{id}/override", s.handleOverride)
		r.Post("/decisions/{id}/expire", s.handleExpire)
		r.Post("/decisions/{id}/executed", s.handleExecuted)
		r.Get("/events", s.handleEvents)
		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

// Router returns the chi router, e.g. for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("gatekeeper server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
