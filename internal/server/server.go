package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"skidoodle/watchparty/internal/watch"
)

// Options configures a Server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	WatchInterval  time.Duration
	Metrics        bool
}

// Server is the main application orchestrator.
type Server struct {
	opts       Options
	store      watch.Store
	httpServer *http.Server
	hub        *Hub
	watcher    *Watcher
	activity   *ActivityLog
	advancer   *watch.Advancer
	upgrader   websocket.Upgrader
}

// NewServer creates a new, fully configured server around store.
func NewServer(store watch.Store, opts Options) *Server {
	hub := NewHub()
	activity := NewActivityLog()

	s := &Server{
		opts:     opts,
		store:    store,
		hub:      hub,
		activity: activity,
		watcher:  NewWatcher(store, hub, activity, opts.WatchInterval),
		advancer: watch.NewAdvancer(store, watch.SystemUser, nil),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
	return s
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.opts.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/health", healthHandler)
	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/ws", s.handleWebsocket)
	r.Get("/", s.handleRoot)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))

		r.Get("/queue", s.handleGetQueue)
		r.Put("/queue", s.handlePutQueue)
		r.Post("/queue", s.handleAddToQueue)
		r.Post("/queue/save", s.handleSaveQueue)
		r.Post("/queue/enqueue", s.handleEnqueue)
		r.Get("/queue/updates", s.handleQueueUpdates)
		r.Patch("/queue/{index}", s.handleUpdateQueueItem)

		r.Get("/now-playing", s.handleGetNowPlaying)
		r.Put("/now-playing", s.handlePutNowPlaying)
		r.Post("/advance", s.handleAdvance)

		r.Get("/log", s.handleGetLog)
		r.Post("/log", s.handlePostLog)
	})
	return r
}

// handleRoot serves websocket upgrades and tells plain HTTP clients to upgrade.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	isWebSocket := strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
	if isWebSocket {
		s.handleWebsocket(w, r)
		return
	}
	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.WriteHeader(http.StatusUpgradeRequired)
	if _, err := w.Write([]byte("426 Upgrade Required")); err != nil {
		log.WithError(err).Warn("failed to write upgrade required response")
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithField("origin", r.Header.Get("Origin")).Warn("websocket upgrade failed")
		return
	}

	c := newClient(s.hub, conn)
	s.watcher.SendLastState(c)
	if !s.hub.Register(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// StartWorkers runs the hub and the watcher until ctx is cancelled.
func (s *Server) StartWorkers(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.hub.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		s.watcher.Run(ctx)
	}()

	return &wg
}

// Run starts the server and its components.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg := s.StartWorkers(ctx)

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received, stopping http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("http server shutdown error")
		}
	}()

	log.WithField("addr", s.opts.Addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	wg.Wait()

	return nil
}
