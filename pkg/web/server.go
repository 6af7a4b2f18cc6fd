// Package web is the browser front end: a form that starts a migration and
// a websocket that streams its progress events live.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mbenali/docmigrate/pkg/config"
	"github.com/mbenali/docmigrate/pkg/migrate"
	"github.com/mbenali/docmigrate/pkg/progress"
)

//go:embed index.html
var templates embed.FS

var indexTmpl = template.Must(template.ParseFS(templates, "index.html"))

// runFunc is the migration entrypoint, injectable for tests.
type runFunc func(ctx context.Context, cfg config.Config, reporter progress.Reporter, log zerolog.Logger) (*migrate.Result, *migrate.Validation, error)

// Server serves the migration form, starts runs in the background and
// streams their events over /ws. One run at a time.
type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	hub      *Hub
	router   *mux.Router
	upgrader websocket.Upgrader
	run      runFunc

	mu      sync.Mutex
	running bool
}

func NewServer(cfg config.Config, log zerolog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log,
		hub: NewHub(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		run: migrate.Execute,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/migrate", s.handleMigrate).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("web server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		BatchSize int
	}{BatchSize: s.cfg.BatchSize}
	if err := indexTmpl.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("rendering index")
	}
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	cfg := s.cfg
	cfg.Source = config.Endpoint{
		URI:       r.FormValue("source_uri"),
		Database:  r.FormValue("source_database"),
		Container: r.FormValue("source_container"),
	}
	cfg.Destination = config.Endpoint{
		URI:       r.FormValue("destination_uri"),
		Database:  r.FormValue("destination_database"),
		Container: r.FormValue("destination_container"),
	}
	if v := r.FormValue("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "batch size must be a number", http.StatusBadRequest)
			return
		}
		cfg.BatchSize = n
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "a migration is already running", http.StatusConflict)
		return
	}
	s.running = true
	s.mu.Unlock()

	// Connection strings carry credentials; log names only.
	s.log.Info().
		Str("source", cfg.Source.Database+"/"+cfg.Source.Container).
		Str("destination", cfg.Destination.Database+"/"+cfg.Destination.Container).
		Int("batch_size", cfg.BatchSize).
		Msg("starting migration from web form")

	go s.runMigration(cfg)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) runMigration(cfg config.Config) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	reporter := progress.Multi{progress.NewLogReporter(s.log), s.hub}
	_, _, err := s.run(context.Background(), cfg, reporter, s.log)
	if err != nil {
		s.log.Error().Err(err).Msg("migration failed")
		s.hub.Emit(progress.ErrorOccurred{Message: err.Error()})
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	// Drain client frames so pings and close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
