// Package http serves the word API, listening control and the event
// WebSocket for browser pages.
package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/emmett/hark/internal/server"
	"github.com/emmett/hark/internal/supervisor"
	"github.com/emmett/hark/internal/wordstore"
)

// Config holds server configuration
type Config struct {
	Addr           string
	AllowedOrigins []string
	// EventBuffer is the per-socket backlog before events are dropped
	EventBuffer int
}

// Server is a chi router behind a stdlib http.Server
type Server struct {
	config   Config
	ctrl     server.Controller
	words    server.Words
	events   *server.Broadcaster
	mux      *chi.Mux
	srv      *stdhttp.Server
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer builds the router. words and events may be nil, which disables
// the word API and the WebSocket respectively.
func NewServer(cfg Config, ctrl server.Controller, words server.Words, events *server.Broadcaster, log zerolog.Logger) *Server {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		config: cfg,
		ctrl:   ctrl,
		words:  words,
		events: events,
		mux:    chi.NewRouter(),
		log:    log.With().Str("component", "http").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	s.srv = &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	s.mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	s.mux.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/listen/start", s.handleStart)
		r.Post("/listen/stop", s.handleStop)
		if s.words != nil {
			r.Get("/words", s.handleGetWords)
			r.Put("/words", s.handlePutWords)
			r.Delete("/words/{word}", s.handleDeleteWord)
		}
	})
	if s.events != nil {
		s.mux.Get("/ws", s.handleSocket)
	}
}

// Handler returns the router
func (s *Server) Handler() stdhttp.Handler { return s.mux }

// Addr returns the listening address
func (s *Server) Addr() string { return s.config.Addr }

// Run serves until Shutdown
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.config.Addr).Msg("http listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) originAllowed(r *stdhttp.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

type wordsRequest struct {
	Words []string `json:"words" validate:"omitempty,max=500,dive,max=200"`
	Input string   `json:"input" validate:"max=10000"`
}

type wordsResponse struct {
	Words []string `json:"words"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGetWords(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.writeJSON(w, stdhttp.StatusOK, wordsResponse{Words: nonNil(s.words.Words())})
}

func (s *Server) handlePutWords(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	var req wordsRequest
	dec := json.NewDecoder(stdhttp.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, stdhttp.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := server.Validate(req); err != nil {
		s.writeError(w, stdhttp.StatusBadRequest, err.Error())
		return
	}

	words := req.Words
	if req.Input != "" {
		words = append(words, wordstore.ParseInput(req.Input)...)
	}
	saved, err := s.words.Save(r.Context(), words)
	if errors.Is(err, wordstore.ErrEmptyInput) {
		s.writeError(w, stdhttp.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("save trigger words")
		s.writeError(w, stdhttp.StatusInternalServerError, "failed to save trigger words")
		return
	}
	s.writeJSON(w, stdhttp.StatusOK, wordsResponse{Words: nonNil(saved)})
}

func (s *Server) handleDeleteWord(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	word := chi.URLParam(r, "word")
	left, err := s.words.Delete(r.Context(), word)
	if err != nil {
		s.log.Error().Err(err).Str("word", word).Msg("delete trigger word")
		s.writeError(w, stdhttp.StatusInternalServerError, "failed to delete trigger word")
		return
	}
	s.writeJSON(w, stdhttp.StatusOK, wordsResponse{Words: nonNil(left)})
}

func (s *Server) handleStart(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.control(w, r, s.ctrl.Start)
}

func (s *Server) handleStop(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.control(w, r, s.ctrl.Stop)
}

func (s *Server) control(w stdhttp.ResponseWriter, r *stdhttp.Request, fn func(context.Context) error) {
	if err := fn(r.Context()); err != nil {
		code := stdhttp.StatusInternalServerError
		if errors.Is(err, supervisor.ErrClosed) {
			code = stdhttp.StatusServiceUnavailable
		}
		s.writeError(w, code, err.Error())
		return
	}
	s.handleStatusCode(w, r, stdhttp.StatusAccepted)
}

func (s *Server) handleStatus(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.handleStatusCode(w, r, stdhttp.StatusOK)
}

func (s *Server) handleStatusCode(w stdhttp.ResponseWriter, r *stdhttp.Request, code int) {
	st, err := s.ctrl.Status(r.Context())
	if err != nil {
		s.writeError(w, stdhttp.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, code, st)
}

func (s *Server) writeJSON(w stdhttp.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w stdhttp.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorResponse{Error: msg})
}

func nonNil(words []string) []string {
	if words == nil {
		return []string{}
	}
	return words
}
