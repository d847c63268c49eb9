package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmorgan81/bananaconsole/internal/api"
	"github.com/dmorgan81/bananaconsole/internal/console"
	"github.com/dmorgan81/bananaconsole/internal/feed"
	"github.com/dmorgan81/bananaconsole/internal/handler"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/dmorgan81/bananaconsole/internal/page"
	"github.com/samber/do"
)

const maxRequestBody = 1 << 20

type generateHandler interface {
	Handle(context.Context, api.GenerateRequest) (api.GenerateResponse, error)
}

type Server struct {
	handler   generateHandler
	sessions  *Sessions
	templator *page.Templator
	feed      *feed.Generator
	logger    *slog.Logger
	mux       *http.ServeMux
}

func NewServer(i *do.Injector) (*Server, error) {
	return New(
		do.MustInvoke[*handler.Handler](i),
		NewSessions(do.MustInvoke[console.Generator](i)),
		do.MustInvoke[*page.Templator](i),
		do.MustInvoke[*feed.Generator](i),
		do.MustInvoke[*slog.Logger](i),
	), nil
}

func New(h generateHandler, sessions *Sessions, templator *page.Templator, feed *feed.Generator, logger *slog.Logger) *Server {
	s := &Server{
		handler:   h,
		sessions:  sessions,
		templator: templator,
		feed:      feed,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/generate", s.handleGenerate)
	s.mux.HandleFunc("/feed.xml", s.handleFeed)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/", s.handleConsole)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("method", r.Method, "path", r.URL.Path)
	s.mux.ServeHTTP(w, r.WithContext(log.NewContext(r.Context(), logger)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse{Error: "method not allowed"})
		return
	}

	var req api.GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		status, message := handler.StatusOf(fmt.Errorf("invalid request body: %w", err))
		writeJSON(w, status, api.ErrorResponse{Error: message})
		return
	}

	resp, err := s.handler.Handle(r.Context(), req)
	if err != nil {
		status, message := handler.StatusOf(err)
		log.FromContextOrDiscard(r.Context()).Warn("generation failed", "status", status, "err", message)
		writeJSON(w, status, api.ErrorResponse{Error: message})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	c := s.sessions.Console(w, r)
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.renderConsole(w, r, c)
	case http.MethodPost:
		s.submitConsole(w, r, c)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderConsole(w http.ResponseWriter, r *http.Request, c *console.Console) {
	html, err := s.templator.Template(r.Context(), page.NewParams(c.State()))
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("rendering console", "err", err)
		http.Error(w, "could not render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}

// submitConsole applies the form to the session console and runs the
// submission. A form posted while a generation is in flight is dropped.
// The generation is detached from the request so a closed tab does not
// cancel it.
func (s *Server) submitConsole(w http.ResponseWriter, r *http.Request, c *console.Console) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if !c.Busy() {
		c.SetParams(formParams(r, c.State().Params))
		c.SetDraft(r.PostForm.Get("prompt"))
		c.Submit(context.WithoutCancel(r.Context()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// formParams reads the tunables from the form, keeping current values for
// fields that are missing or do not parse.
func formParams(r *http.Request, current console.Params) console.Params {
	p := current
	p.NegativePrompt = r.PostForm.Get("negativePrompt")
	p.Seed = r.PostForm.Get("seed")
	if v, err := strconv.ParseFloat(strings.TrimSpace(r.PostForm.Get("guidanceScale")), 64); err == nil {
		p.GuidanceScale = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("steps"))); err == nil {
		p.Steps = v
	}
	return p
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if !s.feed.Enabled() {
		http.NotFound(w, r)
		return
	}
	rss, err := s.feed.Generate(r.Context())
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("generating feed", "err", err)
		http.Error(w, "could not generate feed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write(rss)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}
