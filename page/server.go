package page

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/cswui/field"
)

// Server exposes a page over HTTP: the rendered document on "/" and the
// field snapshots on "/api/fields".
type Server struct {
	logger zerolog.Logger
	page   *Page
	server *http.Server
	ln     net.Listener
}

type fieldsResponse struct {
	Fields   []field.Status   `json:"fields"`
	Rejected []rejectionEntry `json:"rejected"`
}

type rejectionEntry struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Handler returns the HTTP handler of the live view.
func Handler(p *Page, logger zerolog.Logger) http.Handler {
	s := &Server{logger: logger, page: p}
	return s.routes()
}

// Serve starts the live view on listen. The listener is bound before Serve
// returns, so Addr is usable right away.
func Serve(listen string, p *Page, logger zerolog.Logger) (*Server, error) {
	s := &Server{logger: logger, page: p}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: s.routes(), ReadHeaderTimeout: 5 * time.Second}
	s.server = srv
	s.ln = ln

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("live view server stopped")
		}
	}()

	logger.Info().Str("listen", ln.Addr().String()).Msg("live view started")
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/fields", s.handleFields)
	return mux
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var buf bytes.Buffer
	if err := s.page.Render(&buf); err != nil {
		s.logger.Error().Err(err).Msg("render live view page")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := fieldsResponse{Fields: s.page.Status(), Rejected: []rejectionEntry{}}
	for _, rej := range s.page.Rejected() {
		resp.Rejected = append(resp.Rejected, rejectionEntry{Kind: string(rej.Kind), Error: rej.Err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("encode field state")
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	if s == nil || s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil && err != context.Canceled {
		s.logger.Error().Err(err).Msg("shutdown live view")
	}
}
