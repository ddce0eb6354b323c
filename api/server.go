// Package api exposes the HTTP surface of the support agent. The response
// shapes mirror what existing clients already parse.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/fabfab/support-agent/agent"
	"github.com/fabfab/support-agent/config"
)

const defaultSessionKey = "default"

type Resolver interface {
	Resolve(ctx context.Context, question string, session *agent.Session) agent.Result
}

type Ingester interface {
	IngestFile(ctx context.Context, path string) error
}

type Server struct {
	cfg      config.Config
	resolver Resolver
	ingester Ingester
	logger   *log.Logger
	handler  http.Handler

	mu       sync.Mutex
	sessions map[string]*agent.Session
}

type messageResponse struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorResponse struct {
	Type   string `json:"type"`
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error"`
}

type chatRequest struct {
	Message string `json:"message"`
	Session string `json:"session"`
}

type ingestRequest struct {
	Path string `json:"path"`
}

func New(cfg config.Config, resolver Resolver, ingester Ingester, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		ingester: ingester,
		logger:   logger,
		sessions: make(map[string]*agent.Session),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Type:  string(agent.TypeError),
			Error: fmt.Sprintf("decode request: %v", err),
		})
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Type:   string(agent.TypeError),
			Answer: "No message provided",
			Error:  "Message is required",
		})
		return
	}

	if s.cfg.Development() {
		s.logger.Printf("chat message: %.50s", req.Message)
	}

	result := s.resolver.Resolve(r.Context(), req.Message, s.session(req.Session))

	if result.Type == agent.TypeError {
		s.logger.Printf("chat error: %s", result.Error)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Type:   string(agent.TypeError),
			Answer: "Error processing your request",
			Error:  result.Error,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: fmt.Sprintf("decode request: %v", err)})
		return
	}

	path := strings.TrimSpace(req.Path)
	if path == "" {
		path = s.cfg.DocumentPath
	}

	s.logger.Printf("ingesting %s", path)
	if err := s.ingester.IngestFile(r.Context(), path); err != nil {
		s.logger.Printf("ingest error: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "Ingestion completed"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, errorResponse{
		Type:  string(agent.TypeError),
		Error: fmt.Sprintf("Endpoint not found: %s %s", r.Method, r.URL.Path),
	})
}

// session returns the history for the given conversation key, creating it
// on first use. Histories are never shared across keys.
func (s *Server) session(key string) *agent.Session {
	if key == "" {
		key = defaultSessionKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		sess = agent.NewSession()
		s.sessions[key] = sess
	}
	return sess
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Type:  string(agent.TypeError),
		Error: fmt.Sprintf("method not allowed, use %s", allowed),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
