package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/insoblok/inso-txpool/internal/config"
)

const (
	// maxRequestSize bounds the body of a single request.
	maxRequestSize = 1 << 20

	// maxBatchSize bounds the number of calls in one batch request.
	maxBatchSize = 100
)

// Server is the JSON-RPC HTTP server.
type Server struct {
	httpServer *http.Server
	handler    *Handler
	logger     log.Logger
	cfg        *config.RPCConfig
}

// NewServer creates a new RPC server.
func NewServer(cfg *config.RPCConfig, handler *Handler) *Server {
	return &Server{
		handler: handler,
		logger:  log.New("module", "rpc"),
		cfg:     cfg,
	}
}

// Routes returns the HTTP handler serving JSON-RPC on / and /health.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins listening for JSON-RPC requests.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("JSON-RPC HTTP server starting", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
		return nil
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down RPC server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHTTP processes incoming JSON-RPC HTTP requests.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		s.writeResponse(w, errorResponse(nil, codeParseError, "parse error"))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		s.handleBatch(r.Context(), w, body)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeResponse(w, errorResponse(nil, codeParseError, "parse error"))
		return
	}

	s.writeResponse(w, s.handler.Handle(r.Context(), &req))
}

// handleBatch answers a batch with one response per call, in call order.
func (s *Server) handleBatch(ctx context.Context, w http.ResponseWriter, body []byte) {
	var reqs []*JSONRPCRequest
	if err := json.Unmarshal(body, &reqs); err != nil {
		s.writeResponse(w, errorResponse(nil, codeParseError, "parse error"))
		return
	}
	if len(reqs) == 0 {
		s.writeResponse(w, errorResponse(nil, codeInvalidRequest, "empty batch"))
		return
	}
	if len(reqs) > maxBatchSize {
		s.writeResponse(w, errorResponse(nil, codeInvalidRequest, fmt.Sprintf("batch too large: %d > %d", len(reqs), maxBatchSize)))
		return
	}

	resps := make([]*JSONRPCResponse, len(reqs))
	for i, req := range reqs {
		if req == nil {
			resps[i] = errorResponse(nil, codeInvalidRequest, "invalid request")
			continue
		}
		resps[i] = s.handler.Handle(ctx, req)
	}
	s.writeJSON(w, resps)
}

// handleHealth reports liveness together with the pool occupancy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"service": "inso-txpool",
		"pool":    s.handler.pool.LightStatus(),
	})
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *JSONRPCResponse) {
	s.writeJSON(w, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", "err", err)
	}
}
