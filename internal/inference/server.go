package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"oncopredict/internal/features"
)

// Server exposes the inference service over HTTP.
type Server struct {
	svc    *Service
	server *http.Server
}

// PredictRequest carries one observation. Either the named feature map
// or the ordered value slice may be set; Values wins when both are.
type PredictRequest struct {
	Model    string             `json:"model,omitempty"`
	Features map[string]float64 `json:"features,omitempty"`
	Values   []float64          `json:"values,omitempty"`
}

// BatchRequest carries a set of observations for one model.
type BatchRequest struct {
	Model  string               `json:"model,omitempty"`
	Inputs []map[string]float64 `json:"inputs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates an HTTP server for the inference service.
func NewServer(svc *Service, port int) *Server {
	s := &Server{svc: svc}

	mux := http.NewServeMux()
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/predict/batch", s.handleBatch)
	mux.HandleFunc("/predict/all", s.handleConsensus)
	mux.HandleFunc("/models", s.handleModels)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting inference server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying request handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if len(req.Values) == 0 && len(req.Features) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("features or values required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		res *Result
		err error
	)
	if len(req.Values) > 0 {
		var vec features.Vector
		vec, err = features.FromSlice(req.Values)
		if err == nil {
			res, err = s.svc.PredictVector(ctx, vec, req.Model)
		}
	} else {
		res, err = s.svc.PredictOne(ctx, req.Features, req.Model)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("inputs cannot be empty"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	items, err := s.svc.PredictBatch(ctx, req.Inputs, req.Model)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if len(req.Features) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("features cannot be empty"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	cons, err := s.svc.PredictConsensus(ctx, req.Features)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cons)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"models": s.svc.ListAvailableModels(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.svc.Health()

	status := http.StatusOK
	if !h.ScalerReady || !h.ModelsReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var unavailable *UnavailableError
	var unknown *UnknownModelError
	var shape *features.ShapeError

	switch {
	case errors.As(err, &unavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.As(err, &unknown):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &shape):
		writeError(w, http.StatusBadRequest, err)
	default:
		log.Error().Err(err).Msg("prediction failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}
