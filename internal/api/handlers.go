package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/queue"
	"github.com/rs/zerolog/hlog"
)

// maxRequestBytes bounds the size of a submission body.
const maxRequestBytes = 4 << 20

type ExecutionRequest struct {
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
	Input      string `json:"input"`
	TimeLimit  int    `json:"time_limit"` // CPU seconds
}

// Runner executes a validated submission. It is satisfied by
// *executor.Executor and by *queue.Manager when admission control is on.
type Runner interface {
	Execute(ctx context.Context, opts executor.ExecuteOptions) (*executor.Outcome, error)
}

type Handler struct {
	runner   Runner
	registry *languages.Registry
}

func NewHandler(runner Runner, registry *languages.Registry) *Handler {
	return &Handler{
		runner:   runner,
		registry: registry,
	}
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ExecutionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	lang, err := h.registry.Get(req.Language)
	if err != nil {
		http.Error(w, "invalid language", http.StatusBadRequest)
		return
	}
	if err := executor.ValidateTimeLimit(req.TimeLimit); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := h.runner.Execute(r.Context(), executor.ExecuteOptions{
		Language:   lang,
		SourceCode: req.SourceCode,
		Input:      req.Input,
		TimeLimit:  req.TimeLimit,
	})
	if err != nil {
		logger := hlog.FromRequest(r)
		if errors.Is(err, queue.ErrQueueFull) {
			logger.Warn().Str("language", req.Language).Msg("execution queue full")
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		logger.Error().Err(err).Str("language", req.Language).Msg("execution failed")
		http.Error(w, "execution failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

type languageInfo struct {
	Language  languages.ID `json:"language"`
	Extension string       `json:"extension"`
	Compiled  bool         `json:"compiled"`
}

func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	out := make([]languageInfo, 0, len(list))
	for _, l := range list {
		out = append(out, languageInfo{Language: l.ID, Extension: l.Extension, Compiled: l.Compiled()})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
