package webhook

import (
	"errors"
	"io"
	"log"
	"net/http"

	"herald/internal"

	"github.com/google/uuid"
)

// GitHubHandler receives source host webhook deliveries and hands them to
// the orchestrator. The delivery is acknowledged with 200 even when
// downstream processing fails, so the host does not retry sends that
// already partially happened.
type GitHubHandler struct {
	orchestrator *internal.Orchestrator
	logger       *log.Logger
	maxBody      int64
}

func NewGitHubHandler(orchestrator *internal.Orchestrator, maxBody int64) *GitHubHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &GitHubHandler{
		orchestrator: orchestrator,
		logger:       internal.NewLogger("webhook"),
		maxBody:      maxBody,
	}
}

func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("github")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := internal.WithRequestID(h.logger, requestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		internal.IncParseError("github")
		logger.Printf("reading request body failed: %v", err)
		http.Error(w, "request body unreadable", http.StatusBadRequest)
		return
	}

	eventName := r.Header.Get("X-GitHub-Event")
	if eventName == "" {
		internal.IncParseError("github")
		http.Error(w, "missing X-GitHub-Event header", http.StatusBadRequest)
		return
	}
	if eventName == "ping" {
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.orchestrator.HandleSourceEvent(r.Context(), eventName, r.Header, body)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, internal.ErrBadSignature):
		logger.Printf("rejected delivery: %v", err)
		http.Error(w, "signature rejected", http.StatusUnauthorized)
	case errors.Is(err, internal.ErrUnsupportedRepository):
		logger.Printf("rejected delivery: %v", err)
		http.Error(w, "repository not configured", http.StatusBadRequest)
	default:
		// Processing errors after authentication are logged, not retried.
		logger.Printf("processing %s delivery failed: %v", eventName, err)
		w.WriteHeader(http.StatusOK)
	}
}
