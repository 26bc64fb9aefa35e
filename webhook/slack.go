package webhook

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"herald/internal"

	"github.com/slack-go/slack"
)

// slackEnvelope is the outer Events API payload. Only the fields this
// service consumes are decoded.
type slackEnvelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	Event     json.RawMessage `json:"event"`
}

type slackInnerEvent struct {
	Type             string `json:"type"`
	User             string `json:"user"`
	Channel          string `json:"channel"`
	MessageTimeStamp string `json:"message_ts"`
	Links            []struct {
		URL    string `json:"url"`
		Domain string `json:"domain"`
	} `json:"links"`
}

// SlackHandler receives Events API callbacks: the one-time URL verification
// challenge and link_shared events for unfurling.
type SlackHandler struct {
	orchestrator  *internal.Orchestrator
	signingSecret string
	logger        *log.Logger
	maxBody       int64
}

func NewSlackHandler(orchestrator *internal.Orchestrator, signingSecret string, maxBody int64) *SlackHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &SlackHandler{
		orchestrator:  orchestrator,
		signingSecret: signingSecret,
		logger:        internal.NewLogger("slack"),
		maxBody:       maxBody,
	}
}

func (h *SlackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("slack")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		internal.IncParseError("slack")
		http.Error(w, "request body unreadable", http.StatusBadRequest)
		return
	}
	if err := h.verify(r.Header, body); err != nil {
		internal.IncSignatureFailure()
		h.logger.Printf("rejected events request: %v", err)
		http.Error(w, "signature rejected", http.StatusUnauthorized)
		return
	}

	var envelope slackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		internal.IncParseError("slack")
		http.Error(w, "payload undecodable", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(envelope.Challenge))
	case "event_callback":
		h.handleCallback(w, r, envelope.Event)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *SlackHandler) verify(header http.Header, body []byte) error {
	if h.signingSecret == "" {
		return nil
	}
	verifier, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return err
	}
	if _, err := verifier.Write(body); err != nil {
		return err
	}
	return verifier.Ensure()
}

func (h *SlackHandler) handleCallback(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var inner slackInnerEvent
	if err := json.Unmarshal(raw, &inner); err != nil {
		internal.IncParseError("slack")
		http.Error(w, "event undecodable", http.StatusBadRequest)
		return
	}
	if inner.Type != "link_shared" {
		w.WriteHeader(http.StatusOK)
		return
	}

	ev := internal.LinkShared{
		User:      inner.User,
		Channel:   inner.Channel,
		Timestamp: inner.MessageTimeStamp,
	}
	for _, link := range inner.Links {
		ev.Links = append(ev.Links, link.URL)
	}
	// Unfurl failures are acknowledged anyway so the platform does not
	// redeliver a message we already looked at.
	if err := h.orchestrator.HandleLinkShared(r.Context(), ev); err != nil {
		h.logger.Printf("unfurl of %d links in %s failed: %v", len(ev.Links), ev.Channel, err)
	}
	w.WriteHeader(http.StatusOK)
}
