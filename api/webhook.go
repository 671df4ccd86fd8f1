package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// MessageHandler answers to one inbound chat message. Implemented by the bot;
// declared here so the transport bridge does not depend on internal wiring.
type MessageHandler interface {
	Handle(ctx context.Context, from, text string, image []byte) (string, error)
}

// WebhookHandler bridges the external chat transport into the bot. The
// transport delivers pre-normalized text (speech/media converted upstream);
// images are forwarded raw for the ID-card OCR step.
type WebhookHandler struct {
	bot     MessageHandler
	apology string
}

func NewWebhookHandler(bot MessageHandler, apology string) *WebhookHandler {
	return &WebhookHandler{bot: bot, apology: apology}
}

type inboundMessage struct {
	From  string `json:"from"`
	Text  string `json:"text"`
	Image string `json:"image,omitempty"` // base64
}

type outboundReply struct {
	Reply string `json:"reply"`
}

func (h *WebhookHandler) Message(w http.ResponseWriter, r *http.Request) {
	var msg inboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	msg.From = strings.TrimSpace(msg.From)
	if msg.From == "" {
		http.Error(w, "missing sender", http.StatusBadRequest)
		return
	}

	var image []byte
	if msg.Image != "" {
		b, err := base64.StdEncoding.DecodeString(msg.Image)
		if err != nil {
			http.Error(w, "invalid image encoding", http.StatusBadRequest)
			return
		}
		image = b
	}

	reply, err := h.bot.Handle(r.Context(), msg.From, msg.Text, image)
	if err != nil {
		// transient: conversation state untouched, the sender can retry
		logger.Error("message handling failed", "from", msg.From, "err", err)
		writeJSON(w, outboundReply{Reply: h.apology})
		return
	}

	writeJSON(w, outboundReply{Reply: reply})
}
