package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/imperfectform/predictbot/internal/bot"
	"github.com/imperfectform/predictbot/internal/crypto"
	"github.com/imperfectform/predictbot/internal/domain"
)

// MessageHandler runs the proposal conversation.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg bot.Message) (bot.Reply, error)
}

// Scanner runs one resolution scan.
type Scanner interface {
	Scan(ctx context.Context) (bot.ScanReport, error)
}

// BotHandler serves the message-bridge webhook and on-demand scans.
type BotHandler struct {
	messages MessageHandler
	scanner  Scanner
	webhook  *crypto.WebhookAuth // nil disables signature checks
	logger   *slog.Logger
}

// NewBotHandler creates a BotHandler. scanner and webhook may be nil.
func NewBotHandler(messages MessageHandler, scanner Scanner, webhook *crypto.WebhookAuth, logger *slog.Logger) *BotHandler {
	return &BotHandler{messages: messages, scanner: scanner, webhook: webhook, logger: logger}
}

// Message handles one inbound chat message from the bridge.
// POST /api/bot/message
func (h *BotHandler) Message(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if h.webhook != nil && h.webhook.Secret != "" {
		if err := h.webhook.Verify(raw, r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature)); err != nil {
			h.logger.WarnContext(r.Context(), "handler: bot webhook rejected", slog.String("error", err.Error()))
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var msg bot.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(msg.ConversationID) == "" || strings.TrimSpace(msg.Text) == "" {
		writeError(w, http.StatusBadRequest, "conversationId and text are required")
		return
	}

	reply, err := h.messages.HandleMessage(r.Context(), msg)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: bot message failed",
			slog.String("conversation_id", msg.ConversationID),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), "failed to handle message")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// Resolve runs one resolution scan now.
// POST /api/bot/resolve
func (h *BotHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "resolver not running in this mode")
		return
	}
	report, err := h.scanner.Scan(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: resolve scan failed", slog.String("error", err.Error()))
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrValidation) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
