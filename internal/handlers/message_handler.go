package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"lead-console/internal/models"
)

// EventHandler answers operator events.
type EventHandler interface {
	Handle(ctx context.Context, operatorID int64, chatID string, event models.Event) models.Reply
}

// ChatTransport sends replies to a chat and remembers the options it showed.
type ChatTransport interface {
	Menu(chatID string) []models.Button
	SendReply(ctx context.Context, chatID string, reply models.Reply) error
}

var startCommands = map[string]bool{
	"/start":  true,
	"/home":   true,
	"start":   true,
	"menu":    true,
	"accueil": true,
}

type MessageHandler struct {
	console   EventHandler
	transport ChatTransport
	logger    *zap.Logger
}

func NewMessageHandler(console EventHandler, transport ChatTransport, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{console: console, transport: transport, logger: logger}
}

// HandleInbound translates a chat message, runs it through the console and
// sends the reply back to the same chat.
func (h *MessageHandler) HandleInbound(ctx context.Context, msg models.InboundMessage) {
	log := h.logger.With(zap.String("chat_id", msg.ChatID))
	operatorID, err := OperatorIDFromPhone(msg.SenderPhone)
	if err != nil {
		log.Warn("ignoring message from unknown sender", zap.Error(err))
		return
	}

	var event models.Event
	if msg.Document != nil {
		event = models.Event{Kind: models.EventDocumentReceived, Document: msg.Document}
	} else {
		event = TranslateText(msg.Text, h.transport.Menu(msg.ChatID))
	}

	reply := h.console.Handle(ctx, operatorID, msg.ChatID, event)
	if err := h.transport.SendReply(ctx, msg.ChatID, reply); err != nil {
		log.Error("failed to send reply", zap.Error(err))
	}
}

// TranslateText maps a chat text to an event: start commands open the home
// screen and a number picks an option of the last menu.
func TranslateText(text string, menu []models.Button) models.Event {
	trimmed := strings.TrimSpace(text)
	if startCommands[strings.ToLower(trimmed)] {
		return models.Event{Kind: models.EventCommandStart}
	}
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= len(menu) {
		return models.Event{Kind: models.EventButtonPressed, Action: menu[n-1].Action}
	}
	return models.Event{Kind: models.EventTextReceived, Text: text}
}

// OperatorIDFromPhone uses the sender's international number as operator id.
func OperatorIDFromPhone(phone string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(phone), "+"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid sender %q", phone)
	}
	return id, nil
}
