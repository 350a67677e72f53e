package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/loomcast/script-gateway/middleware"
	"github.com/loomcast/script-gateway/services/providers"
	"github.com/loomcast/script-gateway/services/providers/groq"
	"github.com/loomcast/script-gateway/services/routing"
	"github.com/loomcast/script-gateway/utils"
	"go.uber.org/zap"
)

// ConversationTurn is one inbound chat message
type ConversationTurn struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required,min=1,max=20000"`
}

// ChatRequest is the body of POST /generate/chat
type ChatRequest struct {
	Messages []ConversationTurn `json:"messages" validate:"required,min=1,dive"`
	Model    string             `json:"model,omitempty"`
}

// SimpleRequest is the body of POST /generate/simple
type SimpleRequest struct {
	Messages []ConversationTurn `json:"messages" validate:"required,min=1,dive"`
}

// chatEnvelope is the chat-shaped response built for the single-prompt path
type chatEnvelope struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model,omitempty"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int              `json:"index"`
	Message      ConversationTurn `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// Router dispatches a generation request through the fallback policy
type Router interface {
	Route(ctx context.Context, req routing.Request) (*routing.Result, error)
}

// GenerateHandler handles the chat and single-prompt generation endpoints
type GenerateHandler struct {
	router Router
	logger *zap.Logger
}

// NewGenerateHandler creates a new GenerateHandler
func NewGenerateHandler(router Router, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		router: router,
		logger: logger,
	}
}

// HandleChat handles POST /generate/chat. On success the provider's
// native completion envelope is passed through unchanged.
func (h *GenerateHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var chatReq ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
		h.logger.Warn("failed to parse chat request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "invalid request payload")
		return
	}

	if err := utils.ValidateStruct(&chatReq); err != nil {
		HandleValidationError(w, err, requestID, h.logger)
		return
	}

	result, err := h.router.Route(ctx, routing.Request{
		Task:       routing.TaskChat,
		Preference: routing.PreferenceAuto,
		Prompt: providers.Prompt{
			Messages: toProviderMessages(chatReq.Messages),
			Model:    chatReq.Model,
		},
	})
	if err != nil {
		h.logger.Error("chat generation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("chat generation succeeded",
		zap.String("request_id", requestID),
		zap.String("provider", result.Provider))
	_ = utils.WriteRawJSON(w, http.StatusOK, []byte(result.RawBody))
}

// HandleSimple handles POST /generate/simple over the single-prompt
// provider path, returning a chat-shaped envelope
func (h *GenerateHandler) HandleSimple(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var simpleReq SimpleRequest
	if err := json.NewDecoder(r.Body).Decode(&simpleReq); err != nil {
		h.logger.Warn("failed to parse simple request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "invalid request payload")
		return
	}

	if err := utils.ValidateStruct(&simpleReq); err != nil {
		HandleValidationError(w, err, requestID, h.logger)
		return
	}

	result, err := h.router.Route(ctx, routing.Request{
		Task:       routing.TaskSimple,
		Preference: groq.ProviderName,
		Prompt: providers.Prompt{
			Messages: toProviderMessages(simpleReq.Messages),
		},
	})
	if err != nil {
		h.logger.Error("simple generation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	envelope := chatEnvelope{
		ID:      "gen-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []chatChoice{
			{
				Index: 0,
				Message: ConversationTurn{
					Role:    "assistant",
					Content: result.Text,
				},
				FinishReason: "stop",
			},
		},
	}

	h.logger.Info("simple generation succeeded",
		zap.String("request_id", requestID),
		zap.String("provider", result.Provider))
	_ = utils.WriteOK(w, envelope)
}

// toProviderMessages converts inbound turns to the provider-neutral shape
func toProviderMessages(turns []ConversationTurn) []providers.Message {
	messages := make([]providers.Message, len(turns))
	for i, turn := range turns {
		messages[i] = providers.Message{
			Role:    turn.Role,
			Content: turn.Content,
		}
	}
	return messages
}
