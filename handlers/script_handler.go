package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/loomcast/script-gateway/middleware"
	"github.com/loomcast/script-gateway/services/normalize"
	"github.com/loomcast/script-gateway/services/providers"
	"github.com/loomcast/script-gateway/services/routing"
	"github.com/loomcast/script-gateway/utils"
	"go.uber.org/zap"
)

// ScriptRequest is the body of POST /generate/script
type ScriptRequest struct {
	Content  string   `json:"content,omitempty" validate:"required_if=Mode content,omitempty,max=20000"`
	Topics   []string `json:"topics,omitempty" validate:"omitempty,dive,min=1,max=200"`
	Mode     string   `json:"mode" validate:"required,oneof=content syllabus"`
	Syllabus string   `json:"syllabus,omitempty" validate:"required_if=Mode syllabus,omitempty,max=2000"`
	Provider string   `json:"provider,omitempty" validate:"omitempty,oneof=auto gemini groq"`
}

// ScriptResponse is the success body of POST /generate/script
type ScriptResponse struct {
	Script   []normalize.Turn `json:"script"`
	Provider string           `json:"provider"`
}

// ScriptHandler handles structured podcast-script generation
type ScriptHandler struct {
	router Router
	logger *zap.Logger
}

// NewScriptHandler creates a new ScriptHandler
func NewScriptHandler(router Router, logger *zap.Logger) *ScriptHandler {
	return &ScriptHandler{
		router: router,
		logger: logger,
	}
}

// HandleScript handles POST /generate/script. The provider's text is
// run through structural recovery before anything is returned; a parse
// failure surfaces as a generation failure and is never retried against
// another provider.
func (h *ScriptHandler) HandleScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var scriptReq ScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&scriptReq); err != nil {
		h.logger.Warn("failed to parse script request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "invalid request payload")
		return
	}

	if err := utils.ValidateStruct(&scriptReq); err != nil {
		HandleValidationError(w, err, requestID, h.logger)
		return
	}

	preference := scriptReq.Provider
	if preference == "" {
		preference = routing.PreferenceAuto
	}

	result, err := h.router.Route(ctx, routing.Request{
		Task:       routing.TaskScript,
		Preference: preference,
		Prompt: providers.Prompt{
			Messages: buildScriptPrompt(scriptReq),
		},
	})
	if err != nil {
		h.logger.Error("script generation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	script, err := normalize.ParseScript(result.Text)
	if err != nil {
		h.logger.Error("script output failed structural recovery",
			zap.String("request_id", requestID),
			zap.String("provider", result.Provider),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("script generation succeeded",
		zap.String("request_id", requestID),
		zap.String("provider", result.Provider),
		zap.Int("turns", len(script.Turns)))

	_ = utils.WriteOK(w, ScriptResponse{
		Script:   script.Turns,
		Provider: result.Provider,
	})
}

// scriptSystemPrompt instructs the model to answer with the exact JSON
// shape structural recovery expects
const scriptSystemPrompt = `You are a podcast script writer. Write an engaging two-host dialogue ` +
	`covering the supplied material. Respond with JSON only, in the exact shape ` +
	`{"script":[{"speaker":"A","text":"..."},{"speaker":"B","text":"..."}]} ` +
	`with speakers alternating between "A" and "B". Do not add commentary outside the JSON.`

// buildScriptPrompt assembles the conversation sent to the provider
func buildScriptPrompt(req ScriptRequest) []providers.Message {
	var sb strings.Builder

	switch req.Mode {
	case "syllabus":
		fmt.Fprintf(&sb, "Write a podcast script for the syllabus unit %q.", req.Syllabus)
	default:
		sb.WriteString("Write a podcast script covering the following material:\n\n")
		sb.WriteString(req.Content)
	}

	if len(req.Topics) > 0 {
		fmt.Fprintf(&sb, "\n\nFocus on these topics: %s.", strings.Join(req.Topics, ", "))
	}

	return []providers.Message{
		{Role: "system", Content: scriptSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
