package handlers

import (
	"net/http"

	"github.com/loomcast/script-gateway/services"
	"github.com/loomcast/script-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. Every
// terminal failure reaches the caller with a distinguishable category
// and a human-readable cause; nothing is silently swallowed.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	switch {
	case services.IsUnauthorizedError(err):
		writeOrLog(logger, utils.WriteUnauthorized(w, err.Error()))

	case services.IsForbiddenError(err):
		writeOrLog(logger, utils.WriteForbidden(w, err.Error()))

	case services.IsValidationError(err):
		// Schema details never leak; the category alone is the answer
		writeOrLog(logger, utils.WriteBadRequest(w, "invalid request payload"))

	case services.IsConfigError(err):
		writeOrLog(logger, utils.WriteInternalServerError(w, "config_error", err.Error()))

	case services.IsTimeoutError(err):
		writeOrLog(logger, utils.WriteInternalServerError(w, "timeout", err.Error()))

	case services.IsUpstreamError(err):
		writeOrLog(logger, utils.WriteInternalServerError(w, "upstream_error", err.Error()))

	case services.IsStructuralError(err):
		writeOrLog(logger, utils.WriteInternalServerError(w, "invalid_output", err.Error()))

	case services.IsOrchestrationError(err):
		writeOrLog(logger, utils.WriteInternalServerError(w, "exhausted_fallback", err.Error()))

	default:
		logger.Error("unhandled error type", zap.Error(err))
		writeOrLog(logger, utils.WriteInternalServerError(w, "internal_error", "An unexpected error occurred"))
	}
}

// HandleValidationError handles payload validation failures. The caller
// only ever sees a single generic 400; field-level details go to the log.
func HandleValidationError(w http.ResponseWriter, err error, requestID string, logger *zap.Logger) {
	if fields := utils.GetValidationFields(err); fields != nil {
		logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Any("fields", fields))
	} else {
		logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
	writeOrLog(logger, utils.WriteBadRequest(w, "invalid request payload"))
}

func writeOrLog(logger *zap.Logger, err error) {
	if err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}
