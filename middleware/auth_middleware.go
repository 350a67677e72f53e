package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/loomcast/script-gateway/auth"
	"github.com/loomcast/script-gateway/utils"
	"go.uber.org/zap"
)

// Mode selects the gate's authentication behavior. It is computed once
// at startup from configuration and passed in at construction; the gate
// never reads ambient state at call time.
type Mode string

const (
	// ModeAnonymous admits every request as the anonymous principal.
	// This is a deliberate availability-over-security default for
	// deployments that never configured token verification; do not
	// silently harden it.
	ModeAnonymous Mode = "anonymous"

	// ModeToken requires a valid bearer token on every request
	ModeToken Mode = "token"
)

// TokenValidator defines the interface for verifying bearer tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Principal, error)
}

// AuthMiddleware authenticates requests before any provider is contacted
type AuthMiddleware struct {
	mode      Mode
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. The validator may be
// nil only in ModeAnonymous.
func NewAuthMiddleware(mode Mode, validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		mode:      mode,
		validator: validator,
		logger:    logger,
	}
}

// Authenticate resolves the caller's identity and stores it in the
// request context. Absence of the Authorization header is 401; a header
// that is present but malformed, expired, or otherwise invalid is 403.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		if m.mode == ModeAnonymous {
			ctx = WithIdentity(ctx, AnonymousIdentity())
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.logger.Warn("missing authorization header",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing authorization")
			return
		}

		token, ok := parseBearer(authHeader)
		if !ok {
			m.logger.Warn("malformed authorization header",
				zap.String("request_id", requestID))
			_ = utils.WriteForbidden(w, "Invalid authorization")
			return
		}

		principal, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteForbidden(w, "Invalid or expired token")
			return
		}

		ctx = WithIdentity(ctx, &Identity{
			Subject: principal.Subject,
			Issuer:  principal.Issuer,
		})

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", principal.Subject))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseBearer extracts the token from a "Bearer <token>" header value
func parseBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
