package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loomcast/script-gateway/services"
	"go.uber.org/zap"
)

// Dispatch outcome labels stored in the audit trail
const (
	OutcomeSuccess  = "success"
	OutcomeTimeout  = "timeout"
	OutcomeUpstream = "upstream_error"
	OutcomeConfig   = "config_error"
	OutcomeOther    = "error"
)

// Record is one provider dispatch attempt. Message bodies are
// deliberately absent: the audit trail is operational, conversation
// content is never persisted.
type Record struct {
	ID             uuid.UUID
	RequestID      string
	Provider       string
	Task           string
	Outcome        string
	UpstreamStatus int
	LatencyMs      int
	CreatedAt      time.Time
}

// Repository persists dispatch records
type Repository interface {
	InsertDispatch(ctx context.Context, rec *Record) error
}

// Service records provider dispatch attempts. A nil service or nil
// repository is a no-op, so auditing stays optional without nil checks
// at every call site.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new audit service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// RecordDispatch persists one dispatch attempt. Failures are logged and
// swallowed; auditing never fails a request.
func (s *Service) RecordDispatch(ctx context.Context, rec *Record) {
	if s == nil || s.repo == nil {
		return
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if err := s.repo.InsertDispatch(ctx, rec); err != nil {
		s.logger.Error("failed to record dispatch audit",
			zap.String("provider", rec.Provider),
			zap.String("outcome", rec.Outcome),
			zap.Error(err))
	}
}

// OutcomeFromError maps a dispatch error to its audit outcome label
func OutcomeFromError(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case services.IsTimeoutError(err):
		return OutcomeTimeout
	case services.IsUpstreamError(err):
		return OutcomeUpstream
	case services.IsConfigError(err):
		return OutcomeConfig
	default:
		return OutcomeOther
	}
}
