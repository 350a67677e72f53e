package routing

import (
	"context"
	"time"

	"github.com/loomcast/script-gateway/middleware"
	"github.com/loomcast/script-gateway/services"
	"github.com/loomcast/script-gateway/services/audit"
	"github.com/loomcast/script-gateway/services/dispatch"
	"github.com/loomcast/script-gateway/services/providers"
	"go.uber.org/zap"
)

// PreferenceAuto lets the router pick the fallback sequence
const PreferenceAuto = "auto"

// Task identifies the kind of generation being routed
type Task string

const (
	// TaskChat is a multi-turn chat completion
	TaskChat Task = "chat"

	// TaskScript is structured podcast-script generation; the only task
	// eligible for cross-provider fallback in auto mode
	TaskScript Task = "script"

	// TaskSimple is a single-prompt completion
	TaskSimple Task = "simple"
)

// Request is one routed generation request
type Request struct {
	Task       Task
	Prompt     providers.Prompt
	Preference string // "auto" or a concrete provider name
}

// Result is the outcome of a successful dispatch: the provider that
// answered, its native envelope, and the extracted assistant text
type Result struct {
	Provider string
	RawBody  string
	Text     string
}

// Router chooses an ordered fallback sequence of providers for a
// request and dispatches candidates strictly sequentially, never two
// providers concurrently for the same request, advancing only on hard
// failures.
type Router struct {
	registry   *providers.Registry
	dispatcher *dispatch.Dispatcher
	auditor    *audit.Service
	primary    string
	secondary  string
	logger     *zap.Logger
}

// NewRouter creates a new router. Primary and secondary name the
// designated providers for auto mode; the effective primary shifts to
// the secondary when the designated primary has no credentials.
func NewRouter(registry *providers.Registry, dispatcher *dispatch.Dispatcher, auditor *audit.Service, primary, secondary string, logger *zap.Logger) *Router {
	return &Router{
		registry:   registry,
		dispatcher: dispatcher,
		auditor:    auditor,
		primary:    primary,
		secondary:  secondary,
		logger:     logger,
	}
}

// Route dispatches the request through its fallback sequence and
// returns the first successful, text-extracted result.
//
// Policy:
//   - an explicit provider preference yields a single-candidate
//     sequence with no fallback
//   - in auto mode the secondary is appended only for the script task,
//     and is reached only after the primary hard-fails (timeout or
//     upstream error), never after a structural parse problem, which
//     surfaces downstream as a normalizer error
//   - a missing credential is terminal immediately; retrying cannot help
//   - exhaustion returns an orchestration error carrying the last failure
func (r *Router) Route(ctx context.Context, req Request) (*Result, error) {
	sequence, err := r.fallbackSequence(req)
	if err != nil {
		return nil, err
	}

	requestID := middleware.GetRequestIDFromContext(ctx)
	var lastErr error

	for i, client := range sequence {
		start := time.Now()
		raw, err := r.invoke(ctx, client, req.Prompt)
		r.auditor.RecordDispatch(ctx, &audit.Record{
			RequestID:      requestID,
			Provider:       client.Name(),
			Task:           string(req.Task),
			Outcome:        audit.OutcomeFromError(err),
			UpstreamStatus: services.GetUpstreamStatus(err),
			LatencyMs:      int(time.Since(start).Milliseconds()),
		})

		if err == nil {
			r.logger.Info("dispatch succeeded",
				zap.String("request_id", requestID),
				zap.String("provider", client.Name()),
				zap.String("task", string(req.Task)))
			return &Result{
				Provider: client.Name(),
				RawBody:  raw,
				Text:     client.ExtractText(raw),
			}, nil
		}

		if services.IsConfigError(err) {
			return nil, err
		}

		if !services.IsHardFailure(err) {
			return nil, err
		}

		lastErr = err
		if i+1 < len(sequence) {
			r.logger.Warn("provider hard-failed, advancing to next candidate",
				zap.String("request_id", requestID),
				zap.String("provider", client.Name()),
				zap.String("next", sequence[i+1].Name()),
				zap.Error(err))
		}
	}

	return nil, services.NewOrchestrationError("all providers failed", lastErr)
}

// fallbackSequence builds the ordered candidate list for one request
func (r *Router) fallbackSequence(req Request) ([]providers.Client, error) {
	if req.Preference != "" && req.Preference != PreferenceAuto {
		client, err := r.registry.Get(req.Preference)
		if err != nil {
			return nil, services.NewValidationError("invalid request payload")
		}
		return []providers.Client{client}, nil
	}

	primary, err := r.registry.Get(r.primary)
	if err != nil {
		return nil, err
	}
	secondary, err := r.registry.Get(r.secondary)
	if err != nil {
		return nil, err
	}

	// Primary designation follows configuration presence: without
	// primary credentials the secondary serves alone. An uncredentialed
	// sole candidate stays in the sequence so the dispatch reports the
	// missing key without any network call.
	if !primary.HasCredentials() && secondary.HasCredentials() {
		return []providers.Client{secondary}, nil
	}

	sequence := []providers.Client{primary}
	if req.Task == TaskScript && secondary.HasCredentials() {
		sequence = append(sequence, secondary)
	}
	return sequence, nil
}

// invoke runs one candidate through the dispatcher, walking the
// endpoint cascade for providers that have one. Each attempt gets a
// fresh deadline window.
func (r *Router) invoke(ctx context.Context, client providers.Client, prompt providers.Prompt) (string, error) {
	if cascading, ok := client.(providers.CascadeClient); ok {
		return dispatch.TryCascade(ctx, r.dispatcher, cascading, prompt)
	}
	return r.dispatcher.Dispatch(ctx, client.Name(), func(callCtx context.Context) (string, error) {
		return client.Invoke(callCtx, prompt)
	})
}
