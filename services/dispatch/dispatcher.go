package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loomcast/script-gateway/services"
	"go.uber.org/zap"
)

// Call performs one outbound provider call. It must react to context
// cancellation; the dispatcher treats deadline expiry and cooperative
// cancellation as the same Timeout outcome.
type Call func(ctx context.Context) (string, error)

// Dispatcher bounds every outbound provider call with a hard wall-clock
// deadline. The deadline sits slightly below the host execution ceiling
// so a timeout can still be converted into a well-formed error response
// before the host terminates execution.
type Dispatcher struct {
	deadline time.Duration
	logger   *zap.Logger
}

// NewDispatcher creates a new dispatcher with the given per-call deadline
func NewDispatcher(deadline time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		deadline: deadline,
		logger:   logger,
	}
}

// Deadline returns the configured per-call deadline
func (d *Dispatcher) Deadline() time.Duration {
	return d.deadline
}

// Dispatch runs one call under a fresh deadline window. Deadlines are
// per-call: every candidate in a fallback sequence gets its own full
// window, never a shared or cumulative one.
//
// An overrun is reported as a Timeout domain error, never conflated
// with a generic upstream error, so fallback logic can distinguish
// "too slow" from "rejected".
func (d *Dispatcher) Dispatch(ctx context.Context, label string, call Call) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	start := time.Now()
	raw, err := call(callCtx)
	elapsed := time.Since(start)

	if err != nil {
		if timedOut(callCtx, err) {
			d.logger.Warn("dispatch deadline exceeded",
				zap.String("call", label),
				zap.Duration("deadline", d.deadline),
				zap.Duration("elapsed", elapsed))
			return "", services.NewTimeoutError(
				fmt.Sprintf("%s call exceeded %s deadline", label, d.deadline), err)
		}
		return "", err
	}

	d.logger.Debug("dispatch completed",
		zap.String("call", label),
		zap.Duration("elapsed", elapsed))
	return raw, nil
}

// timedOut reports whether the failure is attributable to the
// dispatcher's own deadline rather than the upstream or the caller
func timedOut(callCtx context.Context, err error) bool {
	if callCtx.Err() == context.DeadlineExceeded {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
