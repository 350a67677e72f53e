package dispatch

import (
	"context"
	"fmt"

	"github.com/loomcast/script-gateway/services"
	"github.com/loomcast/script-gateway/services/providers"
	"go.uber.org/zap"
)

// TryCascade iterates a provider's ordered endpoint cascade, performing
// one dispatcher-bounded call per (API revision, model) pair. The first
// success short-circuits. Non-success outcomes, timeouts included, do
// not abort the cascade; it only stops early on success.
//
// A per-request model override replaces the model in every cascade
// entry before iteration, so the override holds on this path too.
//
// On exhaustion the returned error wraps the last observed failure:
// last-failure-wins for the reported cause, not a concatenation.
func TryCascade(ctx context.Context, d *Dispatcher, client providers.CascadeClient, prompt providers.Prompt) (string, error) {
	cascade := client.Cascade()
	if prompt.Model != "" {
		cascade = overrideCascade(cascade, prompt.Model)
	}
	if len(cascade) == 0 {
		return d.Dispatch(ctx, client.Name(), func(callCtx context.Context) (string, error) {
			return client.Invoke(callCtx, prompt)
		})
	}

	var lastErr error
	for _, endpoint := range cascade {
		ep := endpoint
		label := fmt.Sprintf("%s %s/%s", client.Name(), ep.APIVersion, ep.Model)

		raw, err := d.Dispatch(ctx, label, func(callCtx context.Context) (string, error) {
			return client.InvokeEndpoint(callCtx, prompt, ep)
		})
		if err == nil {
			return raw, nil
		}

		// A missing credential fails every endpoint identically;
		// iterating further cannot help
		if services.IsConfigError(err) {
			return "", err
		}

		lastErr = err
		d.logger.Warn("cascade endpoint failed",
			zap.String("endpoint", label),
			zap.Error(err))
	}

	return "", fmt.Errorf("all %d %s cascade endpoints failed: %w", len(cascade), client.Name(), lastErr)
}

// overrideCascade substitutes the requested model into every cascade
// entry, collapsing entries that become identical so no endpoint is
// attempted twice.
func overrideCascade(cascade []providers.Endpoint, model string) []providers.Endpoint {
	seen := make(map[string]bool, len(cascade))
	out := make([]providers.Endpoint, 0, len(cascade))
	for _, ep := range cascade {
		if seen[ep.APIVersion] {
			continue
		}
		seen[ep.APIVersion] = true
		ep.Model = model
		out = append(out, ep)
	}
	return out
}
