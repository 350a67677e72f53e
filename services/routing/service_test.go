package routing

import (
	"context"
	"testing"
	"time"

	"github.com/loomcast/script-gateway/services"
	"github.com/loomcast/script-gateway/services/audit"
	"github.com/loomcast/script-gateway/services/dispatch"
	"github.com/loomcast/script-gateway/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubClient is a scriptable providers.Client with call counting
type stubClient struct {
	name    string
	creds   bool
	calls   int
	respond func(ctx context.Context) (string, error)
}

func (s *stubClient) Name() string                   { return s.name }
func (s *stubClient) CallStyle() providers.CallStyle { return providers.CallStyleChat }
func (s *stubClient) HasCredentials() bool           { return s.creds }
func (s *stubClient) ExtractText(raw string) string  { return "text:" + raw }

func (s *stubClient) Invoke(ctx context.Context, prompt providers.Prompt) (string, error) {
	s.calls++
	if s.respond != nil {
		return s.respond(ctx)
	}
	if !s.creds {
		return "", services.NewConfigError(s.name + "_KEY")
	}
	return s.name + "-response", nil
}

// memoryAuditRepo captures dispatch records in memory
type memoryAuditRepo struct {
	records []audit.Record
}

func (m *memoryAuditRepo) InsertDispatch(ctx context.Context, rec *audit.Record) error {
	m.records = append(m.records, *rec)
	return nil
}

type routerFixture struct {
	router  *Router
	primary *stubClient
	second  *stubClient
	repo    *memoryAuditRepo
}

func newFixture(t *testing.T, primary, second *stubClient) *routerFixture {
	t.Helper()

	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(primary))
	require.NoError(t, registry.Register(second))
	registry.Freeze()

	logger := zap.NewNop()
	repo := &memoryAuditRepo{}
	router := NewRouter(registry,
		dispatch.NewDispatcher(time.Second, logger),
		audit.NewService(repo, logger),
		primary.name, second.name, logger)

	return &routerFixture{router: router, primary: primary, second: second, repo: repo}
}

func upstreamFailure(status int) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return "", services.NewUpstreamError(status, "rejected", nil)
	}
}

func TestRoute_PrimarySuccess(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: true},
		&stubClient{name: "beta", creds: true})

	result, err := f.router.Route(context.Background(), Request{
		Task:       TaskScript,
		Preference: PreferenceAuto,
	})

	require.NoError(t, err)
	assert.Equal(t, "alpha", result.Provider)
	assert.Equal(t, "alpha-response", result.RawBody)
	assert.Equal(t, "text:alpha-response", result.Text)
	assert.Equal(t, 1, f.primary.calls)
	assert.Equal(t, 0, f.second.calls, "secondary must not be attempted after primary success")
}

func TestRoute_ScriptFallsBackOnHardFailure(t *testing.T) {
	t.Run("upstream error advances", func(t *testing.T) {
		f := newFixture(t,
			&stubClient{name: "alpha", creds: true, respond: upstreamFailure(503)},
			&stubClient{name: "beta", creds: true})

		result, err := f.router.Route(context.Background(), Request{
			Task:       TaskScript,
			Preference: PreferenceAuto,
		})

		require.NoError(t, err)
		assert.Equal(t, "beta", result.Provider)
		assert.Equal(t, 1, f.primary.calls)
		assert.Equal(t, 1, f.second.calls)
	})

	t.Run("timeout advances", func(t *testing.T) {
		f := newFixture(t,
			&stubClient{name: "alpha", creds: true, respond: func(ctx context.Context) (string, error) {
				return "", services.NewTimeoutError("too slow", nil)
			}},
			&stubClient{name: "beta", creds: true})

		result, err := f.router.Route(context.Background(), Request{
			Task:       TaskScript,
			Preference: PreferenceAuto,
		})

		require.NoError(t, err)
		assert.Equal(t, "beta", result.Provider)
	})
}

func TestRoute_UncredentialedSecondaryNeverAttempted(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: true, respond: upstreamFailure(503)},
		&stubClient{name: "beta", creds: false})

	_, err := f.router.Route(context.Background(), Request{
		Task:       TaskScript,
		Preference: PreferenceAuto,
	})

	require.Error(t, err)
	assert.True(t, services.IsOrchestrationError(err))
	assert.Equal(t, 1, f.primary.calls)
	assert.Equal(t, 0, f.second.calls)
}

func TestRoute_NonScriptTasksNeverFallBack(t *testing.T) {
	for _, task := range []Task{TaskChat, TaskSimple} {
		t.Run(string(task), func(t *testing.T) {
			f := newFixture(t,
				&stubClient{name: "alpha", creds: true, respond: upstreamFailure(503)},
				&stubClient{name: "beta", creds: true})

			_, err := f.router.Route(context.Background(), Request{
				Task:       task,
				Preference: PreferenceAuto,
			})

			require.Error(t, err)
			assert.True(t, services.IsOrchestrationError(err))
			assert.Equal(t, 1, f.primary.calls)
			assert.Equal(t, 0, f.second.calls)
		})
	}
}

func TestRoute_ExplicitPreferenceDisablesFallback(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: true, respond: upstreamFailure(503)},
		&stubClient{name: "beta", creds: true})

	_, err := f.router.Route(context.Background(), Request{
		Task:       TaskScript,
		Preference: "alpha",
	})

	require.Error(t, err)
	assert.True(t, services.IsOrchestrationError(err))
	assert.Equal(t, 1, f.primary.calls)
	assert.Equal(t, 0, f.second.calls)
}

func TestRoute_UnknownPreferenceIsValidationError(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: true},
		&stubClient{name: "beta", creds: true})

	_, err := f.router.Route(context.Background(), Request{
		Task:       TaskScript,
		Preference: "openai",
	})

	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
	assert.Equal(t, 0, f.primary.calls)
	assert.Equal(t, 0, f.second.calls)
}

func TestRoute_UncredentialedPrimaryShiftsToSecondary(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: false},
		&stubClient{name: "beta", creds: true})

	result, err := f.router.Route(context.Background(), Request{
		Task:       TaskChat,
		Preference: PreferenceAuto,
	})

	require.NoError(t, err)
	assert.Equal(t, "beta", result.Provider)
	assert.Equal(t, 0, f.primary.calls, "uncredentialed primary must never be attempted")
}

func TestRoute_NoCredentialsAnywhereIsConfigErrorWithoutNetwork(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: false},
		&stubClient{name: "beta", creds: false})

	_, err := f.router.Route(context.Background(), Request{
		Task:       TaskScript,
		Preference: PreferenceAuto,
	})

	require.Error(t, err)
	assert.True(t, services.IsConfigError(err))
	// The sole candidate reports its missing key; the credential check
	// happens before any network dialing inside the client
	assert.Equal(t, 1, f.primary.calls)
	assert.Equal(t, 0, f.second.calls)
}

func TestRoute_ConfigErrorIsTerminal(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: true, respond: func(ctx context.Context) (string, error) {
			return "", services.NewConfigError("ALPHA_KEY")
		}},
		&stubClient{name: "beta", creds: true})

	_, err := f.router.Route(context.Background(), Request{
		Task:       TaskScript,
		Preference: PreferenceAuto,
	})

	require.Error(t, err)
	assert.True(t, services.IsConfigError(err))
	assert.Equal(t, 0, f.second.calls, "config errors are never retried cross-provider")
}

func TestRoute_ExhaustionCarriesLastFailure(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: true, respond: upstreamFailure(500)},
		&stubClient{name: "beta", creds: true, respond: upstreamFailure(429)})

	_, err := f.router.Route(context.Background(), Request{
		Task:       TaskScript,
		Preference: PreferenceAuto,
	})

	require.Error(t, err)
	assert.True(t, services.IsOrchestrationError(err))
	assert.Equal(t, 429, services.GetUpstreamStatus(err))
}

// cascadeStubClient implements providers.CascadeClient and records
// every endpoint it is asked to call
type cascadeStubClient struct {
	stubClient
	cascade  []providers.Endpoint
	attempts []providers.Endpoint
}

func (s *cascadeStubClient) Cascade() []providers.Endpoint { return s.cascade }

func (s *cascadeStubClient) InvokeEndpoint(ctx context.Context, prompt providers.Prompt, ep providers.Endpoint) (string, error) {
	s.attempts = append(s.attempts, ep)
	return s.name + "-response", nil
}

func TestRoute_ModelOverrideReachesCascadingProvider(t *testing.T) {
	primary := &cascadeStubClient{
		stubClient: stubClient{name: "alpha", creds: true},
		cascade: []providers.Endpoint{
			{APIVersion: "v1beta", Model: "flash-2"},
			{APIVersion: "v1", Model: "flash-1"},
		},
	}
	second := &stubClient{name: "beta", creds: true}

	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(primary))
	require.NoError(t, registry.Register(second))
	registry.Freeze()

	logger := zap.NewNop()
	router := NewRouter(registry,
		dispatch.NewDispatcher(time.Second, logger),
		audit.NewService(&memoryAuditRepo{}, logger),
		primary.name, second.name, logger)

	result, err := router.Route(context.Background(), Request{
		Task:       TaskChat,
		Preference: PreferenceAuto,
		Prompt:     providers.Prompt{Model: "custom-model"},
	})

	require.NoError(t, err)
	assert.Equal(t, "alpha", result.Provider)
	// The requested model must reach the outbound endpoint, not the
	// configured cascade default
	require.Len(t, primary.attempts, 1)
	assert.Equal(t, "custom-model", primary.attempts[0].Model)
	assert.Equal(t, "v1beta", primary.attempts[0].APIVersion)
}

func TestRoute_AuditRecordsEveryAttempt(t *testing.T) {
	f := newFixture(t,
		&stubClient{name: "alpha", creds: true, respond: upstreamFailure(503)},
		&stubClient{name: "beta", creds: true})

	_, err := f.router.Route(context.Background(), Request{
		Task:       TaskScript,
		Preference: PreferenceAuto,
	})
	require.NoError(t, err)

	require.Len(t, f.repo.records, 2)

	first := f.repo.records[0]
	assert.Equal(t, "alpha", first.Provider)
	assert.Equal(t, "script", first.Task)
	assert.Equal(t, audit.OutcomeUpstream, first.Outcome)
	assert.Equal(t, 503, first.UpstreamStatus)

	second := f.repo.records[1]
	assert.Equal(t, "beta", second.Provider)
	assert.Equal(t, audit.OutcomeSuccess, second.Outcome)
}
