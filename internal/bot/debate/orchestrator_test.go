package debate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/providers"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/repositories/credentials"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/vault"
	"github.com/dmitrijs2005/debatekeeper/internal/common"
	"github.com/dmitrijs2005/debatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/debatekeeper/internal/logging"
)

const testUser int64 = 42

// fakeCaller scripts provider behavior per call. The zero value answers every
// call successfully.
type fakeCaller struct {
	name    string
	errs    []error // errs[i] is returned for call i; nil means success
	calls   int
	prompts []string
	onCall  func() // runs before each call, e.g. to cancel a context
}

func (f *fakeCaller) Name() string { return f.name }

func (f *fakeCaller) Call(ctx context.Context, secret, prompt string) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	return fmt.Sprintf("%s says #%d", f.name, i+1), nil
}

func (f *fakeCaller) Validate(ctx context.Context, secret string) error { return nil }

func nonRetryable(name string) error {
	return &providers.Error{Provider: name, Status: 401, Message: "bad key", Retryable: false}
}

func retryableErr(name string) error {
	return &providers.Error{Provider: name, Status: 503, Message: "overloaded", Retryable: true}
}

type fixture struct {
	vault *vault.Service
	reg   *providers.Registry
	orch  *Orchestrator
}

// newFixture builds an orchestrator over a real vault (in-memory repository)
// and the given fake callers, adding one credential per caller.
func newFixture(t *testing.T, maxRounds int, quota int, callers ...*fakeCaller) *fixture {
	t.Helper()

	cipher, err := cryptox.New("orchestrator-test-secret")
	require.NoError(t, err)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	v := vault.NewService(credentials.NewInMemoryRepository(), cipher, quota, 5, logger)

	reg := providers.NewRegistry()
	for _, c := range callers {
		require.NoError(t, reg.Register(c))
		_, err := v.AddCredential(context.Background(), testUser, c.name, "sk-"+c.name+"-key", c.name+" key")
		require.NoError(t, err)
	}

	orch := NewOrchestrator(v, reg, maxRounds, logger, nil)
	orch.retryBackoff = time.Millisecond

	return &fixture{vault: v, reg: reg, orch: orch}
}

func TestRun_ThreeParticipantsTwoRounds(t *testing.T) {
	a := &fakeCaller{name: "alpha"}
	b := &fakeCaller{name: "beta"}
	c := &fakeCaller{name: "gamma"}
	f := newFixture(t, 2, 10, a, b, c)

	res, err := f.orch.Run(context.Background(), testUser, "tabs vs spaces", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 2, res.Rounds)
	require.Len(t, res.Transcript, 6)

	// Strictly ordered by round, then participant order.
	want := []struct {
		participant string
		round       int
	}{
		{"alpha", 1}, {"beta", 1}, {"gamma", 1},
		{"alpha", 2}, {"beta", 2}, {"gamma", 2},
	}
	for i, w := range want {
		assert.Equal(t, w.participant, res.Transcript[i].Participant, "entry %d", i)
		assert.Equal(t, w.round, res.Transcript[i].Round, "entry %d", i)
	}
}

func TestRun_QuotaDecrementedOncePerSuccessfulCall(t *testing.T) {
	a := &fakeCaller{name: "alpha"}
	b := &fakeCaller{name: "beta"}
	f := newFixture(t, 3, 10, a, b)

	_, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	list, err := f.vault.ListCredentials(context.Background(), testUser)
	require.NoError(t, err)
	for _, c := range list {
		assert.Equal(t, 7, c.Remaining, "3 rounds must consume 3 calls for %s", c.Provider)
	}
}

func TestRun_LaterParticipantSeesEarlierOutputSameRound(t *testing.T) {
	a := &fakeCaller{name: "alpha"}
	b := &fakeCaller{name: "beta"}
	f := newFixture(t, 1, 10, a, b)

	_, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	require.Len(t, b.prompts, 1)
	assert.Contains(t, b.prompts[0], "alpha says #1", "beta must see alpha's turn from the same round")
	require.Len(t, a.prompts, 1)
	assert.NotContains(t, a.prompts[0], "beta", "alpha opens the round without beta's output")
}

func TestRun_DegradationDropsOnlyFailedParticipant(t *testing.T) {
	a := &fakeCaller{name: "alpha"}
	b := &fakeCaller{name: "beta", errs: []error{nonRetryable("beta")}}
	c := &fakeCaller{name: "gamma"}
	f := newFixture(t, 2, 10, a, b, c)

	res, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, res.Status)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "beta", res.Dropped[0].Provider)

	// Round 1: alpha + gamma spoke; round 2 proceeds without beta.
	require.Len(t, res.Transcript, 4)
	for _, e := range res.Transcript {
		assert.NotEqual(t, "beta", e.Participant)
	}
	assert.Equal(t, 1, b.calls, "non-retryable failure must not be retried")
}

func TestRun_EarlyTerminationWithOneVoiceLeft(t *testing.T) {
	a := &fakeCaller{name: "alpha"}
	b := &fakeCaller{name: "beta", errs: []error{nonRetryable("beta")}}
	f := newFixture(t, 5, 10, a, b)

	res, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	// One of two voices failed in round 1: the session completes after that
	// round instead of failing, returning the partial transcript.
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 1, res.Rounds)
	require.Len(t, res.Transcript, 1)
	assert.Equal(t, "alpha", res.Transcript[0].Participant)
}

func TestRun_AllParticipantsFail(t *testing.T) {
	a := &fakeCaller{name: "alpha", errs: []error{nonRetryable("alpha")}}
	b := &fakeCaller{name: "beta", errs: []error{nonRetryable("beta")}}
	f := newFixture(t, 2, 10, a, b)

	res, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.Reason)
	assert.Empty(t, res.Transcript)
	assert.Len(t, res.Dropped, 2)
}

func TestRun_NoEligibleParticipants(t *testing.T) {
	cipher, err := cryptox.New("orchestrator-test-secret")
	require.NoError(t, err)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	v := vault.NewService(credentials.NewInMemoryRepository(), cipher, 10, 5, logger)

	reg := providers.NewRegistry()
	require.NoError(t, reg.Register(&fakeCaller{name: "alpha"}))

	orch := NewOrchestrator(v, reg, 2, logger, nil)

	res, err := orch.Run(context.Background(), testUser, "topic", 0)
	assert.ErrorIs(t, err, common.ErrNoEligibleParticipants)
	require.NotNil(t, res)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Len(t, res.Excluded, 1)
}

func TestRun_IneligibleProviderExcludedNotFatal(t *testing.T) {
	a := &fakeCaller{name: "alpha"}
	b := &fakeCaller{name: "beta"}
	f := newFixture(t, 1, 10, a, b)

	// A third provider is registered but has no key.
	require.NoError(t, f.reg.Register(&fakeCaller{name: "gamma"}))

	res, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, res.Status)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "gamma", res.Excluded[0].Provider)
	assert.True(t, strings.Contains(res.Excluded[0].Reason, "no active key"))
}

func TestRun_RetryableFailureRetriedOnce(t *testing.T) {
	a := &fakeCaller{name: "alpha", errs: []error{retryableErr("alpha"), nil}}
	b := &fakeCaller{name: "beta"}
	f := newFixture(t, 1, 10, a, b)

	res, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, a.calls, "one retry after a retryable failure")
	require.Len(t, res.Transcript, 2)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, StatusComplete, res.Status)
}

func TestRun_RetryableFailureTwiceDropsParticipant(t *testing.T) {
	a := &fakeCaller{name: "alpha", errs: []error{retryableErr("alpha"), retryableErr("alpha")}}
	b := &fakeCaller{name: "beta"}
	c := &fakeCaller{name: "gamma"}
	f := newFixture(t, 1, 10, a, b, c)

	res, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, a.calls)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "alpha", res.Dropped[0].Provider)
	require.Len(t, res.Transcript, 2)
}

func TestRun_MidSessionQuotaExhaustionDegrades(t *testing.T) {
	a := &fakeCaller{name: "alpha"}
	b := &fakeCaller{name: "beta"}
	c := &fakeCaller{name: "gamma"}
	// Quota of 1: every participant runs out after round 1.
	f := newFixture(t, 3, 1, a, b, c)

	res, err := f.orch.Run(context.Background(), testUser, "topic", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Transcript, 3, "round 1 output is kept")
	assert.Len(t, res.Dropped, 3)
	for _, d := range res.Dropped {
		assert.Contains(t, d.Reason, "quota exhausted")
	}
}

func TestRun_CancellationBetweenCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &fakeCaller{name: "alpha", onCall: cancel}
	b := &fakeCaller{name: "beta"}
	f := newFixture(t, 2, 10, a, b)

	res, err := f.orch.Run(ctx, testUser, "topic", 0)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "cancelled")
	// alpha's completed turn survives; beta never ran.
	require.Len(t, res.Transcript, 1)
	assert.Equal(t, 0, b.calls)

	// Quota: alpha consumed one call, beta none.
	list, err := f.vault.ListCredentials(context.Background(), testUser)
	require.NoError(t, err)
	for _, cr := range list {
		switch cr.Provider {
		case "alpha":
			assert.Equal(t, 9, cr.Remaining)
		case "beta":
			assert.Equal(t, 10, cr.Remaining, "no quota consumed for a turn that never happened")
		}
	}
}

func TestRun_MaxRoundsOverride(t *testing.T) {
	a := &fakeCaller{name: "alpha"}
	b := &fakeCaller{name: "beta"}
	f := newFixture(t, 5, 10, a, b)

	res, err := f.orch.Run(context.Background(), testUser, "topic", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Len(t, res.Transcript, 2)
}

func TestBuildPrompt_Format(t *testing.T) {
	transcript := []TranscriptEntry{
		{Participant: "alpha", Round: 1, Text: "opening"},
		{Participant: "beta", Round: 1, Text: "rebuttal"},
		{Participant: "alpha", Round: 2, Text: "counter"},
	}

	p := buildPrompt("tabs vs spaces", transcript, "beta", 2)
	assert.Contains(t, p, "You are beta")
	assert.Contains(t, p, "Debate topic: tabs vs spaces")
	assert.Contains(t, p, "--- Round 1 ---")
	assert.Contains(t, p, "--- Round 2 ---")
	assert.Contains(t, p, "alpha: opening")
	assert.Contains(t, p, "Continue the discussion")

	opener := buildPrompt("tabs vs spaces", nil, "alpha", 1)
	assert.Contains(t, opener, "Open the debate")
	assert.NotContains(t, opener, "--- Round")
}

// secretTrackingVault keeps a reference to every secret buffer it hands out
// so tests can check the orchestrator zeroes them after use.
type secretTrackingVault struct {
	inner   Vault
	buffers [][]byte
}

func (v *secretTrackingVault) ResolveActive(ctx context.Context, userID int64, provider string) (vault.ActiveKey, error) {
	key, err := v.inner.ResolveActive(ctx, userID, provider)
	if err == nil {
		v.buffers = append(v.buffers, key.Secret)
	}
	return key, err
}

func (v *secretTrackingVault) Decrement(ctx context.Context, credentialID string) error {
	return v.inner.Decrement(ctx, credentialID)
}

func TestRun_WipesResolvedSecrets(t *testing.T) {
	f := newFixture(t, 2, 10, &fakeCaller{name: "alpha"}, &fakeCaller{name: "beta"})

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	tracking := &secretTrackingVault{inner: f.vault}
	orch := NewOrchestrator(tracking, f.reg, 2, logger, nil)
	orch.retryBackoff = time.Millisecond

	res, err := orch.Run(context.Background(), testUser, "tabs vs spaces", 0)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, res.Status)

	// 2 resolutions in the eligibility filter + 4 per-call resolutions.
	require.Len(t, tracking.buffers, 6)
	for i, buf := range tracking.buffers {
		require.NotEmpty(t, buf)
		for _, b := range buf {
			assert.Zero(t, b, "secret buffer %d not wiped", i)
		}
	}
}
