package debate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/providers"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/vault"
	"github.com/dmitrijs2005/debatekeeper/internal/common"
	"github.com/dmitrijs2005/debatekeeper/internal/logging"
)

// Vault is the credential surface the orchestrator needs: resolve a decrypted
// key for one call, and meter usage after a successful one.
type Vault interface {
	ResolveActive(ctx context.Context, userID int64, provider string) (vault.ActiveKey, error)
	Decrement(ctx context.Context, credentialID string) error
}

// Metrics receives orchestrator events. Implemented by the prometheus
// collector; a no-op implementation is used when metrics are disabled.
type Metrics interface {
	RecordSession(status string)
	RecordProviderCall(provider, outcome string)
	RecordCallLatency(provider string, d time.Duration)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) RecordSession(string)                    {}
func (NopMetrics) RecordProviderCall(string, string)       {}
func (NopMetrics) RecordCallLatency(string, time.Duration) {}

// Orchestrator drives debate sessions. Safe for concurrent use; each Run owns
// its session state exclusively.
type Orchestrator struct {
	vault        Vault
	registry     *providers.Registry
	maxRounds    int
	retryBackoff time.Duration
	logger       logging.Logger
	metrics      Metrics
}

func NewOrchestrator(v Vault, registry *providers.Registry, maxRounds int, logger logging.Logger, metrics Metrics) *Orchestrator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Orchestrator{
		vault:        v,
		registry:     registry,
		maxRounds:    maxRounds,
		retryBackoff: time.Second,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run executes one debate session for the topic. Providers without an
// eligible credential are excluded up front; zero eligible participants fails
// the session with common.ErrNoEligibleParticipants. The returned Result
// always carries the accumulated transcript, even when the session fails.
func (o *Orchestrator) Run(ctx context.Context, userID int64, topic string, maxRounds int) (*Result, error) {
	if maxRounds <= 0 {
		maxRounds = o.maxRounds
	}

	res := &Result{Topic: topic}

	parts, err := o.resolveParticipants(ctx, userID, res)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		res.Status = StatusFailed
		res.Reason = "no provider has an eligible key"
		o.metrics.RecordSession(string(StatusFailed))
		return res, common.ErrNoEligibleParticipants
	}

	o.logger.Info(ctx, "debate started",
		"user_id", userID, "participants", len(parts), "max_rounds", maxRounds)

	for round := 1; round <= maxRounds; round++ {
		parts, err = o.runRound(ctx, userID, round, parts, res)
		if err != nil {
			o.metrics.RecordSession(string(res.Status))
			return res, err
		}
		res.Rounds = round

		if len(parts) == 0 {
			res.Status = StatusFailed
			res.Reason = "all participants dropped out"
			o.metrics.RecordSession(string(StatusFailed))
			return res, nil
		}
		// A debate cannot continue meaningfully with fewer than two voices;
		// stopping here is normal completion, not an error.
		if len(parts) < 2 {
			break
		}
	}

	res.Status = StatusComplete
	o.metrics.RecordSession(string(StatusComplete))
	o.logger.Info(ctx, "debate finished",
		"user_id", userID, "rounds", res.Rounds, "entries", len(res.Transcript))
	return res, nil
}

// resolveParticipants filters registered providers down to those with an
// eligible credential, in registration order. The decrypted secret obtained
// during the check is wiped immediately; calls re-resolve it per turn.
func (o *Orchestrator) resolveParticipants(ctx context.Context, userID int64, res *Result) ([]*participant, error) {
	var parts []*participant

	for _, name := range o.registry.Names() {
		caller, err := o.registry.Lookup(name)
		if err != nil {
			return nil, err
		}

		key, err := o.vault.ResolveActive(ctx, userID, name)
		switch {
		case err == nil:
			common.WipeByteArray(key.Secret)
			parts = append(parts, &participant{name: name, caller: caller})
		case errors.Is(err, common.ErrNoActiveKey),
			errors.Is(err, common.ErrQuotaExhausted),
			errors.Is(err, common.ErrInvalidToken):
			// Unreadable credentials are fatal for the record, not the session.
			res.Excluded = append(res.Excluded, Exclusion{Provider: name, Reason: err.Error()})
		default:
			return nil, err
		}
	}
	return parts, nil
}

// runRound executes one round sequentially over the participant list and
// returns the survivors. Dropped participants are recorded on the result.
// A non-nil error means the session terminated mid-round (cancellation or a
// persistence failure); res.Status is set before returning in that case.
func (o *Orchestrator) runRound(ctx context.Context, userID int64, round int, parts []*participant, res *Result) ([]*participant, error) {
	survivors := make([]*participant, 0, len(parts))

	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			res.Status = StatusFailed
			res.Reason = fmt.Sprintf("cancelled: %v", err)
			return nil, err
		}

		key, err := o.vault.ResolveActive(ctx, userID, p.name)
		if err != nil {
			if errors.Is(err, common.ErrNoActiveKey) ||
				errors.Is(err, common.ErrQuotaExhausted) ||
				errors.Is(err, common.ErrInvalidToken) {
				res.Dropped = append(res.Dropped, Exclusion{Provider: p.name, Reason: err.Error()})
				o.logger.Warn(ctx, "participant dropped", "provider", p.name, "round", round, "reason", err.Error())
				continue
			}
			res.Status = StatusFailed
			res.Reason = "storage failure"
			return nil, err
		}

		prompt := buildPrompt(res.Topic, res.Transcript, p.name, round)

		start := time.Now()
		text, err := o.callWithRetry(ctx, p.caller, string(key.Secret), prompt)
		common.WipeByteArray(key.Secret)
		o.metrics.RecordCallLatency(p.name, time.Since(start))

		if err != nil {
			if ctx.Err() != nil {
				// Aborted mid-call: no completion was received, so no quota
				// is consumed for this turn.
				res.Status = StatusFailed
				res.Reason = fmt.Sprintf("cancelled: %v", ctx.Err())
				return nil, ctx.Err()
			}
			o.metrics.RecordProviderCall(p.name, "failure")
			res.Dropped = append(res.Dropped, Exclusion{Provider: p.name, Reason: err.Error()})
			o.logger.Warn(ctx, "participant dropped", "provider", p.name, "round", round, "reason", err.Error())
			continue
		}

		o.metrics.RecordProviderCall(p.name, "success")
		res.Transcript = append(res.Transcript, TranscriptEntry{Participant: p.name, Round: round, Text: text})

		if err := o.vault.Decrement(ctx, key.CredentialID); err != nil {
			// Persistence failures are not retried here; they surface as an
			// operational alert to the caller.
			res.Status = StatusFailed
			res.Reason = "storage failure"
			return nil, err
		}

		survivors = append(survivors, p)
	}

	return survivors, nil
}

// callWithRetry invokes the provider, retrying exactly once with backoff when
// the failure is marked retryable.
func (o *Orchestrator) callWithRetry(ctx context.Context, caller providers.Caller, secret, prompt string) (string, error) {
	var text string

	backoff := retry.WithMaxRetries(1, retry.NewConstant(o.retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := caller.Call(ctx, secret, prompt)
		if err != nil {
			var provErr *providers.Error
			if errors.As(err, &provErr) && provErr.Retryable {
				return retry.RetryableError(err)
			}
			return err
		}
		text = t
		return nil
	})
	return text, err
}
