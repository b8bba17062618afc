// Package engine implements the case lifecycle and escalation core: it
// decides whether an inbound message starts or continues a case, applies
// state transitions, evaluates escalation triggers and raises notification
// intents. All decisions live here; transports and stores are collaborators.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/lock"
	"github.com/spec-kit/case-service/internal/notify"
	"github.com/spec-kit/case-service/internal/observability"
	"github.com/spec-kit/case-service/internal/repository"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// Config carries the thresholds and identity sets the engine decides with.
// Injected at construction so tests can vary it freely.
type Config struct {
	AdminIdentities   []string
	Keywords          []string
	ClosurePhrases    []string
	EscalationAfter   time.Duration
	FollowupThreshold int
	StoreTimeout      time.Duration
}

// NewConfig derives engine configuration from the application config.
func NewConfig(cfg config.EngineConfig) Config {
	return Config{
		AdminIdentities:   cfg.AdminIdentities,
		Keywords:          cfg.Keywords,
		ClosurePhrases:    cfg.ClosurePhrases,
		EscalationAfter:   cfg.EscalationAfter(),
		FollowupThreshold: cfg.FollowupThreshold,
		StoreTimeout:      cfg.StoreTimeout(),
	}
}

// Dependencies bundles the engine's collaborators.
type Dependencies struct {
	Cases    repository.CaseRepository
	Tx       repository.TxRunner
	Locks    lock.Locker
	Notifier notify.Notifier
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Result reports what one engine invocation did.
type Result struct {
	Case        *domain.Case
	Message     *domain.Message
	CreatedCase bool
	NewReasons  []domain.EscalationTrigger
	Closed      bool
	Ignored     bool
	Intents     []notify.Intent
}

// Engine orchestrates the case lifecycle per inbound message and per
// periodic tick.
type Engine struct {
	cfg      Config
	rules    []Rule
	closure  *ClosureDetector
	cases    repository.CaseRepository
	tx       repository.TxRunner
	locks    lock.Locker
	notifier notify.Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// New constructs the engine.
func New(cfg Config, deps Dependencies) *Engine {
	return &Engine{
		cfg:      cfg,
		rules:    newRuleSet(cfg),
		closure:  NewClosureDetector(cfg.AdminIdentities, cfg.ClosurePhrases),
		cases:    deps.Cases,
		tx:       deps.Tx,
		locks:    deps.Locks,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
}

// HandleInbound threads one normalized message onto a case, applies the
// closure and escalation logic and emits notification intents. All work for
// one customer identity is serialized behind the per-key lock.
func (e *Engine) HandleInbound(ctx context.Context, in domain.InboundMessage) (*Result, error) {
	if strings.TrimSpace(in.SenderIdentity) == "" {
		return nil, apperrors.NewValidationError("sender identity required", nil)
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now()
	}

	role := domain.RoleCustomer
	if e.closure.IsAdmin(in.SenderIdentity) {
		role = domain.RoleAdmin
	}

	key, ignored, err := e.threadingKey(ctx, in, role)
	if err != nil {
		return nil, err
	}
	if ignored {
		e.logger.Warn("admin message without a resolvable case, ignoring",
			zap.String("sender", in.SenderIdentity))
		return &Result{Ignored: true}, nil
	}

	release, err := e.locks.Acquire(ctx, key)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	defer release()

	c, created, err := e.matchOrCreate(ctx, key, role, in.ReceivedAt)
	if err != nil {
		return nil, err
	}
	if c == nil {
		// Admin message for a customer with no active case; nothing to
		// thread onto and admins never open cases.
		e.logger.Warn("no active case for admin message",
			zap.String("sender", in.SenderIdentity), zap.String("customer", key))
		return &Result{Ignored: true}, nil
	}

	msg := &domain.Message{
		ID:             uuid.NewString(),
		CaseID:         c.ID,
		SenderIdentity: in.SenderIdentity,
		SenderRole:     role,
		Channel:        in.Channel,
		Body:           in.Body,
		Truncated:      in.Truncated,
		ReceivedAt:     in.ReceivedAt,
	}

	if role == domain.RoleCustomer {
		c.LastCustomerMessageAt = in.ReceivedAt
		c.ConsecutiveCustomerMessages++
	} else {
		c.ConsecutiveCustomerMessages = 0
	}

	result := &Result{Case: c, Message: msg, CreatedCase: created}

	if role == domain.RoleAdmin && e.closure.DetectsClosure(in.SenderIdentity, in.Body) {
		closedBy := in.SenderIdentity
		closedAt := in.ReceivedAt
		c.Status = domain.CaseStatusClosed
		c.ClosedAt = &closedAt
		c.ClosedBy = &closedBy
		result.Closed = true
		result.Intents = append(result.Intents, notify.Intent{
			Kind:             notify.IntentClosure,
			CaseID:           c.ID,
			CustomerIdentity: c.CustomerIdentity,
			Excerpt:          notify.Excerpt(in.Body),
			Timestamp:        closedAt,
		})
		e.metrics.IncEngine(observability.CounterClosures)
	} else {
		result.NewReasons = e.applyRules(c, msg, in.ReceivedAt)
		for _, trigger := range result.NewReasons {
			result.Intents = append(result.Intents, notify.Intent{
				Kind:             notify.IntentEscalation,
				CaseID:           c.ID,
				CustomerIdentity: c.CustomerIdentity,
				Trigger:          trigger,
				Excerpt:          notify.Excerpt(in.Body),
				Timestamp:        in.ReceivedAt,
			})
			e.metrics.IncEngine(observability.CounterEscalations)
		}
	}

	// One NEW_MESSAGE intent per inbound message, regardless of outcome.
	result.Intents = append(result.Intents, notify.Intent{
		Kind:             notify.IntentNewMessage,
		CaseID:           c.ID,
		CustomerIdentity: c.CustomerIdentity,
		Excerpt:          notify.Excerpt(in.Body),
		Timestamp:        in.ReceivedAt,
	})

	if err := e.persistAppend(ctx, c, msg); err != nil {
		return nil, err
	}

	e.metrics.IncEngine(observability.CounterInboundProcessed)
	if created {
		e.metrics.IncEngine(observability.CounterCasesCreated)
	}

	e.dispatch(ctx, result.Intents)
	return result, nil
}

// HandleTick re-evaluates the time-based trigger for every active case.
// Per-case failures are logged and skipped so one bad case never blocks
// escalation for the rest of the backlog; the next tick retries naturally.
func (e *Engine) HandleTick(ctx context.Context, now time.Time) []Result {
	storeCtx, cancel := e.withStoreTimeout(ctx)
	active, err := e.cases.ListActive(storeCtx)
	cancel()
	if err != nil {
		e.logger.Error("tick: listing active cases failed", zap.Error(err))
		return nil
	}

	timer := timeRule{threshold: e.cfg.EscalationAfter}
	var results []Result

	for i := range active {
		result, err := e.tickCase(ctx, active[i].ID, active[i].CustomerIdentity, timer, now)
		if err != nil {
			e.logger.Warn("tick: skipping case",
				zap.String("case_id", active[i].ID), zap.Error(err))
			e.metrics.IncEngine(observability.CounterTickCasesSkipped)
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	return results
}

func (e *Engine) tickCase(ctx context.Context, caseID, customerIdentity string, timer timeRule, now time.Time) (*Result, error) {
	release, err := e.locks.Acquire(ctx, customerIdentity)
	if err != nil {
		return nil, err
	}
	defer release()

	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()

	// Re-read under the lock; an inbound message may have closed or
	// escalated the case since the listing.
	c, err := e.cases.GetByID(storeCtx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.Status.Active() {
		return nil, nil
	}
	if c.HasReason(domain.TriggerTime) || !timer.Fires(c, nil, now) {
		return nil, nil
	}

	e.escalate(c, domain.TriggerTime, now)
	if err := e.cases.Update(storeCtx, c); err != nil {
		return nil, err
	}
	e.metrics.IncEngine(observability.CounterEscalations)

	result := &Result{
		Case:       c,
		NewReasons: []domain.EscalationTrigger{domain.TriggerTime},
		Intents: []notify.Intent{{
			Kind:             notify.IntentEscalation,
			CaseID:           c.ID,
			CustomerIdentity: c.CustomerIdentity,
			Trigger:          domain.TriggerTime,
			Timestamp:        now,
		}},
	}
	e.dispatch(ctx, result.Intents)
	return result, nil
}

// threadingKey resolves which customer identity a message threads under.
// Customers thread under their own identity. Admin replies may carry an
// explicit customer identity from the adapter; without one, the admin is
// taken to be replying to the most recently updated active case.
func (e *Engine) threadingKey(ctx context.Context, in domain.InboundMessage, role domain.SenderRole) (string, bool, error) {
	if key := strings.TrimSpace(in.CustomerIdentity); key != "" {
		return key, false, nil
	}
	if role == domain.RoleCustomer {
		return in.SenderIdentity, false, nil
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	recent, err := e.cases.GetMostRecentActive(storeCtx)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", true, nil
		}
		return "", false, apperrors.NewStoreError(err)
	}
	return recent.CustomerIdentity, false, nil
}

// matchOrCreate runs the case matcher and creates a fresh OPEN case when
// a customer has no active one. A closed case is never reopened; its
// customer's next message lands here as "no match" and gets a new case.
func (e *Engine) matchOrCreate(ctx context.Context, key string, role domain.SenderRole, receivedAt time.Time) (*domain.Case, bool, error) {
	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()

	c, err := e.cases.GetOpenByCustomer(storeCtx, key)
	if err == nil {
		return c, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, apperrors.NewStoreError(err)
	}
	if role == domain.RoleAdmin {
		return nil, false, nil
	}

	fresh := &domain.Case{
		ID:                    uuid.NewString(),
		CustomerIdentity:      key,
		Status:                domain.CaseStatusOpen,
		CreatedAt:             receivedAt,
		UpdatedAt:             receivedAt,
		LastCustomerMessageAt: receivedAt,
	}
	if err := e.cases.Create(storeCtx, fresh); err != nil {
		if apperrors.IsConflict(err) {
			// Lost a creation race against another instance; the winner's
			// case is the match.
			existing, lookupErr := e.cases.GetOpenByCustomer(storeCtx, key)
			if lookupErr != nil {
				return nil, false, apperrors.NewStoreError(lookupErr)
			}
			return existing, false, nil
		}
		return nil, false, apperrors.NewStoreError(err)
	}
	return fresh, true, nil
}

// applyRules evaluates every escalation rule and records newly fired
// triggers on the case. Already-fired triggers are skipped, which is the
// only dedup between repeated evaluations.
func (e *Engine) applyRules(c *domain.Case, latest *domain.Message, now time.Time) []domain.EscalationTrigger {
	var fired []domain.EscalationTrigger
	for _, rule := range e.rules {
		if c.HasReason(rule.Trigger()) {
			continue
		}
		if rule.Fires(c, latest, now) {
			e.escalate(c, rule.Trigger(), now)
			fired = append(fired, rule.Trigger())
		}
	}
	return fired
}

func (e *Engine) escalate(c *domain.Case, trigger domain.EscalationTrigger, now time.Time) {
	c.EscalatedReasons = append(c.EscalatedReasons, trigger)
	if c.Status == domain.CaseStatusOpen {
		c.Status = domain.CaseStatusEscalated
	}
	if c.EscalatedAt == nil {
		at := now
		c.EscalatedAt = &at
	}
}

// persistAppend stores the message and the updated case as one unit. On
// any failure the transaction rolls back, so a redelivered webhook finds
// the case exactly as it was before this message arrived.
func (e *Engine) persistAppend(ctx context.Context, c *domain.Case, msg *domain.Message) error {
	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	err := e.tx.InTx(storeCtx, func(cases repository.CaseRepository, messages repository.MessageRepository) error {
		if err := messages.Create(storeCtx, msg); err != nil {
			return err
		}
		return cases.Update(storeCtx, c)
	})
	if err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// dispatch hands intents to the notifier after the state transition is
// persisted. Delivery failures are the notifier's problem; they never roll
// back or block the transition.
func (e *Engine) dispatch(ctx context.Context, intents []notify.Intent) {
	for _, intent := range intents {
		if err := e.notifier.Notify(ctx, intent); err != nil {
			e.metrics.IncEngine(observability.CounterNotificationFailures)
		}
	}
}

func (e *Engine) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
