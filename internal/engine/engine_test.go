package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/lock"
	"github.com/spec-kit/case-service/internal/notify"
	"github.com/spec-kit/case-service/internal/observability"
	"github.com/spec-kit/case-service/internal/repository"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// memCaseRepo is an in-memory CaseRepository enforcing the same one-active-
// case-per-customer constraint the Postgres partial unique index provides.
type memCaseRepo struct {
	mu    sync.Mutex
	cases map[string]*domain.Case

	failUpdateFor map[string]error
	// matcherMissesOnce makes the next GetOpenByCustomer report no match
	// while Create still sees every case, forcing the creation-conflict
	// path a concurrent instance's insert would cause.
	matcherMissesOnce bool
}

func newMemCaseRepo() *memCaseRepo {
	return &memCaseRepo{cases: make(map[string]*domain.Case)}
}

func (r *memCaseRepo) Create(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.cases {
		if existing.CustomerIdentity == c.CustomerIdentity && existing.Status.Active() {
			return apperrors.NewConflict("active case already exists for customer", nil)
		}
	}
	c.UpdatedAt = c.CreatedAt
	r.cases[c.ID] = cloneCase(c)
	return nil
}

func (r *memCaseRepo) Update(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failUpdateFor[c.ID]; err != nil {
		return err
	}
	if _, ok := r.cases[c.ID]; !ok {
		return apperrors.NewNotFound("case", nil)
	}
	c.UpdatedAt = time.Now()
	r.cases[c.ID] = cloneCase(c)
	return nil
}

func (r *memCaseRepo) GetByID(_ context.Context, id string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, apperrors.NewNotFound("case", nil)
	}
	return cloneCase(c), nil
}

func (r *memCaseRepo) GetOpenByCustomer(_ context.Context, customerIdentity string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.matcherMissesOnce {
		r.matcherMissesOnce = false
		return nil, apperrors.NewNotFound("case", nil)
	}
	var match *domain.Case
	for _, c := range r.cases {
		if c.CustomerIdentity != customerIdentity || !c.Status.Active() {
			continue
		}
		if match == nil || c.UpdatedAt.After(match.UpdatedAt) {
			match = c
		}
	}
	if match == nil {
		return nil, apperrors.NewNotFound("case", nil)
	}
	return cloneCase(match), nil
}

func (r *memCaseRepo) GetMostRecentActive(_ context.Context) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var match *domain.Case
	for _, c := range r.cases {
		if !c.Status.Active() {
			continue
		}
		if match == nil || c.UpdatedAt.After(match.UpdatedAt) {
			match = c
		}
	}
	if match == nil {
		return nil, apperrors.NewNotFound("active case", nil)
	}
	return cloneCase(match), nil
}

func (r *memCaseRepo) ListActive(_ context.Context) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Case
	for _, c := range r.cases {
		if c.Status.Active() {
			out = append(out, *cloneCase(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *memCaseRepo) List(_ context.Context, _ repository.CaseFilter) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Case
	for _, c := range r.cases {
		out = append(out, *cloneCase(c))
	}
	return out, nil
}

func cloneCase(c *domain.Case) *domain.Case {
	copied := *c
	copied.EscalatedReasons = append([]domain.EscalationTrigger(nil), c.EscalatedReasons...)
	return &copied
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (r *memMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memMessageRepo) ListByCase(_ context.Context, caseID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.CaseID == caseID {
			out = append(out, m)
		}
	}
	return out, nil
}

// memTxRunner mimics transaction semantics over the in-memory stores:
// on error every write made inside fn is rolled back.
type memTxRunner struct {
	cases    *memCaseRepo
	messages *memMessageRepo
}

func (r *memTxRunner) InTx(_ context.Context, fn func(repository.CaseRepository, repository.MessageRepository) error) error {
	r.cases.mu.Lock()
	casesSnap := make(map[string]*domain.Case, len(r.cases.cases))
	for id, c := range r.cases.cases {
		casesSnap[id] = cloneCase(c)
	}
	r.cases.mu.Unlock()

	r.messages.mu.Lock()
	msgSnap := append([]domain.Message(nil), r.messages.messages...)
	r.messages.mu.Unlock()

	if err := fn(r.cases, r.messages); err != nil {
		r.cases.mu.Lock()
		r.cases.cases = casesSnap
		r.cases.mu.Unlock()

		r.messages.mu.Lock()
		r.messages.messages = msgSnap
		r.messages.mu.Unlock()
		return err
	}
	return nil
}

// recordingNotifier captures dispatched intents.
type recordingNotifier struct {
	mu      sync.Mutex
	intents []notify.Intent
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, intent notify.Intent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intents = append(n.intents, intent)
	return n.err
}

func (n *recordingNotifier) kinds() []notify.IntentKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.IntentKind, 0, len(n.intents))
	for _, i := range n.intents {
		out = append(out, i.Kind)
	}
	return out
}

type fixture struct {
	engine   *Engine
	cases    *memCaseRepo
	messages *memMessageRepo
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := Config{
		AdminIdentities:   []string{"admin@support.example.com"},
		Keywords:          []string{"urgent", "immediately"},
		ClosurePhrases:    []string{"I'm closing this case."},
		EscalationAfter:   48 * time.Hour,
		FollowupThreshold: 3,
		StoreTimeout:      time.Second,
	}
	cases := newMemCaseRepo()
	messages := &memMessageRepo{}
	notifier := &recordingNotifier{}
	eng := New(cfg, Dependencies{
		Cases:    cases,
		Tx:       &memTxRunner{cases: cases, messages: messages},
		Locks:    lock.NewKeyedMutex(),
		Notifier: notifier,
		Logger:   zap.NewNop(),
		Metrics:  observability.NewMetrics(),
	})
	return &fixture{engine: eng, cases: cases, messages: messages, notifier: notifier}
}

func customerMsg(sender, body string, at time.Time) domain.InboundMessage {
	return domain.InboundMessage{
		SenderIdentity: sender,
		Channel:        domain.ChannelEmail,
		Body:           body,
		ReceivedAt:     at,
	}
}

func adminMsg(body string, at time.Time) domain.InboundMessage {
	return domain.InboundMessage{
		SenderIdentity: "admin@support.example.com",
		Channel:        domain.ChannelEmail,
		Body:           body,
		ReceivedAt:     at,
	}
}

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func TestHandleInboundCreatesCaseForNewCustomer(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.HandleInbound(context.Background(), customerMsg("alice@example.com", "My widget broke", base))
	require.NoError(t, err)
	require.True(t, result.CreatedCase)
	require.Equal(t, domain.CaseStatusOpen, result.Case.Status)
	require.Equal(t, "alice@example.com", result.Case.CustomerIdentity)
	require.Equal(t, 1, result.Case.ConsecutiveCustomerMessages)
	require.Equal(t, base, result.Case.LastCustomerMessageAt)
	require.Equal(t, []notify.IntentKind{notify.IntentNewMessage}, f.notifier.kinds())
}

func TestHandleInboundThreadsOntoExistingCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "first", base))
	require.NoError(t, err)
	second, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "second", base.Add(time.Minute)))
	require.NoError(t, err)

	require.False(t, second.CreatedCase)
	require.Equal(t, first.Case.ID, second.Case.ID)
	require.Equal(t, 2, second.Case.ConsecutiveCustomerMessages)

	msgs, err := f.messages.ListByCase(ctx, first.Case.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestHandleInboundValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("", "hello", base))
	require.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	_, err = f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "   ", base))
	require.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestKeywordEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "This is URGENT, please help", base))
	require.NoError(t, err)
	require.Equal(t, domain.CaseStatusEscalated, result.Case.Status)
	require.Equal(t, []domain.EscalationTrigger{domain.TriggerKeyword}, result.NewReasons)
	require.NotNil(t, result.Case.EscalatedAt)
	require.Equal(t, []notify.IntentKind{notify.IntentEscalation, notify.IntentNewMessage}, f.notifier.kinds())
}

func TestKeywordEscalationFiresOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "urgent!", base))
	require.NoError(t, err)
	result, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "still urgent!!", base.Add(time.Minute)))
	require.NoError(t, err)

	require.Empty(t, result.NewReasons)
	require.Equal(t, []domain.EscalationTrigger{domain.TriggerKeyword}, result.Case.EscalatedReasons)

	escalations := 0
	for _, kind := range f.notifier.kinds() {
		if kind == notify.IntentEscalation {
			escalations++
		}
	}
	require.Equal(t, 1, escalations)
}

func TestAdminKeywordDoesNotEscalate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "hello", base))
	require.NoError(t, err)
	result, err := f.engine.HandleInbound(ctx, adminMsg("I'll treat this as urgent on our side", base.Add(time.Minute)))
	require.NoError(t, err)

	require.Empty(t, result.NewReasons)
	require.Equal(t, domain.CaseStatusOpen, result.Case.Status)
}

func TestCountEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var result *Result
	var err error
	for i := 0; i < 3; i++ {
		result, err = f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "any update?", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	require.Equal(t, 3, result.Case.ConsecutiveCustomerMessages)
	require.Equal(t, []domain.EscalationTrigger{domain.TriggerCount}, result.NewReasons)
	require.Equal(t, domain.CaseStatusEscalated, result.Case.Status)
}

func TestAdminReplyResetsFollowupCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "first", base))
	require.NoError(t, err)
	_, err = f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "second", base.Add(time.Minute)))
	require.NoError(t, err)

	replied, err := f.engine.HandleInbound(ctx, adminMsg("looking into it", base.Add(2*time.Minute)))
	require.NoError(t, err)
	require.Equal(t, 0, replied.Case.ConsecutiveCustomerMessages)

	// Two more follow-ups stay under the threshold after the reset.
	_, err = f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "third", base.Add(3*time.Minute)))
	require.NoError(t, err)
	result, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "fourth", base.Add(4*time.Minute)))
	require.NoError(t, err)

	require.Equal(t, 2, result.Case.ConsecutiveCustomerMessages)
	require.Empty(t, result.NewReasons)
	require.Equal(t, domain.CaseStatusOpen, result.Case.Status)
}

func TestAdminClosureIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opened, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "help", base))
	require.NoError(t, err)

	closed, err := f.engine.HandleInbound(ctx, adminMsg("I'm closing this case.", base.Add(time.Hour)))
	require.NoError(t, err)
	require.True(t, closed.Closed)
	require.Equal(t, opened.Case.ID, closed.Case.ID)
	require.Equal(t, domain.CaseStatusClosed, closed.Case.Status)
	require.NotNil(t, closed.Case.ClosedAt)
	require.NotNil(t, closed.Case.ClosedBy)
	require.Equal(t, "admin@support.example.com", *closed.Case.ClosedBy)

	// The next customer message opens a fresh case, never reopens.
	fresh, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "it broke again", base.Add(2*time.Hour)))
	require.NoError(t, err)
	require.True(t, fresh.CreatedCase)
	require.NotEqual(t, opened.Case.ID, fresh.Case.ID)
	require.Equal(t, domain.CaseStatusOpen, fresh.Case.Status)
	require.Equal(t, 1, fresh.Case.ConsecutiveCustomerMessages)
}

func TestClosurePhraseMustMatchExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "help", base))
	require.NoError(t, err)

	result, err := f.engine.HandleInbound(ctx, adminMsg("Soon I'm closing this case. Stay tuned.", base.Add(time.Hour)))
	require.NoError(t, err)
	require.False(t, result.Closed)
	require.Equal(t, domain.CaseStatusOpen, result.Case.Status)
}

func TestCustomerClosurePhraseDoesNotClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "I'm closing this case.", base))
	require.NoError(t, err)
	require.False(t, result.Closed)
	require.Equal(t, domain.CaseStatusOpen, result.Case.Status)
}

func TestClosureOnEscalatedCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	escalated, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "urgent", base))
	require.NoError(t, err)
	require.Equal(t, domain.CaseStatusEscalated, escalated.Case.Status)

	closed, err := f.engine.HandleInbound(ctx, adminMsg("I'm closing this case.", base.Add(time.Hour)))
	require.NoError(t, err)
	require.True(t, closed.Closed)
	require.Equal(t, domain.CaseStatusClosed, closed.Case.Status)
	// Escalation history is retained through closure.
	require.Equal(t, []domain.EscalationTrigger{domain.TriggerKeyword}, closed.Case.EscalatedReasons)
}

func TestAdminMessageWithoutActiveCaseIsIgnored(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.HandleInbound(context.Background(), adminMsg("I'm closing this case.", base))
	require.NoError(t, err)
	require.True(t, result.Ignored)
	require.Nil(t, result.Case)
	require.Empty(t, f.notifier.kinds())
}

func TestAdminMessageThreadsOntoMostRecentCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "older", base))
	require.NoError(t, err)
	recent, err := f.engine.HandleInbound(ctx, customerMsg("bob@example.com", "newer", base.Add(time.Minute)))
	require.NoError(t, err)

	result, err := f.engine.HandleInbound(ctx, adminMsg("on it", base.Add(2*time.Minute)))
	require.NoError(t, err)
	require.Equal(t, recent.Case.ID, result.Case.ID)
}

func TestAdminMessageWithExplicitCustomerIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "older", base))
	require.NoError(t, err)
	_, err = f.engine.HandleInbound(ctx, customerMsg("bob@example.com", "newer", base.Add(time.Minute)))
	require.NoError(t, err)

	in := adminMsg("replying to alice", base.Add(2*time.Minute))
	in.CustomerIdentity = "alice@example.com"
	result, err := f.engine.HandleInbound(ctx, in)
	require.NoError(t, err)
	require.Equal(t, alice.Case.ID, result.Case.ID)
}

func TestConcurrentFirstMessagesCreateOneCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*Result, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "hello", base.Add(time.Duration(i)*time.Second)))
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	created := 0
	caseID := ""
	for _, r := range results {
		if r.CreatedCase {
			created++
		}
		if caseID == "" {
			caseID = r.Case.ID
		}
		require.Equal(t, caseID, r.Case.ID)
	}
	require.Equal(t, 1, created)
}

func TestCreationConflictFallsBackToWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed an active case the matcher cannot see so Create conflicts, the
	// way a concurrent instance's insert would between lookup and insert.
	winner := &domain.Case{
		ID:                    "case-winner",
		CustomerIdentity:      "alice@example.com",
		Status:                domain.CaseStatusOpen,
		CreatedAt:             base,
		LastCustomerMessageAt: base,
	}
	require.NoError(t, f.cases.Create(ctx, winner))
	f.cases.matcherMissesOnce = true

	result, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "hello", base.Add(time.Minute)))
	require.NoError(t, err)
	require.False(t, result.CreatedCase)
	require.Equal(t, "case-winner", result.Case.ID)
}

func TestNotificationFailureDoesNotFailProcessing(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("slack down")

	result, err := f.engine.HandleInbound(context.Background(), customerMsg("alice@example.com", "urgent", base))
	require.NoError(t, err)
	require.Equal(t, domain.CaseStatusEscalated, result.Case.Status)

	stored, err := f.cases.GetByID(context.Background(), result.Case.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CaseStatusEscalated, stored.Status)
}

func TestHandleTickEscalatesStaleCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "help", base))
	require.NoError(t, err)
	_, err = f.engine.HandleInbound(ctx, customerMsg("bob@example.com", "also help", base.Add(time.Minute)))
	require.NoError(t, err)

	// Before the threshold nothing fires.
	require.Empty(t, f.engine.HandleTick(ctx, base.Add(47*time.Hour)))

	results := f.engine.HandleTick(ctx, base.Add(49*time.Hour))
	require.Len(t, results, 2)
	for _, r := range results {
		require.Equal(t, []domain.EscalationTrigger{domain.TriggerTime}, r.NewReasons)
		require.Equal(t, domain.CaseStatusEscalated, r.Case.Status)
	}

	// A second tick past the threshold must not re-escalate.
	require.Empty(t, f.engine.HandleTick(ctx, base.Add(50*time.Hour)))
}

func TestHandleTickSkipsAnsweredCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "help", base))
	require.NoError(t, err)
	_, err = f.engine.HandleInbound(ctx, adminMsg("answered", base.Add(time.Hour)))
	require.NoError(t, err)

	require.Empty(t, f.engine.HandleTick(ctx, base.Add(72*time.Hour)))
}

func TestHandleTickIsolatesPerCaseFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "help", base))
	require.NoError(t, err)
	good, err := f.engine.HandleInbound(ctx, customerMsg("bob@example.com", "also help", base.Add(time.Minute)))
	require.NoError(t, err)

	f.cases.failUpdateFor = map[string]error{bad.Case.ID: errors.New("write failed")}

	results := f.engine.HandleTick(ctx, base.Add(49*time.Hour))
	require.Len(t, results, 1)
	require.Equal(t, good.Case.ID, results[0].Case.ID)

	// The failed case stays eligible for the next tick.
	f.cases.failUpdateFor = nil
	retried := f.engine.HandleTick(ctx, base.Add(50*time.Hour))
	require.Len(t, retried, 1)
	require.Equal(t, bad.Case.ID, retried[0].Case.ID)
}

func TestFailedAppendLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opened, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "first", base))
	require.NoError(t, err)

	// Case update fails after the message insert; both must roll back.
	f.cases.failUpdateFor = map[string]error{opened.Case.ID: errors.New("write failed")}
	_, err = f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "second", base.Add(time.Minute)))
	require.True(t, apperrors.HasCode(err, apperrors.CodeStoreError))

	msgs, err := f.messages.ListByCase(ctx, opened.Case.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	stored, err := f.cases.GetByID(ctx, opened.Case.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.ConsecutiveCustomerMessages)

	// Redelivery after recovery lands the message exactly once.
	f.cases.failUpdateFor = nil
	retried, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "second", base.Add(time.Minute)))
	require.NoError(t, err)
	require.Equal(t, 2, retried.Case.ConsecutiveCustomerMessages)

	msgs, err = f.messages.ListByCase(ctx, opened.Case.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestEscalatedReasonsAccumulate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "urgent", base))
	require.NoError(t, err)
	_, err = f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "ping", base.Add(time.Minute)))
	require.NoError(t, err)
	counted, err := f.engine.HandleInbound(ctx, customerMsg("alice@example.com", "ping again", base.Add(2*time.Minute)))
	require.NoError(t, err)
	require.Equal(t, []domain.EscalationTrigger{domain.TriggerKeyword, domain.TriggerCount}, counted.Case.EscalatedReasons)

	ticked := f.engine.HandleTick(ctx, base.Add(49*time.Hour))
	require.Len(t, ticked, 1)
	require.Equal(t, []domain.EscalationTrigger{domain.TriggerKeyword, domain.TriggerCount, domain.TriggerTime}, ticked[0].Case.EscalatedReasons)
}
