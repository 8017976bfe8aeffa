package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/logging"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/libs/syscoin"
	"github.com/osiastedian/syshub/services/governance/internal/storage"
)

const paymentAddress = "sys1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"

var anchor = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type voteKey struct {
	proposal, masternode uuid.UUID
}

// memStore keeps proposals and votes with the same replace-on-revote rule as postgres.
type memStore struct {
	mu        sync.Mutex
	proposals map[uuid.UUID]*storage.Proposal
	votes     map[voteKey]string
	owners    map[uuid.UUID]uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		proposals: map[uuid.UUID]*storage.Proposal{},
		votes:     map[voteKey]string{},
		owners:    map[uuid.UUID]uuid.UUID{},
	}
}

func (m *memStore) tally(p *storage.Proposal) storage.Proposal {
	cp := *p
	cp.Yes, cp.No, cp.Abstain = 0, 0, 0
	for k, outcome := range m.votes {
		if k.proposal != p.ID {
			continue
		}
		switch outcome {
		case storage.OutcomeYes:
			cp.Yes++
		case storage.OutcomeNo:
			cp.No++
		default:
			cp.Abstain++
		}
	}
	return cp
}

func (m *memStore) ListProposals(_ context.Context, f storage.Filter) ([]storage.Proposal, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Proposal
	for _, p := range m.proposals {
		if f.Status == "" || p.Status == f.Status {
			out = append(out, m.tally(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, "", nil
}

func (m *memStore) GetProposal(_ context.Context, id uuid.UUID) (*storage.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := m.tally(p)
	return &cp, nil
}

func (m *memStore) CreateProposal(_ context.Context, in storage.NewProposal) (*storage.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.proposals {
		if p.Name == in.Name {
			return nil, storage.ErrDuplicate
		}
	}
	owner := in.OwnerID
	p := &storage.Proposal{
		ID:             uuid.New(),
		Name:           in.Name,
		URL:            in.URL,
		PaymentAddress: in.PaymentAddress,
		PaymentAmount:  in.PaymentAmount,
		PaymentCount:   in.PaymentCount,
		FirstEpoch:     in.FirstEpoch,
		OwnerID:        &owner,
		Status:         storage.StatusDraft,
		CreatedAt:      anchor,
	}
	m.proposals[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memStore) Submit(_ context.Context, id uuid.UUID, txid string) (*storage.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if p.Status != storage.StatusDraft {
		return nil, storage.ErrNotDraft
	}
	p.Status = storage.StatusSubmitted
	p.CollateralTxID = &txid
	cp := m.tally(p)
	return &cp, nil
}

func (m *memStore) OwnedMasternodes(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for _, id := range ids {
		if m.owners[id] == userID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memStore) CastVotes(_ context.Context, b storage.Ballot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mn := range b.Masternodes {
		m.votes[voteKey{b.ProposalID, mn}] = b.Outcome
	}
	return len(b.Masternodes), nil
}

type fixedStats int

func (f fixedStats) Enabled() (int, bool) { return int(f), f > 0 }

type published struct {
	topic string
	key   string
	value any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: key, value: value})
	return 0, int64(len(p.events)), nil
}

func (p *fakePublisher) Close() error { return nil }

type env struct {
	svc       *Service
	store     *memStore
	publisher *fakePublisher
	metrics   *Metrics
}

func setup(t *testing.T, enabled int) *env {
	t.Helper()
	store := newMemStore()
	publisher := &fakePublisher{}
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := New(store, fixedStats(enabled), syscoin.DefaultSchedule(anchor), publisher, logging.Discard(), metrics)
	svc.now = func() time.Time { return anchor }
	return &env{svc: svc, store: store, publisher: publisher, metrics: metrics}
}

func validRequest() portal.CreateProposalRequest {
	return portal.CreateProposalRequest{
		Name:           "dev-fund",
		URL:            "https://forum.example.org/dev-fund",
		PaymentAddress: paymentAddress,
		PaymentAmount:  decimal.NewFromInt(1500),
		PaymentCount:   2,
		FirstEpoch:     anchor.Add(24 * time.Hour),
	}
}

func TestCreateDraft(t *testing.T) {
	e := setup(t, 100)
	owner := uuid.New()

	p, err := e.svc.Create(context.Background(), owner, validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != storage.StatusDraft || p.PrepareCommand == "" {
		t.Fatalf("expected draft with prepare command, got %+v", p)
	}
	if len(p.PaymentDates) != 2 || p.PaymentDates[1].Sub(p.PaymentDates[0]) != syscoin.DefaultSchedule(anchor).Cycle() {
		t.Fatalf("unexpected payment dates: %v", p.PaymentDates)
	}

	if _, err := e.svc.Create(context.Background(), owner, validRequest()); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if got := testutil.ToFloat64(e.metrics.Proposals.WithLabelValues("create", "duplicate")); got != 1 {
		t.Fatalf("expected duplicate metric, got %v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	e := setup(t, 100)

	req := portal.CreateProposalRequest{
		Name:           "has spaces!",
		URL:            "ftp://example.org",
		PaymentAddress: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT",
		PaymentAmount:  decimal.Zero,
		PaymentCount:   syscoin.MaxPaymentCount + 1,
		FirstEpoch:     anchor.Add(-time.Hour),
	}
	_, err := e.svc.Create(context.Background(), uuid.New(), req)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"name", "url", "payment_address", "payment_amount", "payment_count", "first_epoch"} {
		if verr.Fields[field] == "" {
			t.Fatalf("expected %s error, got %v", field, verr.Fields)
		}
	}

	long := validRequest()
	long.Name = "a234567890123456789012345678901234567890x"
	_, err = e.svc.Create(context.Background(), uuid.New(), long)
	if !errors.As(err, &verr) || verr.Fields["name"] == "" {
		t.Fatalf("expected name length error, got %v", err)
	}
}

func TestSubmit(t *testing.T) {
	e := setup(t, 100)
	owner := uuid.New()
	p, err := e.svc.Create(context.Background(), owner, validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	txid := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

	if _, err := e.svc.Submit(context.Background(), uuid.New(), p.ID, txid); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	var verr *ValidationError
	if _, err := e.svc.Submit(context.Background(), owner, p.ID, "abc"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got, err := e.svc.Submit(context.Background(), owner, p.ID, txid)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != storage.StatusSubmitted || got.CollateralTxID != txid || got.PrepareCommand != "" {
		t.Fatalf("unexpected submitted proposal: %+v", got)
	}

	if _, err := e.svc.Submit(context.Background(), owner, p.ID, txid); !errors.Is(err, storage.ErrNotDraft) {
		t.Fatalf("expected not draft, got %v", err)
	}
}

func submitted(t *testing.T, e *env) uuid.UUID {
	t.Helper()
	owner := uuid.New()
	p, err := e.svc.Create(context.Background(), owner, validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.svc.Submit(context.Background(), owner, p.ID, "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return p.ID
}

func TestVoteReplacesPreviousOutcome(t *testing.T) {
	e := setup(t, 10)
	id := submitted(t, e)
	voter := uuid.New()
	mn1, mn2 := uuid.New(), uuid.New()
	e.store.owners[mn1] = voter
	e.store.owners[mn2] = voter

	res, err := e.svc.Vote(context.Background(), voter, id, portal.VoteRequest{Outcome: "YES", Masternodes: []uuid.UUID{mn1, mn2, mn1}})
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if res.Recorded != 2 || res.Proposal.Yes != 2 || !res.Proposal.Passing {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = e.svc.Vote(context.Background(), voter, id, portal.VoteRequest{Outcome: "no", Masternodes: []uuid.UUID{mn2}})
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if res.Proposal.Yes != 1 || res.Proposal.No != 1 || res.Proposal.Passing {
		t.Fatalf("expected replaced vote, got %+v", res.Proposal)
	}

	if len(e.publisher.events) != 2 || e.publisher.events[0].topic != kafka.TopicProposalVoted {
		t.Fatalf("expected two vote events, got %+v", e.publisher.events)
	}
	event := e.publisher.events[1].value.(kafka.ProposalVotedEvent)
	if event.Outcome != "no" || len(event.Masternodes) != 1 || event.UserID != voter.String() {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestVoteRejections(t *testing.T) {
	e := setup(t, 10)
	id := submitted(t, e)
	voter := uuid.New()
	mine, theirs := uuid.New(), uuid.New()
	e.store.owners[mine] = voter
	e.store.owners[theirs] = uuid.New()

	var verr *ValidationError
	if _, err := e.svc.Vote(context.Background(), voter, id, portal.VoteRequest{Outcome: "maybe"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields["outcome"] == "" || verr.Fields["masternodes"] == "" {
		t.Fatalf("expected outcome and masternodes errors, got %v", verr.Fields)
	}

	if _, err := e.svc.Vote(context.Background(), voter, id, portal.VoteRequest{Outcome: "yes", Masternodes: []uuid.UUID{mine, theirs}}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(e.store.votes) != 0 {
		t.Fatalf("expected no votes recorded, got %d", len(e.store.votes))
	}

	draft, err := e.svc.Create(context.Background(), voter, portal.CreateProposalRequest{
		Name:           "draft-only",
		URL:            "https://example.org",
		PaymentAddress: paymentAddress,
		PaymentAmount:  decimal.NewFromInt(1),
		PaymentCount:   1,
		FirstEpoch:     anchor.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.svc.Vote(context.Background(), voter, draft.ID, portal.VoteRequest{Outcome: "yes", Masternodes: []uuid.UUID{mine}}); !errors.Is(err, ErrNotSubmitted) {
		t.Fatalf("expected not submitted, got %v", err)
	}

	if _, err := e.svc.Vote(context.Background(), voter, uuid.New(), portal.VoteRequest{Outcome: "yes", Masternodes: []uuid.UUID{mine}}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListUnknownEnabledCountNeverPasses(t *testing.T) {
	e := setup(t, 0)
	id := submitted(t, e)
	voter := uuid.New()
	mn := uuid.New()
	e.store.owners[mn] = voter
	if _, err := e.svc.Vote(context.Background(), voter, id, portal.VoteRequest{Outcome: "yes", Masternodes: []uuid.UUID{mn}}); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	page, err := e.svc.List(context.Background(), portal.ProposalFilter{Status: "SUBMITTED"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Yes != 1 || page.Items[0].Passing {
		t.Fatalf("unexpected page: %+v", page.Items)
	}
}
