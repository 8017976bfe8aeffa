package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/libs/syscoin"
	"github.com/osiastedian/syshub/services/governance/internal/storage"
)

const (
	MaxNameLength = 40
	maxURLLength  = 255
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrNotSubmitted = errors.New("proposal is not open for voting")

	namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ValidationError carries per-field messages for the wizard.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.Fields))
}

type Store interface {
	ListProposals(ctx context.Context, f storage.Filter) ([]storage.Proposal, string, error)
	GetProposal(ctx context.Context, id uuid.UUID) (*storage.Proposal, error)
	CreateProposal(ctx context.Context, in storage.NewProposal) (*storage.Proposal, error)
	Submit(ctx context.Context, id uuid.UUID, txid string) (*storage.Proposal, error)
	OwnedMasternodes(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	CastVotes(ctx context.Context, b storage.Ballot) (int, error)
}

type Stats interface {
	Enabled() (int, bool)
}

type Service struct {
	store     Store
	stats     Stats
	schedule  syscoin.Schedule
	publisher kafka.Publisher
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

func New(store Store, stats Stats, schedule syscoin.Schedule, publisher kafka.Publisher, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = kafka.NewLogPublisher(logger)
	}
	return &Service{
		store:     store,
		stats:     stats,
		schedule:  schedule,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *Service) List(ctx context.Context, f portal.ProposalFilter) (portal.ProposalPage, error) {
	items, next, err := s.store.ListProposals(ctx, storage.Filter{
		Status: strings.ToLower(strings.TrimSpace(f.Status)),
		Cursor: f.Cursor,
		Limit:  f.Limit,
	})
	if err != nil {
		return portal.ProposalPage{}, err
	}
	out := portal.ProposalPage{Items: make([]portal.Proposal, 0, len(items)), NextCursor: next}
	for i := range items {
		out.Items = append(out.Items, s.view(&items[i]))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (portal.Proposal, error) {
	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return portal.Proposal{}, err
	}
	return s.view(p), nil
}

func (s *Service) Create(ctx context.Context, owner uuid.UUID, req portal.CreateProposalRequest) (portal.Proposal, error) {
	in := storage.NewProposal{
		Name:           strings.TrimSpace(req.Name),
		URL:            strings.TrimSpace(req.URL),
		PaymentAddress: strings.TrimSpace(req.PaymentAddress),
		PaymentAmount:  req.PaymentAmount,
		PaymentCount:   req.PaymentCount,
		FirstEpoch:     req.FirstEpoch.UTC(),
		OwnerID:        owner,
	}
	if fields := s.validate(in); len(fields) > 0 {
		s.count("create", "invalid")
		return portal.Proposal{}, &ValidationError{Fields: fields}
	}

	p, err := s.store.CreateProposal(ctx, in)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			s.count("create", "duplicate")
		}
		return portal.Proposal{}, err
	}
	s.count("create", "ok")
	s.logger.Info("proposal drafted", "proposal_id", p.ID, "owner_id", owner)
	return s.view(p), nil
}

func (s *Service) validate(in storage.NewProposal) map[string]string {
	fields := map[string]string{}
	switch {
	case in.Name == "":
		fields["name"] = "required"
	case len(in.Name) > MaxNameLength:
		fields["name"] = fmt.Sprintf("at most %d characters", MaxNameLength)
	case !namePattern.MatchString(in.Name):
		fields["name"] = "only letters, digits, dash and underscore"
	}
	if u, err := url.ParseRequestURI(in.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || len(in.URL) > maxURLLength {
		fields["url"] = "must be an http(s) url"
	}
	if !syscoin.ValidAddress(in.PaymentAddress) {
		fields["payment_address"] = "invalid syscoin address"
	}
	if !in.PaymentAmount.IsPositive() {
		fields["payment_amount"] = "must be greater than zero"
	}
	if in.PaymentCount < 1 || in.PaymentCount > syscoin.MaxPaymentCount {
		fields["payment_count"] = fmt.Sprintf("must be between 1 and %d", syscoin.MaxPaymentCount)
	}
	if in.FirstEpoch.IsZero() {
		fields["first_epoch"] = "required"
	} else if !in.FirstEpoch.After(s.now()) {
		fields["first_epoch"] = "must be in the future"
	}
	return fields
}

// Submit moves an owner's draft to submitted once the collateral is paid.
func (s *Service) Submit(ctx context.Context, owner, id uuid.UUID, txid string) (portal.Proposal, error) {
	txid = strings.ToLower(strings.TrimSpace(txid))
	if !syscoin.ValidTxID(txid) {
		return portal.Proposal{}, &ValidationError{Fields: map[string]string{"collateral_txid": "must be a 64 character hex transaction id"}}
	}

	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return portal.Proposal{}, err
	}
	if p.OwnerID == nil || *p.OwnerID != owner {
		return portal.Proposal{}, ErrForbidden
	}

	p, err = s.store.Submit(ctx, id, txid)
	if err != nil {
		return portal.Proposal{}, err
	}
	s.count("submit", "ok")
	s.logger.Info("proposal submitted", "proposal_id", id, "collateral_txid", txid)
	return s.view(p), nil
}

// Vote records outcome for each listed masternode; every one must belong to
// the voter.
func (s *Service) Vote(ctx context.Context, voter, id uuid.UUID, req portal.VoteRequest) (portal.VoteResult, error) {
	outcome := strings.ToLower(strings.TrimSpace(req.Outcome))
	fields := map[string]string{}
	switch outcome {
	case storage.OutcomeYes, storage.OutcomeNo, storage.OutcomeAbstain:
	default:
		fields["outcome"] = "must be yes, no or abstain"
	}
	masternodes := dedupe(req.Masternodes)
	if len(masternodes) == 0 {
		fields["masternodes"] = "at least one masternode required"
	}
	if len(fields) > 0 {
		return portal.VoteResult{}, &ValidationError{Fields: fields}
	}

	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return portal.VoteResult{}, err
	}
	if p.Status != storage.StatusSubmitted {
		return portal.VoteResult{}, ErrNotSubmitted
	}

	owned, err := s.store.OwnedMasternodes(ctx, voter, masternodes)
	if err != nil {
		return portal.VoteResult{}, err
	}
	if len(owned) != len(masternodes) {
		return portal.VoteResult{}, ErrForbidden
	}

	recorded, err := s.store.CastVotes(ctx, storage.Ballot{
		ProposalID:  id,
		UserID:      voter,
		Outcome:     outcome,
		Masternodes: masternodes,
	})
	if err != nil {
		return portal.VoteResult{}, err
	}
	if s.metrics != nil {
		s.metrics.Votes.WithLabelValues(outcome).Add(float64(recorded))
	}
	s.publishVote(ctx, voter, id, outcome, masternodes)

	p, err = s.store.GetProposal(ctx, id)
	if err != nil {
		return portal.VoteResult{}, err
	}
	return portal.VoteResult{Recorded: recorded, Proposal: s.view(p)}, nil
}

func (s *Service) publishVote(ctx context.Context, voter, id uuid.UUID, outcome string, masternodes []uuid.UUID) {
	env, err := kafka.NewEnvelope(kafka.TopicProposalVoted, 1, "")
	if err != nil {
		s.logger.Error("vote envelope failed", "error", err)
		return
	}
	ids := make([]string, len(masternodes))
	for i, mn := range masternodes {
		ids[i] = mn.String()
	}
	event := kafka.ProposalVotedEvent{
		Envelope:    env,
		ProposalID:  id.String(),
		UserID:      voter.String(),
		Outcome:     outcome,
		Masternodes: ids,
	}
	if _, _, err := s.publisher.PublishJSON(ctx, kafka.TopicProposalVoted, id.String(), event); err != nil {
		s.logger.Error("vote publish failed", "proposal_id", id, "error", err)
	}
}

func (s *Service) view(p *storage.Proposal) portal.Proposal {
	enabled, _ := s.stats.Enabled()
	out := portal.Proposal{
		ID:             p.ID,
		Name:           p.Name,
		URL:            p.URL,
		PaymentAddress: p.PaymentAddress,
		PaymentAmount:  p.PaymentAmount,
		PaymentCount:   p.PaymentCount,
		FirstEpoch:     p.FirstEpoch.UTC(),
		Status:         p.Status,
		OwnerID:        p.OwnerID,
		Yes:            p.Yes,
		No:             p.No,
		Abstain:        p.Abstain,
		Passing:        Passing(p.Yes, p.No, enabled),
		PaymentDates:   s.schedule.PaymentDates(p.FirstEpoch, p.PaymentCount),
		CreatedAt:      p.CreatedAt.UTC(),
	}
	if p.CollateralTxID != nil {
		out.CollateralTxID = *p.CollateralTxID
	}
	if p.Status == storage.StatusDraft {
		cmd, err := PrepareCommand(p, s.schedule)
		if err != nil {
			s.logger.Warn("prepare command failed", "proposal_id", p.ID, "error", err)
		}
		out.PrepareCommand = cmd
	}
	return out
}

func (s *Service) count(action, result string) {
	if s.metrics != nil {
		s.metrics.Proposals.WithLabelValues(action, result).Inc()
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
