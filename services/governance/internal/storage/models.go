package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

const (
	OutcomeYes     = "yes"
	OutcomeNo      = "no"
	OutcomeAbstain = "abstain"
)

type Proposal struct {
	ID             uuid.UUID
	Name           string
	URL            string
	PaymentAddress string
	PaymentAmount  decimal.Decimal
	PaymentCount   int
	FirstEpoch     time.Time
	OwnerID        *uuid.UUID
	Status         string
	CollateralTxID *string
	CreatedAt      time.Time
	Yes            int
	No             int
	Abstain        int
}

type NewProposal struct {
	Name           string
	URL            string
	PaymentAddress string
	PaymentAmount  decimal.Decimal
	PaymentCount   int
	FirstEpoch     time.Time
	OwnerID        uuid.UUID
}

type Filter struct {
	Status string
	Cursor string
	Limit  int
}

// Ballot is one outcome cast for every listed masternode.
type Ballot struct {
	ProposalID  uuid.UUID
	UserID      uuid.UUID
	Outcome     string
	Masternodes []uuid.UUID
}
