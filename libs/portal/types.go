// Package portal holds the client side of the syshub portal: the REST client,
// the process-wide session provider and the stateful two-factor and
// account-deletion flows that drive it.
package portal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TwoFactor struct {
	SMS   bool `json:"sms"`
	GAuth bool `json:"gauth"`
}

// Enabled reports whether any second factor is active.
func (t TwoFactor) Enabled() bool { return t.SMS || t.GAuth }

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	TwoFA         TwoFactor `json:"two_fa"`
	VotingAddress string    `json:"voting_address,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type TwoFactorUpdate struct {
	SMS    *bool  `json:"sms,omitempty"`
	GAuth  *bool  `json:"gauth,omitempty"`
	Secret string `json:"secret,omitempty"`
}

// UpdateUserRequest is a partial update; nil fields are left untouched.
type UpdateUserRequest struct {
	Password      string           `json:"password,omitempty"`
	VotingAddress *string          `json:"voting_address,omitempty"`
	Phone         *string          `json:"phone,omitempty"`
	TwoFA         *TwoFactorUpdate `json:"two_fa,omitempty"`
	Code          string           `json:"code,omitempty"`
}

type TwoFactorStatus struct {
	Enabled bool `json:"enabled"`
	SMS     bool `json:"sms"`
	GAuth   bool `json:"gauth"`
}

type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	UserID       uuid.UUID `json:"user_id"`
	ExpiresAt    time.Time `json:"-"`
}

type ReauthToken struct {
	Token     string `json:"reauth_token"`
	ExpiresIn int64  `json:"expires_in"`
}

type Masternode struct {
	ID              uuid.UUID       `json:"id"`
	CollateralTxID  string          `json:"collateral_txid"`
	CollateralIndex int             `json:"collateral_index"`
	Address         string          `json:"address"`
	IP              string          `json:"ip"`
	Label           string          `json:"label"`
	Status          string          `json:"status"`
	Collateral      decimal.Decimal `json:"collateral"`
	Rank            int             `json:"rank"`
	LastPaidAt      *time.Time      `json:"last_paid_at,omitempty"`
	OwnerID         *uuid.UUID      `json:"owner_id,omitempty"`
	RegisteredAt    time.Time       `json:"registered_at"`
}

// MasternodeQuery is the search payload. An empty Search is omitted from the
// request; a non-empty one is sent exactly as given.
type MasternodeQuery struct {
	Page     int    `json:"page"`
	Search   string `json:"search,omitempty"`
	SortBy   string `json:"sortBy,omitempty"`
	SortDesc bool   `json:"sortDesc"`
	PerPage  int    `json:"perPage"`
}

type MasternodePage struct {
	Items   []Masternode `json:"items"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
}

type RegisterMasternodeRequest struct {
	CollateralTxID  string `json:"collateral_txid"`
	CollateralIndex int    `json:"collateral_index"`
	Address         string `json:"address"`
	IP              string `json:"ip"`
	Label           string `json:"label"`
}

type Proposal struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	PaymentAddress string          `json:"payment_address"`
	PaymentAmount  decimal.Decimal `json:"payment_amount"`
	PaymentCount   int             `json:"payment_count"`
	FirstEpoch     time.Time       `json:"first_epoch"`
	Status         string          `json:"status"`
	OwnerID        *uuid.UUID      `json:"owner_id,omitempty"`
	CollateralTxID string          `json:"collateral_txid,omitempty"`
	Yes            int             `json:"yes"`
	No             int             `json:"no"`
	Abstain        int             `json:"abstain"`
	Passing        bool            `json:"passing"`
	PaymentDates   []time.Time     `json:"payment_dates"`
	PrepareCommand string          `json:"prepare_command,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type ProposalPage struct {
	Items      []Proposal `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type ProposalFilter struct {
	Status string
	Cursor string
	Limit  int
}

type CreateProposalRequest struct {
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	PaymentAddress string          `json:"payment_address"`
	PaymentAmount  decimal.Decimal `json:"payment_amount"`
	PaymentCount   int             `json:"payment_count"`
	FirstEpoch     time.Time       `json:"first_epoch"`
}

type SubmitProposalRequest struct {
	CollateralTxID string `json:"collateral_txid"`
}

type VoteRequest struct {
	Outcome     string      `json:"outcome"`
	Masternodes []uuid.UUID `json:"masternodes"`
}

type VoteResult struct {
	Recorded int      `json:"recorded"`
	Proposal Proposal `json:"proposal"`
}
