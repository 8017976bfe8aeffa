package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusEnabled    = "ENABLED"
	StatusPreEnabled = "PRE_ENABLED"
)

type Masternode struct {
	ID              uuid.UUID
	CollateralTxID  string
	CollateralIndex int
	Address         string
	IP              string
	Label           string
	Status          string
	Collateral      decimal.Decimal
	Rank            int
	LastPaidAt      *time.Time
	OwnerID         *uuid.UUID
	RegisteredAt    time.Time
}

// Query is a validated search: PerPage and Page are already clamped and
// SortBy is a known column key.
type Query struct {
	Search   string
	SortBy   string
	SortDesc bool
	Page     int
	PerPage  int
}

type Stats struct {
	Total   int `json:"total"`
	Enabled int `json:"enabled"`
}

type NewMasternode struct {
	CollateralTxID  string
	CollateralIndex int
	Address         string
	IP              string
	Label           string
	OwnerID         uuid.UUID
}
