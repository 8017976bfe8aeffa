package service

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/osiastedian/syshub/libs/syscoin"
	"github.com/osiastedian/syshub/services/governance/internal/storage"
)

// PassThreshold is the net yes share of enabled masternodes a proposal must exceed.
var PassThreshold = decimal.NewFromFloat(0.10)

// Passing reports whether (yes-no)/enabled exceeds PassThreshold. Nothing
// passes while the enabled count is unknown or zero.
func Passing(yes, no, enabled int) bool {
	if enabled <= 0 {
		return false
	}
	net := decimal.NewFromInt(int64(yes - no))
	return net.Div(decimal.NewFromInt(int64(enabled))).GreaterThan(PassThreshold)
}

type proposalData struct {
	Type           int         `json:"type"`
	Name           string      `json:"name"`
	StartEpoch     int64       `json:"start_epoch"`
	EndEpoch       int64       `json:"end_epoch"`
	PaymentAddress string      `json:"payment_address"`
	PaymentAmount  json.Number `json:"payment_amount"`
	URL            string      `json:"url"`
}

// PrepareCommand renders the gobject_prepare call an owner runs in their
// wallet to pay the proposal collateral. The window closes half a cycle after
// the last payment so the final superblock still sees the proposal.
func PrepareCommand(p *storage.Proposal, sched syscoin.Schedule) (string, error) {
	dates := sched.PaymentDates(p.FirstEpoch, p.PaymentCount)
	if len(dates) == 0 {
		return "", fmt.Errorf("proposal has no payments")
	}
	end := dates[len(dates)-1].Add(sched.Cycle() / 2)

	raw, err := json.Marshal(proposalData{
		Type:           1,
		Name:           p.Name,
		StartEpoch:     p.FirstEpoch.Unix(),
		EndEpoch:       end.Unix(),
		PaymentAddress: p.PaymentAddress,
		PaymentAmount:  json.Number(p.PaymentAmount.String()),
		URL:            p.URL,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("gobject_prepare 0 1 %d %s", p.CreatedAt.Unix(), hex.EncodeToString(raw)), nil
}
