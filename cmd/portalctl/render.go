package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/osiastedian/syshub/libs/portal"
)

var strengthLabels = [...]string{"unusable", "weak", "fair", "good", "strong"}

func strengthLabel(score int) string {
	if score < 0 || score >= len(strengthLabels) {
		return "unknown"
	}
	return strengthLabels[score]
}

func since(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func amount(d decimal.Decimal) string {
	return humanize.CommafWithDigits(d.InexactFloat64(), 8) + " SYS"
}

func renderAccount(w io.Writer, u *portal.User, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "email\t%s\n", u.Email)
	fmt.Fprintf(tw, "id\t%s\n", u.ID)
	if u.VotingAddress != "" {
		fmt.Fprintf(tw, "voting address\t%s\n", u.VotingAddress)
	}
	if u.Phone != "" {
		fmt.Fprintf(tw, "phone\t%s\n", u.Phone)
	}
	fmt.Fprintf(tw, "two-factor\t%s\n", twoFactorLabel(u.TwoFA.SMS, u.TwoFA.GAuth))
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "member since\t%s\n", since(u.CreatedAt, now))
	}
	tw.Flush()
}

func renderTwoFactor(w io.Writer, s *portal.TwoFactorStatus) {
	fmt.Fprintf(w, "two-factor: %s\n", twoFactorLabel(s.SMS, s.GAuth))
	if !s.Enabled {
		fmt.Fprintln(w, "run: portalctl 2fa enable")
		return
	}
	fmt.Fprintln(w, "run: portalctl 2fa disable")
}

func twoFactorLabel(sms, gauth bool) string {
	switch {
	case gauth:
		return "authenticator app"
	case sms:
		return "sms"
	}
	return "off"
}

func renderMasternodes(w io.Writer, items []portal.Masternode, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no masternodes")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tLABEL\tADDRESS\tSTATUS\tCOLLATERAL\tLAST PAID")
	for _, m := range items {
		lastPaid := "never"
		if m.LastPaidAt != nil {
			lastPaid = since(*m.LastPaidAt, now)
		}
		rank := "-"
		if m.Rank > 0 {
			rank = humanize.Ordinal(m.Rank)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", rank, m.Label, m.Address, m.Status, amount(m.Collateral), lastPaid)
	}
	tw.Flush()
}

func renderProposals(w io.Writer, items []portal.Proposal, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no proposals")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tAMOUNT\tPAYMENTS\tVOTES\tPASSING\tCREATED")
	for _, p := range items {
		votes := fmt.Sprintf("%s/%s/%s", humanize.Comma(int64(p.Yes)), humanize.Comma(int64(p.No)), humanize.Comma(int64(p.Abstain)))
		passing := "no"
		if p.Passing {
			passing = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			p.Name, p.Status, amount(p.PaymentAmount), p.PaymentCount, votes, passing, since(p.CreatedAt, now))
	}
	tw.Flush()

	for _, p := range items {
		if p.PrepareCommand == "" {
			continue
		}
		fmt.Fprintf(w, "\n%s is a draft; prepare it with:\n  %s\n", p.Name, strings.TrimSpace(p.PrepareCommand))
	}
}
