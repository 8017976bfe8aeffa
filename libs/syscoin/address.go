// Package syscoin holds the chain constants and address rules the portal
// services share.
package syscoin

import (
	"regexp"
	"strings"
)

// bech32 data charset after the sys1/tsys1 prefix
var addressRe = regexp.MustCompile(`^t?sys1[02-9ac-hj-np-z]{39,59}$`)

// ValidAddress accepts mainnet (sys1) and testnet (tsys1) bech32 addresses.
// Mixed case is never valid bech32.
func ValidAddress(addr string) bool {
	if strings.ToUpper(addr) == addr {
		addr = strings.ToLower(addr)
	}
	return addressRe.MatchString(addr)
}

var txidRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

func ValidTxID(txid string) bool {
	return txidRe.MatchString(txid)
}
