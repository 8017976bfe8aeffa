package portal

import (
	"fmt"
	"strings"
)

// Section identifies a panel of the profile page.
type Section int

const (
	SectionAccount Section = iota
	SectionTwoFactor
	SectionPassword
	SectionMasternodes
	SectionDeleteAccount
)

var sectionNames = [...]string{
	SectionAccount:       "account",
	SectionTwoFactor:     "two-factor",
	SectionPassword:      "password",
	SectionMasternodes:   "masternodes",
	SectionDeleteAccount: "delete-account",
}

func (s Section) String() string {
	if s < 0 || int(s) >= len(sectionNames) {
		return fmt.Sprintf("section(%d)", int(s))
	}
	return sectionNames[s]
}

func Sections() []Section {
	return []Section{SectionAccount, SectionTwoFactor, SectionPassword, SectionMasternodes, SectionDeleteAccount}
}

func ParseSection(s string) (Section, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return SectionAccount, nil
	}
	for i, n := range sectionNames {
		if n == name {
			return Section(i), nil
		}
	}
	return 0, fmt.Errorf("unknown profile section %q", s)
}
