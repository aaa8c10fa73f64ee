// Package importer parses free-form account text into records for batch import.
//
// Each non-skipped line holds one account: an email, the password after it,
// and optional tail fields (recovery email, registration year, phone, 2FA
// secret, country) in any order. Lines may carry a group prefix ("主号:" or
// "成员N:") and <tag> annotations that become the remark.
package importer

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/acctvault/pkg/vault"
)

// Result contains the results of parsing import text.
type Result struct {
	// Accounts are the successfully parsed records, in input order.
	Accounts []vault.Input

	// Stats describes the formats seen while parsing.
	Stats Stats

	// Notes are human-readable remarks about mixed or rejected formats.
	Notes []string
}

// Stats counts what the parser saw.
type Stats struct {
	// Separators lists distinct separators in first-seen order.
	Separators []string `json:"separators"`

	SpecialFormat  int `json:"special_format"`
	StandardFormat int `json:"standard_format"`
	InvalidLines   int `json:"invalid_lines"`

	HasRecovery int `json:"has_recovery"`
	NoRecovery  int `json:"no_recovery"`
	HasSecret   int `json:"has_secret"`
	NoSecret    int `json:"no_secret"`
	HasPhone    int `json:"has_phone"`
	NoPhone     int `json:"no_phone"`
}

func (s *Stats) addSeparator(sep string) {
	for _, seen := range s.Separators {
		if seen == sep {
			return
		}
	}
	s.Separators = append(s.Separators, sep)
}

func (s *Stats) count(in *vault.Input) {
	tally := func(v string, has, no *int) {
		if v != "" {
			*has++
		} else {
			*no++
		}
	}
	tally(in.Recovery, &s.HasRecovery, &s.NoRecovery)
	tally(in.Secret, &s.HasSecret, &s.NoSecret)
	tally(in.Phone, &s.HasPhone, &s.NoPhone)
}

// Parse parses import text. It never fails; unusable lines are counted in
// Stats.InvalidLines.
func Parse(text string) *Result {
	res := &Result{}
	if strings.TrimSpace(text) == "" {
		return res
	}

	text = norm.NFC.String(text)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, "\r")
		if ShouldSkipLine(line) {
			continue
		}

		group, rest := ExtractGroup(line)
		remark := ExtractTags(rest)
		cleaned := CleanTags(rest)

		var (
			in  *vault.Input
			sep string
		)
		if special, s, ok := parseSpecialLine(cleaned, group, remark); ok {
			res.Stats.SpecialFormat++
			in, sep = special, s
		} else {
			res.Stats.StandardFormat++
			in, sep = parseStandardLine(cleaned, group, remark)
		}
		if in == nil {
			res.Stats.InvalidLines++
			continue
		}

		res.Stats.addSeparator(sep)
		res.Stats.count(in)
		res.Accounts = append(res.Accounts, *in)
	}

	res.Notes = notes(&res.Stats)
	return res
}

func notes(s *Stats) []string {
	var out []string
	if len(s.Separators) > 1 {
		out = append(out, fmt.Sprintf("%d different separators used: %s",
			len(s.Separators), strings.Join(s.Separators, ", ")))
	}
	if s.SpecialFormat > 0 && s.StandardFormat > 0 {
		out = append(out, fmt.Sprintf("mixed card/password format (%d lines) and standard format (%d lines)",
			s.SpecialFormat, s.StandardFormat))
	}
	if s.HasRecovery > 0 && s.NoRecovery > 0 {
		out = append(out, fmt.Sprintf("some lines have a recovery email (%d lines), some do not (%d lines)",
			s.HasRecovery, s.NoRecovery))
	}
	if s.HasSecret > 0 && s.NoSecret > 0 {
		out = append(out, fmt.Sprintf("some lines have a 2FA secret (%d lines), some do not (%d lines)",
			s.HasSecret, s.NoSecret))
	}
	if s.HasPhone > 0 && s.NoPhone > 0 {
		out = append(out, fmt.Sprintf("some lines have a phone number (%d lines), some do not (%d lines)",
			s.HasPhone, s.NoPhone))
	}
	if s.InvalidLines > 0 {
		out = append(out, fmt.Sprintf("%d lines not imported (missing email/password or unrecognized format)",
			s.InvalidLines))
	}
	return out
}
