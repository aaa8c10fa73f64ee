package security

import "github.com/forest6511/acctvault/pkg/vault"

// Score is the password-health assessment of a set of accounts.
type Score struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected problems.
	Issues []Issue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
}

// ScoreComponents breaks down the score. Each component contributes up to
// 25 points.
type ScoreComponents struct {
	// StrengthScore is the average password strength (0-25).
	StrengthScore int `json:"strength"`
	// UniquenessScore is the share of distinct passwords (0-25).
	UniquenessScore int `json:"uniqueness"`
	// TwoFactorScore is the share of accounts with a TOTP secret (0-25).
	TwoFactorScore int `json:"two_factor"`
	// RecoveryScore is the share of accounts with a recovery email (0-25).
	RecoveryScore int `json:"recovery"`
}

// IssueType identifies the type of issue.
type IssueType string

const (
	IssueWeakPassword      IssueType = "weak"
	IssueDuplicatePassword IssueType = "duplicate"
	IssueMissingTwoFactor  IssueType = "no_2fa"
	IssueMissingRecovery   IssueType = "no_recovery"
)

// Severity indicates the urgency of an issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a detected problem. It names accounts by id only.
type Issue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	AccountIDs  []int64   `json:"account_ids"`
	Description string    `json:"description"`
}

// Calculator computes scores. One Calculator uses one duplicate-detection
// key for its lifetime.
type Calculator struct {
	hmacKey []byte
}

// NewCalculator returns a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// CalculateScore scores accounts. An empty set scores 100.
func (c *Calculator) CalculateScore(accounts []*vault.Account) (*Score, error) {
	if len(accounts) == 0 {
		return &Score{
			Overall:     100,
			Components:  ScoreComponents{StrengthScore: 25, UniquenessScore: 25, TwoFactorScore: 25, RecoveryScore: 25},
			Issues:      []Issue{},
			Suggestions: []string{},
		}, nil
	}

	strength, weak := strengthScore(accounts)
	uniqueness, dups, err := c.uniquenessScore(accounts)
	if err != nil {
		return nil, err
	}
	twoFactor, no2FA := coverage(accounts, IssueMissingTwoFactor, "accounts without a 2FA secret",
		func(a *vault.Account) bool { return a.Secret != "" })
	recovery, noRecovery := coverage(accounts, IssueMissingRecovery, "accounts without a recovery email",
		func(a *vault.Account) bool { return a.Recovery != "" })

	issues := make([]Issue, 0)
	for _, is := range []*Issue{weak, no2FA, noRecovery} {
		if is != nil {
			issues = append(issues, *is)
		}
	}
	issues = append(issues, dups...)

	return &Score{
		Overall: strength + uniqueness + twoFactor + recovery,
		Components: ScoreComponents{
			StrengthScore:   strength,
			UniquenessScore: uniqueness,
			TwoFactorScore:  twoFactor,
			RecoveryScore:   recovery,
		},
		Issues:      issues,
		Suggestions: suggestions(issues),
	}, nil
}

// strengthScore averages strength points over accounts with a password.
func strengthScore(accounts []*vault.Account) (int, *Issue) {
	var total, count int
	var weakIDs []int64
	for _, a := range accounts {
		if a.Password == "" {
			continue
		}
		count++
		s := CalculateStrength(a.Password)
		total += s.Points()
		if s == PasswordWeak {
			weakIDs = append(weakIDs, a.ID)
		}
	}
	if count == 0 {
		return 25, nil
	}

	var issue *Issue
	if len(weakIDs) > 0 {
		issue = &Issue{
			Type:        IssueWeakPassword,
			Severity:    SeverityWarning,
			AccountIDs:  weakIDs,
			Description: "passwords shorter than 8 characters",
		}
	}
	return min(total/count, 25), issue
}

func (c *Calculator) uniquenessScore(accounts []*vault.Account) (int, []Issue, error) {
	groups, err := c.FindDuplicates(accounts)
	if err != nil {
		return 0, nil, err
	}

	var total, repeated int
	for _, a := range accounts {
		if normalizeValue(a.Password) != "" {
			total++
		}
	}
	if total == 0 {
		return 25, nil, nil
	}

	issues := make([]Issue, 0, len(groups))
	for _, g := range groups {
		repeated += g.Count - 1
		issues = append(issues, Issue{
			Type:        IssueDuplicatePassword,
			Severity:    SeverityWarning,
			AccountIDs:  g.AccountIDs,
			Description: "accounts sharing one password",
		})
	}
	unique := total - repeated
	return unique * 25 / total, issues, nil
}

func coverage(accounts []*vault.Account, typ IssueType, desc string, has func(*vault.Account) bool) (int, *Issue) {
	var missing []int64
	for _, a := range accounts {
		if !has(a) {
			missing = append(missing, a.ID)
		}
	}
	score := (len(accounts) - len(missing)) * 25 / len(accounts)
	if len(missing) == 0 {
		return score, nil
	}
	return score, &Issue{Type: typ, Severity: SeverityInfo, AccountIDs: missing, Description: desc}
}

func suggestions(issues []Issue) []string {
	seen := make(map[IssueType]bool)
	for _, is := range issues {
		seen[is.Type] = true
	}

	out := []string{}
	if seen[IssueWeakPassword] {
		out = append(out, "Update weak passwords with stronger alternatives (14+ characters)")
	}
	if seen[IssueDuplicatePassword] {
		out = append(out, "Replace duplicate passwords with unique values")
	}
	if seen[IssueMissingTwoFactor] {
		out = append(out, "Store a TOTP secret for accounts that support 2FA")
	}
	if seen[IssueMissingRecovery] {
		out = append(out, "Add a recovery email so locked accounts can be recovered")
	}
	return out
}
