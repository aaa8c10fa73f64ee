package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/pkg/security"
)

var (
	securityVerbose bool
	securityJSON    bool
)

var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Score password health across active accounts",
	Long: `Score password health across active accounts and list problems.

The score is the sum of four components:
  - Password Strength (0-25): average strength of account passwords
  - Uniqueness (0-25): share of accounts with a password used nowhere else
  - Two-Factor (0-25): share of accounts with a 2FA secret
  - Recovery (0-25): share of accounts with a recovery email

Example:
  acctvault security
  acctvault security --verbose
  acctvault security --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(a *app, token string) error {
			score, err := a.svc.SecurityReport(cmd.Context(), token)
			if err != nil {
				return fmt.Errorf("failed to calculate security score: %w", err)
			}
			if securityJSON {
				return writeJSON(score)
			}
			outputSecurityText(score, securityVerbose)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(securityCmd)
	securityCmd.Flags().BoolVarP(&securityVerbose, "verbose", "v", false, "Show suggestions")
	securityCmd.Flags().BoolVar(&securityJSON, "json", false, "Output in JSON format")
}

func outputSecurityText(score *security.Score, verbose bool) {
	var rating string
	switch {
	case score.Overall >= 90:
		rating = "Excellent"
	case score.Overall >= 70:
		rating = "Good"
	case score.Overall >= 50:
		rating = "Fair"
	default:
		rating = "Needs Attention"
	}
	fmt.Printf("Security Score: %d/100 (%s)\n\n", score.Overall, rating)

	c := score.Components
	fmt.Println("Components:")
	fmt.Printf("  Password Strength: %2d/25 %s\n", c.StrengthScore, progressBar(c.StrengthScore, 25))
	fmt.Printf("  Uniqueness:        %2d/25 %s\n", c.UniquenessScore, progressBar(c.UniquenessScore, 25))
	fmt.Printf("  Two-Factor:        %2d/25 %s\n", c.TwoFactorScore, progressBar(c.TwoFactorScore, 25))
	fmt.Printf("  Recovery:          %2d/25 %s\n", c.RecoveryScore, progressBar(c.RecoveryScore, 25))
	fmt.Println()

	if len(score.Issues) > 0 {
		fmt.Printf("Issues (%d):\n", len(score.Issues))
		for i, issue := range score.Issues {
			fmt.Printf("  %d. [%s] %s (accounts: %s)\n", i+1, strings.ToUpper(string(issue.Type)),
				issue.Description, joinIDs(issue.AccountIDs))
		}
		fmt.Println()
	}

	if verbose && len(score.Suggestions) > 0 {
		fmt.Println("Suggestions:")
		for _, s := range score.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	}
}

func progressBar(value, maxVal int) string {
	width := 20
	filled := value * width / maxVal
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
