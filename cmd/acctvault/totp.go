package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/pkg/totp"
)

var totpSecret string

var totpCmd = &cobra.Command{
	Use:   "totp [account-id]",
	Short: "Print the current 2FA code for an account or a raw secret",
	Long: `Print the current 6-digit TOTP code (SHA-1, 30 second period) and the
seconds left before it changes.

Examples:
  acctvault totp 12
  acctvault totp --secret "JBSW Y3DP EHPK 3PXP"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 0) == (totpSecret == "") {
			return fmt.Errorf("give either an account id or --secret")
		}
		var id int64
		if len(args) == 1 {
			var err error
			if id, err = parseID(args[0]); err != nil {
				return err
			}
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			var (
				code *totp.Code
				err  error
			)
			if totpSecret != "" {
				code, err = a.svc.GenerateTOTP(cmd.Context(), token, totpSecret)
			} else {
				code, err = a.svc.AccountTOTP(cmd.Context(), token, id)
			}
			if err != nil {
				return err
			}
			fmt.Println(code.Code)
			printInfo("valid for %ds", code.Remaining)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(totpCmd)
	totpCmd.Flags().StringVar(&totpSecret, "secret", "", "Base32 secret (spaces allowed)")
}
