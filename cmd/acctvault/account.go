package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/pkg/vault"
)

// Account command flags
var (
	listSearch     string
	listSoldStatus string
	listJSON       bool
	listDeleted    bool

	getShowSecrets bool

	accountInput vault.Input

	forceDelete bool
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"accounts"},
	Short:   "Manage accounts",
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active accounts (or the trash with --deleted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(a *app, token string) error {
			var (
				accounts []*vault.Account
				err      error
			)
			if listDeleted {
				accounts, err = a.svc.ListDeleted(cmd.Context(), token)
			} else {
				accounts, err = a.svc.ListAccounts(cmd.Context(), token, vault.Filter{Search: listSearch, SoldStatus: listSoldStatus})
			}
			if err != nil {
				return err
			}
			if listJSON {
				return writeJSON(accountsForDisplay(accounts, false))
			}
			printAccountTable(accounts)
			return nil
		})
	},
}

var accountGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			acc, err := a.svc.GetAccount(cmd.Context(), token, id)
			if err != nil {
				return err
			}
			return writeJSON(accountsForDisplay([]*vault.Account{acc}, getShowSecrets)[0])
		})
	},
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an account",
	Long: `Add an account. The password is prompted for when --password is not given.

Example:
  acctvault account add --email user@gmail.com --recovery r@mail.com --group team-a`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(a *app, token string) error {
			in := accountInput
			if in.Password == "" {
				pw, err := readSecret("Account password", false)
				if err != nil {
					return err
				}
				in.Password = string(pw)
			}
			acc, err := a.svc.CreateAccount(cmd.Context(), token, in)
			if err != nil {
				return err
			}
			printSuccess("account %d created: %s", acc.ID, acc.Email)
			return nil
		})
	},
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an account; unset flags keep their current value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			cur, err := a.svc.GetAccount(cmd.Context(), token, id)
			if err != nil {
				return err
			}
			in := mergeInput(cur, accountInput, cmd.Flags().Changed)
			acc, err := a.svc.UpdateAccount(cmd.Context(), token, id, in)
			if err != nil {
				return err
			}
			printSuccess("account %d updated", acc.ID)
			return nil
		})
	},
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Move accounts to the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			for _, id := range ids {
				if err := a.svc.DeleteAccount(cmd.Context(), token, id); err != nil {
					return fmt.Errorf("account %d: %w", id, err)
				}
			}
			printSuccess("%d account(s) moved to trash", len(ids))
			return nil
		})
	},
}

var accountDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Move every active account to the trash (a backup is taken first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirmAction("Move ALL accounts to the trash?", forceDelete)
		if err != nil || !ok {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			n, err := a.svc.DeleteAllAccounts(cmd.Context(), token)
			if err != nil {
				return err
			}
			printSuccess("%d account(s) moved to trash", n)
			return nil
		})
	},
}

var accountRestoreCmd = &cobra.Command{
	Use:   "restore <id>...",
	Short: "Restore accounts from the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			for _, id := range ids {
				if _, err := a.svc.RestoreAccount(cmd.Context(), token, id); err != nil {
					return fmt.Errorf("account %d: %w", id, err)
				}
			}
			printSuccess("%d account(s) restored", len(ids))
			return nil
		})
	},
}

var accountPurgeCmd = &cobra.Command{
	Use:   "purge [id]...",
	Short: "Permanently delete accounts in the trash (all of them with --all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("give account ids or --all")
		}
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		ok, err := confirmAction("Permanently delete? This cannot be undone", forceDelete)
		if err != nil || !ok {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			if all {
				n, err := a.svc.PurgeAllDeleted(cmd.Context(), token)
				if err != nil {
					return err
				}
				printSuccess("%d account(s) permanently deleted", n)
				return nil
			}
			for _, id := range ids {
				if err := a.svc.PurgeAccount(cmd.Context(), token, id); err != nil {
					return fmt.Errorf("account %d: %w", id, err)
				}
			}
			printSuccess("%d account(s) permanently deleted", len(ids))
			return nil
		})
	},
}

var accountToggleStatusCmd = &cobra.Command{
	Use:   "toggle-status <id>",
	Short: "Switch an account between inactive and pro",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggle(cmd, args[0], false)
	},
}

var accountToggleSoldCmd = &cobra.Command{
	Use:   "toggle-sold <id>",
	Short: "Switch an account between unsold and sold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggle(cmd, args[0], true)
	},
}

var accountHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show recorded field changes of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			entries, err := a.svc.History(cmd.Context(), token, id)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				printInfo("no changes recorded")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHANGED AT\tFIELD\tOLD\tNEW")
			for _, h := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.ChangedAt, h.FieldName, orDash(h.OldValue), orDash(h.NewValue))
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountListCmd, accountGetCmd, accountAddCmd, accountUpdateCmd,
		accountDeleteCmd, accountDeleteAllCmd, accountRestoreCmd, accountPurgeCmd,
		accountToggleStatusCmd, accountToggleSoldCmd, accountHistoryCmd)

	accountListCmd.Flags().StringVar(&listSearch, "search", "", "Match email or remark")
	accountListCmd.Flags().StringVar(&listSoldStatus, "sold-status", "", "Filter by sold status: sold, unsold")
	accountListCmd.Flags().BoolVar(&listJSON, "json", false, "Output JSON (passwords masked)")
	accountListCmd.Flags().BoolVar(&listDeleted, "deleted", false, "List the trash instead")

	accountGetCmd.Flags().BoolVar(&getShowSecrets, "show-secrets", false, "Print password and 2FA secret in plaintext")

	for _, c := range []*cobra.Command{accountAddCmd, accountUpdateCmd} {
		c.Flags().StringVar(&accountInput.Email, "email", "", "Email address")
		c.Flags().StringVar(&accountInput.Password, "password", "", "Password (prompted when omitted on add)")
		c.Flags().StringVar(&accountInput.Recovery, "recovery", "", "Recovery email")
		c.Flags().StringVar(&accountInput.Phone, "phone", "", "Phone number")
		c.Flags().StringVar(&accountInput.Secret, "secret", "", "2FA secret (base32)")
		c.Flags().StringVar(&accountInput.RegYear, "reg-year", "", "Registration year")
		c.Flags().StringVar(&accountInput.Country, "country", "", "Country")
		c.Flags().StringVar(&accountInput.GroupName, "group", "", "Group name")
		c.Flags().StringVar(&accountInput.Remark, "remark", "", "Remark / tags")
	}
	_ = accountAddCmd.MarkFlagRequired("email")

	accountDeleteAllCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Skip confirmation prompt")
	accountPurgeCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Skip confirmation prompt")
	accountPurgeCmd.Flags().Bool("all", false, "Empty the whole trash")
}

func toggle(cmd *cobra.Command, arg string, sold bool) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	return withSession(cmd.Context(), func(a *app, token string) error {
		var acc *vault.Account
		if sold {
			acc, err = a.svc.ToggleSoldStatus(cmd.Context(), token, id)
		} else {
			acc, err = a.svc.ToggleStatus(cmd.Context(), token, id)
		}
		if err != nil {
			return err
		}
		printSuccess("account %d: status=%s sold=%s", acc.ID, acc.Status, acc.SoldStatus)
		return nil
	})
}

// inputFlags maps update flag names to the Input field they set.
var inputFlags = map[string]func(dst *vault.Input, src vault.Input){
	"email":    func(d *vault.Input, s vault.Input) { d.Email = s.Email },
	"password": func(d *vault.Input, s vault.Input) { d.Password = s.Password },
	"recovery": func(d *vault.Input, s vault.Input) { d.Recovery = s.Recovery },
	"phone":    func(d *vault.Input, s vault.Input) { d.Phone = s.Phone },
	"secret":   func(d *vault.Input, s vault.Input) { d.Secret = s.Secret },
	"reg-year": func(d *vault.Input, s vault.Input) { d.RegYear = s.RegYear },
	"country":  func(d *vault.Input, s vault.Input) { d.Country = s.Country },
	"group":    func(d *vault.Input, s vault.Input) { d.GroupName = s.GroupName },
	"remark":   func(d *vault.Input, s vault.Input) { d.Remark = s.Remark },
}

// mergeInput starts from the current account and applies only the flags
// that were set on the command line.
func mergeInput(cur *vault.Account, flags vault.Input, changed func(string) bool) vault.Input {
	in := vault.Input{
		Email:     cur.Email,
		Password:  cur.Password,
		Recovery:  cur.Recovery,
		Phone:     cur.Phone,
		Secret:    cur.Secret,
		RegYear:   cur.RegYear,
		Country:   cur.Country,
		GroupName: cur.GroupName,
		Remark:    cur.Remark,
	}
	for name, set := range inputFlags {
		if changed(name) {
			set(&in, flags)
		}
	}
	return in
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id: %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// displayAccount is an account as printed by the CLI.
type displayAccount struct {
	vault.Account
	Password string `json:"password"`
	Secret   string `json:"secret,omitempty"`
}

// accountsForDisplay masks passwords and hides secrets unless reveal is set.
func accountsForDisplay(accounts []*vault.Account, reveal bool) []displayAccount {
	out := make([]displayAccount, 0, len(accounts))
	for _, a := range accounts {
		d := displayAccount{Account: *a, Password: a.Password, Secret: a.Secret}
		if !reveal {
			d.Password = maskPassword(a.Password)
			if a.Secret != "" {
				d.Secret = "(set)"
			}
		}
		out = append(out, d)
	}
	return out
}

func maskPassword(p string) string {
	if p == "" {
		return ""
	}
	return "********"
}

func printAccountTable(accounts []*vault.Account) {
	if len(accounts) == 0 {
		printInfo("no accounts found")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tGROUP\tCOUNTRY\tYEAR\t2FA\tSTATUS\tSOLD\tREMARK")
	for _, a := range accounts {
		twoFA := "-"
		if a.Secret != "" {
			twoFA = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Email, orDash(a.GroupName), orDash(a.Country), orDash(a.RegYear),
			twoFA, a.Status, a.SoldStatus, truncate(orDash(a.Remark), 30))
	}
	w.Flush()
	fmt.Printf("\nTotal: %d accounts\n", len(accounts))
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
