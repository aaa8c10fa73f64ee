package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/pkg/importer"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Import accounts from free-form text",
	Long: `Import accounts from text, one account per line.

Fields are split on "|", "----", "——", "---" or "--". Lines are either
"email----password----recovery----phone-or-secret..." or the card form
"卡号: email 密码: password ---- recovery". Blank lines, comments, URLs
and group headers are skipped. Use "-" to read from stdin.

Examples:
  acctvault import accounts.txt
  pbpaste | acctvault import - --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importDryRun {
			text, err := readImportSource(args[0])
			if err != nil {
				return err
			}
			return previewImport(text)
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			// Read after login so a piped password precedes the data.
			text, err := readImportSource(args[0])
			if err != nil {
				return err
			}
			stop := startSpinner("Importing accounts...")
			res, err := a.svc.ImportText(cmd.Context(), token, text)
			stop()
			if err != nil {
				return err
			}
			for _, n := range res.Notes {
				printWarn("%s", n)
			}
			printSuccess("imported %d account(s), %d failed", res.Imported, res.Failed)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and report without writing")
}

func readImportSource(arg string) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(lineReader(stdin()))
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read import data: %w", err)
	}
	return string(data), nil
}

// previewImport prints what would be imported without opening the vault.
func previewImport(text string) error {
	res := importer.Parse(text)
	for _, n := range res.Notes {
		printWarn("%s", n)
	}
	for i, in := range res.Accounts {
		fmt.Printf("%3d  %s\t%s\t%s\n", i+1, in.Email, orDash(in.Recovery), orDash(in.GroupName))
	}
	printInfo("%d account(s) parsed, %d invalid line(s)", len(res.Accounts), res.Stats.InvalidLines)
	return nil
}
