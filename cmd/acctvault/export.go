package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/pkg/export"
	"github.com/forest6511/acctvault/pkg/service"
	"github.com/forest6511/acctvault/pkg/vault"
)

var (
	exportOutput string
	exportForce  bool

	exportFields     string
	exportSeparator  string
	exportStats      bool
	exportOrder      string
	exportGroupBy    string
	exportLabel      string
	exportIDs        string
	exportSearch     string
	exportSoldStatus string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export accounts as text or the database as SQL",
}

var exportTextCmd = &cobra.Command{
	Use:   "text",
	Short: "Export accounts as separator-joined lines",
	Long: `Export accounts as one line per account, optionally grouped and with statistics.

WARNING: the output contains plaintext passwords and 2FA secrets when those
fields are selected.

Examples:
  acctvault export text --fields email,password,recovery -o accounts.txt
  acctvault export text --group-by country:desc --order email --stats
  acctvault export text --ids 1,4,9 --separator " | "`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildExportRequest()
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			text, err := a.svc.ExportText(cmd.Context(), token, req)
			if err != nil {
				return err
			}
			return writeOutput(exportOutput, exportForce, func(w io.Writer) error {
				_, err := io.WriteString(w, text)
				return err
			})
		})
	},
}

var exportSQLCmd = &cobra.Command{
	Use:   "sql",
	Short: "Dump the database as SQL statements",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(a *app, token string) error {
			return writeOutput(exportOutput, exportForce, func(w io.Writer) error {
				return a.svc.ExportSQL(cmd.Context(), token, w)
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportTextCmd, exportSQLCmd)

	exportCmd.PersistentFlags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
	exportCmd.PersistentFlags().BoolVarP(&exportForce, "force", "f", false, "Overwrite an existing output file")

	exportTextCmd.Flags().StringVar(&exportFields, "fields", "email,password", "Comma-separated fields in output order")
	exportTextCmd.Flags().StringVar(&exportSeparator, "separator", "----", "Field separator")
	exportTextCmd.Flags().BoolVar(&exportStats, "stats", false, "Append a statistics block")
	exportTextCmd.Flags().StringVar(&exportOrder, "order", "", "Sort accounts by field[:asc|desc]")
	exportTextCmd.Flags().StringVar(&exportGroupBy, "group-by", "", "Group accounts by field[:asc|desc]")
	exportTextCmd.Flags().StringVar(&exportLabel, "label", "", "Group label template, e.g. \""+export.DefaultGroupLabel+"\"")
	exportTextCmd.Flags().StringVar(&exportIDs, "ids", "", "Comma-separated account ids (default: all active)")
	exportTextCmd.Flags().StringVar(&exportSearch, "search", "", "Match email or remark when --ids is not set")
	exportTextCmd.Flags().StringVar(&exportSoldStatus, "sold-status", "", "Filter by sold status when --ids is not set")
}

func buildExportRequest() (service.ExportRequest, error) {
	req := service.ExportRequest{
		Filter: vault.Filter{Search: exportSearch, SoldStatus: exportSoldStatus},
		Config: export.TextConfig{
			Separator:             exportSeparator,
			Fields:                splitList(exportFields),
			IncludeStats:          exportStats,
			AccountOrder:          parseOrder(exportOrder),
			CategorySort:          parseOrder(exportGroupBy),
			CategoryLabelTemplate: exportLabel,
		},
	}
	if len(req.Config.Fields) == 0 {
		return req, fmt.Errorf("--fields must name at least one field")
	}
	if exportIDs != "" {
		ids, err := parseIDs(splitList(exportIDs))
		if err != nil {
			return req, err
		}
		req.IDs = ids
	}
	return req, nil
}

// parseOrder reads "field" or "field:direction".
func parseOrder(s string) export.Order {
	field, dir, _ := strings.Cut(strings.TrimSpace(s), ":")
	return export.Order{Field: strings.TrimSpace(field), Direction: strings.TrimSpace(dir)}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// writeOutput streams to stdout, or to path created with 0600 permissions.
func writeOutput(path string, force bool, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := createSecureFile(path, force)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	printSuccess("written to %s", path)
	return nil
}

// createSecureFile opens path for writing with 0600 permissions. It refuses
// symlinks and, unless force is set, existing files.
func createSecureFile(path string, force bool) (*os.File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	if info, err := os.Lstat(absPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("security: refusing to write to symlink: %s", absPath)
		}
		if !force {
			return nil, fmt.Errorf("file already exists: %s (use --force to overwrite)", absPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(absPath, flags, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("file already exists: %s (use --force to overwrite)", absPath)
		}
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}
