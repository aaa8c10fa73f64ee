package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var (
	auditLimit int
	auditSince string

	auditExportFormat string
	auditExportSince  string
	auditExportUntil  string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the tamper-evident audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := sinceFlag(auditSince)
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			events, err := a.svc.ListAudit(cmd.Context(), token, auditLimit, since)
			if err != nil {
				return fmt.Errorf("failed to list audit events: %w", err)
			}
			if len(events) == 0 {
				fmt.Println("No audit events found")
				return nil
			}
			for _, e := range events {
				// TIMESTAMP SOURCE OPERATION RESULT [key] [error]
				line := fmt.Sprintf("%s %-7s %-22s %s", e.Timestamp, e.Actor.Source, e.Operation, e.Result)
				if e.KeyHMAC != "" {
					line += " key:" + truncate(e.KeyHMAC, 16)
				}
				if e.Error != nil {
					line += " error:" + e.Error.Code
				}
				fmt.Println(line)
			}
			fmt.Printf("\nTotal: %d events\n", len(events))
			return nil
		})
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(a *app, token string) error {
			printInfo("verifying audit log integrity...")
			result, err := a.svc.VerifyAudit(cmd.Context(), token)
			if err != nil {
				return fmt.Errorf("failed to verify audit log: %w", err)
			}
			if !result.Valid {
				fmt.Printf("Audit log verification FAILED\n")
				fmt.Printf("  Records total: %d\n", result.RecordsTotal)
				fmt.Printf("  Records verified: %d\n", result.RecordsVerified)
				fmt.Println("  Errors:")
				for _, e := range result.Errors {
					fmt.Printf("    - %s\n", e)
				}
				return fmt.Errorf("audit log integrity check failed")
			}
			printSuccess("audit log verified: %d records, chain intact", result.RecordsTotal)

			jsonResult, _ := json.Marshal(result)
			fmt.Printf("JSON: %s\n", jsonResult)
			return nil
		})
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit logs to JSON or CSV format",
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditExportFormat != "json" && auditExportFormat != "csv" {
			return fmt.Errorf("invalid format: %s (use 'json' or 'csv')", auditExportFormat)
		}
		since, err := sinceFlag(auditExportSince)
		if err != nil {
			return err
		}
		var until time.Time
		if auditExportUntil != "" {
			until, err = time.Parse(time.RFC3339, auditExportUntil)
			if err != nil {
				return fmt.Errorf("invalid until format (use RFC 3339): %w", err)
			}
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			data, err := a.svc.ExportAudit(cmd.Context(), token, auditExportFormat, since, until)
			if err != nil {
				return fmt.Errorf("failed to export audit log: %w", err)
			}
			return writeOutput(exportOutput, exportForce, func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditVerifyCmd, auditExportCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json, csv")
	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "", "Export events since duration (e.g., 30d)")
	auditExportCmd.Flags().StringVar(&auditExportUntil, "until", "", "Export events until time (RFC 3339)")
	auditExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
	auditExportCmd.Flags().BoolVarP(&exportForce, "force", "f", false, "Overwrite an existing output file")
}

func sinceFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since format: %w", err)
	}
	return time.Now().Add(-d), nil
}

// parseDuration extends time.ParseDuration with d (days), w (weeks),
// m (30-day months) and y (365-day years).
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	day := 24 * time.Hour
	var mult time.Duration
	switch unit {
	case 'd':
		mult = day
	case 'w':
		mult = 7 * day
	case 'm':
		mult = 30 * day
	case 'y':
		mult = 365 * day
	default:
		return time.ParseDuration(s)
	}

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil || value < 0 {
		return 0, fmt.Errorf("invalid duration value: %s", valueStr)
	}
	return time.Duration(value) * mult, nil
}
