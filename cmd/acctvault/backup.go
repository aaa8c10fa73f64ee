package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/internal/cli"
	"github.com/forest6511/acctvault/pkg/backup"
	"github.com/forest6511/acctvault/pkg/crypto"
)

var (
	backupReason string
	backupJSON   bool
	backupForce  bool
	sealOutput   string
	sealStdout   bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list, restore and move database backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the database into the backup directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(a *app, token string) error {
			stop := startSpinner("Creating backup...")
			info, err := a.svc.CreateBackup(cmd.Context(), token, backupReason)
			stop()
			if err != nil {
				return err
			}
			printSuccess("backup created: %s (%s)", info.Name, humanSize(info.SizeBytes))
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(a *app, token string) error {
			infos, err := a.svc.ListBackups(cmd.Context(), token)
			if err != nil {
				return err
			}
			if backupJSON {
				return writeJSON(infos)
			}
			if len(infos) == 0 {
				printInfo("no backups in %s", a.backups.Dir())
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCREATED\tSIZE\tCHECKSUM")
			for _, b := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Name, b.CreatedAt,
					humanSize(b.SizeBytes), truncate(orDash(b.Checksum), 15))
			}
			return w.Flush()
		})
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace the database with a backup (a safety backup is taken first)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirmAction(fmt.Sprintf("Replace all current data with %s?", args[0]), backupForce)
		if err != nil || !ok {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			stop := startSpinner("Restoring backup...")
			safety, err := a.svc.RestoreBackup(cmd.Context(), token, args[0])
			stop()
			if err != nil {
				return err
			}
			printSuccess("restored %s; previous data saved as %s", args[0], safety.Name)
			return nil
		})
	},
}

var backupSealCmd = &cobra.Command{
	Use:   "seal <name>",
	Short: "Write a backup as a password-encrypted archive",
	Long: `Write a backup as a portable archive encrypted with its own password
(Argon2id + AES-256-GCM, HMAC-SHA256 over the whole file). The archive does
not depend on this machine's master key.

Examples:
  acctvault backup seal data_20240101_120000_manual_0.db -o vault.acvt
  acctvault backup seal data_20240101_120000_manual_0.db --stdout | ssh host 'cat > vault.acvt'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateSealFlags(); err != nil {
			return err
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			password, err := readSecret("Archive password", true)
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(password)

			return writeOutput(sealOutput, backupForce, func(w io.Writer) error {
				h, err := a.svc.SealBackup(cmd.Context(), token, args[0], w, password)
				if err != nil {
					return err
				}
				printInfo("sealed %s (%s, sha256 %s)", h.Source, humanSize(h.SizeBytes), truncate(h.Checksum, 15))
				return nil
			})
		})
	},
}

var backupUnsealCmd = &cobra.Command{
	Use:   "unseal <archive>",
	Short: "Import a sealed archive as a restorable backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer f.Close()

		return withSession(cmd.Context(), func(a *app, token string) error {
			password, err := readSecret("Archive password", false)
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(password)

			stop := startSpinner("Verifying archive...")
			info, err := a.svc.UnsealBackup(cmd.Context(), token, f, password)
			stop()
			if errors.Is(err, backup.ErrIntegrityFailed) {
				return fmt.Errorf("%w (wrong password or damaged archive)", err)
			}
			if err != nil {
				return err
			}
			printSuccess("imported as %s; run 'acctvault backup restore %s' to use it", info.Name, info.Name)
			return nil
		})
	},
}

var backupUploadCmd = &cobra.Command{
	Use:   "upload <name|pattern>...",
	Short: "Copy backups to the configured S3 bucket",
	Long: `Copy backups to the configured S3 bucket. Arguments are backup names or
glob patterns matched against them.

Examples:
  acctvault backup upload data_20240101_120000_manual_0.db
  acctvault backup upload 'data_202401*' '*_before_restore_*'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.S3.Enabled() {
			return fmt.Errorf("%w: set s3.bucket in the config file or ACCTVAULT_S3_BUCKET", backup.ErrRemoteNotConfigured)
		}
		return withSession(cmd.Context(), func(a *app, token string) error {
			infos, err := a.svc.ListBackups(cmd.Context(), token)
			if err != nil {
				return err
			}
			names := make([]string, len(infos))
			for i, b := range infos {
				names[i] = b.Name
			}
			selected, err := cli.MatchNames(args, names)
			if err != nil {
				return err
			}

			for _, name := range selected {
				stop := startSpinner("Uploading " + name + "...")
				loc, err := a.svc.UploadBackup(cmd.Context(), token, name)
				stop()
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				printSuccess("uploaded to %s", loc)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd,
		backupSealCmd, backupUnsealCmd, backupUploadCmd)

	backupCreateCmd.Flags().StringVar(&backupReason, "reason", backup.ReasonManual, "Reason recorded in the backup name")
	backupListCmd.Flags().BoolVar(&backupJSON, "json", false, "Output JSON")
	backupRestoreCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Skip confirmation prompt")

	backupSealCmd.Flags().StringVarP(&sealOutput, "output", "o", "", "Archive file path")
	backupSealCmd.Flags().BoolVar(&sealStdout, "stdout", false, "Write the archive to stdout (for piping)")
	backupSealCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Overwrite an existing archive")
}

func validateSealFlags() error {
	if sealOutput == "" && !sealStdout {
		return fmt.Errorf("either --output or --stdout is required")
	}
	if sealOutput != "" && sealStdout {
		return fmt.Errorf("--output and --stdout are mutually exclusive")
	}
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
