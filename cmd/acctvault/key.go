package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/pkg/masterkey"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Inspect the master key used for field encryption",
	Long: `Inspect the 32-byte master key that encrypts passwords and 2FA secrets.

The key is read from GOOGLE_MANAGER_MASTER_KEY (64 hex characters or base64)
when set, and otherwise from master.key in the data directory, which is
generated on first use. The key itself is never printed. Back up master.key
together with the database: without it, encrypted fields cannot be read.`,
}

var keyInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show where the master key comes from and its fingerprint",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := masterkey.New(masterkey.DefaultKeyPath(cfg.DataDir))
		key, err := p.MasterKey()
		if err != nil {
			return err
		}
		fmt.Printf("Source:      %s\n", describeKeySource(p.Source()))
		fmt.Printf("Key file:    %s\n", p.Path())
		fmt.Printf("Fingerprint: %s\n", keyFingerprint(key))
		if p.Source() == masterkey.SourceGenerated {
			printWarn("a new key was generated; back up %s", p.Path())
		}
		return nil
	},
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create master.key in the data directory if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ignore the environment override so the file is always materialized.
		p := masterkey.New(masterkey.DefaultKeyPath(cfg.DataDir),
			masterkey.WithEnv(func(string) (string, bool) { return "", false }))
		key, err := p.MasterKey()
		if err != nil {
			return err
		}
		if p.Source() == masterkey.SourceGenerated {
			printSuccess("created %s (fingerprint %s)", p.Path(), keyFingerprint(key))
			return nil
		}
		printInfo("%s already exists (fingerprint %s)", p.Path(), keyFingerprint(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyInfoCmd, keyInitCmd)
}

func describeKeySource(s masterkey.Source) string {
	switch s {
	case masterkey.SourceEnv:
		return "environment (" + masterkey.EnvKey + ")"
	case masterkey.SourceGenerated:
		return "key file (generated now)"
	default:
		return "key file"
	}
}

// keyFingerprint identifies a key without revealing it.
func keyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
