package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version and commitSHA are overridden at release build time via
// -ldflags, matching the teacher's cmd/clog version var.
var (
	version   = "dev"
	commitSHA = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		vaultDir string
		smoke    bool
		importF  string
		sentinel string
		provTag  string
		smokeOut string
	)

	root := &cobra.Command{
		Use:     "convovault",
		Short:   "local-first conversation archive: ingest, search, and audit chat exports offline",
		Version: version,
		// With no subcommand, --smoke is the only thing root itself does;
		// everything else falls through to cobra's usage output.
		RunE: func(cmd *cobra.Command, args []string) error {
			if !smoke {
				return cmd.Help()
			}
			return runSmoke(smokeOpts{
				vaultDir: vaultDir,
				importF:  importF,
				sentinel: sentinel,
				provTag:  provTag,
				smokeOut: smokeOut,
			})
		},
	}

	root.PersistentFlags().StringVar(&vaultDir, "vault-dir", defaultVaultDir(), "override the vault's user-data directory")
	root.Flags().BoolVar(&smoke, "smoke", false, "run the headless smoke driver and exit")
	root.Flags().StringVar(&importF, "import", "", "smoke: file to import")
	root.Flags().StringVar(&sentinel, "sentinel", "", "smoke: string the fixture embeds, searched for after import")
	root.Flags().StringVar(&provTag, "provider", "", "provider tag: chatgpt, claude, or gemini")
	root.Flags().StringVar(&smokeOut, "smoke-out", "", "smoke: path to write the JSON report to")

	root.AddCommand(
		newImportCmd(&vaultDir),
		newSearchCmd(&vaultDir),
		newWipeCmd(&vaultDir),
		newDiagnosticsCmd(&vaultDir),
	)

	return root
}

func defaultVaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".convovault"
	}
	return home + "/.convovault"
}
