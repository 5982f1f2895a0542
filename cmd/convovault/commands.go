package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/localarchive/convovault/internal/provider"
)

func newImportCmd(vaultDir *string) *cobra.Command {
	var (
		providerFlag string
		file         string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "import a provider export file into the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := provider.Parse(providerFlag)
			if err != nil {
				return err
			}
			svc, cleanup, err := openService(*vaultDir, true)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.ImportHeadless(tag, file)
			if err != nil {
				return err
			}

			width := progressWidth()
			fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("-", width))
			fmt.Fprintf(cmd.OutOrStdout(), "run %d: artifact %d imported\n", result.RunID, result.ArtifactID)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerFlag, "provider", "", "provider tag: chatgpt, claude, or gemini (required)")
	cmd.Flags().StringVar(&file, "file", "", "path to the export file or zip bundle (required)")
	cmd.MarkFlagRequired("provider")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newSearchCmd(vaultDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "full-text search across all imported messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(*vaultDir, true)
			if err != nil {
				return err
			}
			defer cleanup()

			hits, err := svc.Search(args[0])
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s (thread %d, %s): %s\n",
					h.Provider, h.ThreadTitle, h.ThreadID, h.Role, truncate(h.Content, 120))
			}
			return nil
		},
	}
	return cmd
}

func newWipeCmd(vaultDir *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "permanently erase every imported artifact and relational row",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !confirm(cmd, "this will permanently delete the entire vault. continue? [y/N] ") {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			svc, cleanup, err := openService(*vaultDir, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.Wipe(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "vault wiped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func newDiagnosticsCmd(vaultDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "print the privacy-allowlisted diagnostics payload as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(*vaultDir, true)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := svc.Diagnostics()
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// progressWidth mirrors the teacher's terminal-size probe in
// cmd/clog/main.go, reused here for the import progress separator
// instead of a dashboard layout check.
func progressWidth() int {
	const fallback = 80
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
