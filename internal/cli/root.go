// Package cli implements tenantctl, the operator tool for key material,
// offline credential inspection and local test fixtures.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var output string

	rootCmd := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Operator tool for the tenant gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if output != "text" && output != "json" {
				return fmt.Errorf("unsupported output format %q (want text or json)", output)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")

	rootCmd.AddCommand(
		newKeygenCmd(),
		newEncryptCmd(),
		newDecryptCmd(),
		newTokenCmd(),
		newSignWebhookCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tool version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printResult(cmd, map[string]string{"version": version, "commit": commit},
				fmt.Sprintf("tenantctl version %s (commit: %s)", version, commit))
		},
	}
}

// printResult writes v as JSON when --output=json, otherwise text.
func printResult(cmd *cobra.Command, v any, text string) error {
	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return printJSON(out, v)
	}
	_, err := fmt.Fprintln(out, text)
	return err
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stringFromFlagOrEnv returns the flag value if set, else the environment
// variable.
func stringFromFlagOrEnv(cmd *cobra.Command, flag, envVar string) string {
	v, _ := cmd.Flags().GetString(flag)
	if cmd.Flags().Changed(flag) || v != "" {
		return v
	}
	return os.Getenv(envVar)
}
