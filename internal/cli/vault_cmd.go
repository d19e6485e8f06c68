package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/utafrali/tenantgate/internal/vault"
)

const keyEnvVar = "TOKEN_ENCRYPTION_KEY"

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random 256-bit token encryption key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := vault.GenerateKey()
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"key": key}, key)
		},
	}
}

func newEncryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Seal a value with the token encryption key",
		Long:  "Seal a value. Without an argument the value is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := vaultFromCmd(cmd)
			if err != nil {
				return err
			}
			in, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			sealed, err := v.Encrypt(in)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"ciphertext": sealed}, sealed)
		},
	}
	addKeyFlag(cmd)
	return cmd
}

func newDecryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt [ciphertext]",
		Short: "Open a value sealed with the token encryption key",
		Long:  "Open a value. Without an argument the value is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := vaultFromCmd(cmd)
			if err != nil {
				return err
			}
			in, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			plain, err := v.Decrypt(in)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"plaintext": plain}, plain)
		},
	}
	addKeyFlag(cmd)
	return cmd
}

func addKeyFlag(cmd *cobra.Command) {
	cmd.Flags().String("key", "", "64 hex character key (default $"+keyEnvVar+")")
}

func vaultFromCmd(cmd *cobra.Command) (*vault.Vault, error) {
	return vault.New(stringFromFlagOrEnv(cmd, "key", keyEnvVar))
}

func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("no input: pass an argument or pipe a value on stdin")
	}
	return line, nil
}
