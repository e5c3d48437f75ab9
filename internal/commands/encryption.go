package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSetPassphraseCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "set-passphrase",
		Short: "Enable encryption with the passphrase in " + PassphraseEnv,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass := os.Getenv(PassphraseEnv)
			if pass == "" {
				return fmt.Errorf("%s is not set", PassphraseEnv)
			}
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			if _, err := e.encryption().EnablePassphrase(cmd.Context(), pass); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Encryption enabled; run encrypt-existing to encrypt stored rows\n")
			return nil
		},
	}
}

func newEncryptExistingCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-existing",
		Short: "Encrypt stored descriptions and evidence in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			txns, events, err := e.encryption().EncryptExisting(cmd.Context(), e.codec)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Encrypted %d transactions and %d events\n", txns, events)
			return nil
		},
	}
}
