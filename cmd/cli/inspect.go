package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/keystore/internal/infrastructure/crypto"
	"github.com/turtacn/keystore/pkg/errors"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <private-key-file>",
		Short: "Load a private key and print its public half",
		Long: `Load a PKCS#1 or OpenSSH private key and print its type, size,
SHA256 fingerprint and authorized_keys line. Encrypted keys prompt for the passphrase.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read private key")
			}

			info, err := crypto.Inspect(data)
			if crypto.IsPassphraseMissing(err) {
				passphrase, perr := readSecret(cmd, "Passphrase: ")
				if perr != nil {
					return perr
				}
				info, err = crypto.InspectWithPassphrase(data, passphrase)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Type:        %s\n", info.Type)
			if info.Bits > 0 {
				fmt.Fprintf(w, "Bits:        %d\n", info.Bits)
			}
			fmt.Fprintf(w, "Fingerprint: %s\n", info.Fingerprint)
			fmt.Fprintf(w, "Public key:  %s\n", info.AuthorizedKey)
			return nil
		},
	}
}
