package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/keystore/internal/infrastructure/crypto"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
)

func newGenerateCmd(root *rootOptions) *cobra.Command {
	var (
		bits    int
		format  string
		comment string
		out     string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an RSA SSH keypair",
		Long: `Generate an RSA keypair the same way the service does on first access.
Without --out the private key PEM and the public key line are written to stdout.
With --out the private key goes to that file (mode 0600) and the public key to <out>.pub.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := crypto.NewSSHKeyGenerator(constants.PrivateKeyFormat(format), comment, root.newLogger())
			pair, err := gen.Generate(cmd.Context(), bits)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out == "" {
				if _, err := w.Write(pair.PrivateKey); err != nil {
					return err
				}
				fmt.Fprintln(w, pair.PublicKey)
				return nil
			}

			if err := os.WriteFile(out, pair.PrivateKey, 0o600); err != nil {
				return errors.Wrap(err, "write private key")
			}
			if err := os.WriteFile(out+".pub", []byte(pair.PublicKey+"\n"), 0o644); err != nil {
				return errors.Wrap(err, "write public key")
			}
			fmt.Fprintf(w, "Wrote %s and %s.pub\n", out, out)
			fmt.Fprintf(w, "Fingerprint: %s\n", pair.Fingerprint)
			return nil
		},
	}

	cmd.Flags().IntVarP(&bits, "bits", "b", constants.DefaultKeyBits, "RSA modulus size")
	cmd.Flags().StringVarP(&format, "format", "f", string(constants.DefaultPrivateKeyFormat), "private key encoding: pkcs1 or openssh")
	cmd.Flags().StringVarP(&comment, "comment", "C", "", "comment appended to the public key")
	cmd.Flags().StringVarP(&out, "out", "o", "", "private key output file")
	return cmd
}
