package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appservice "github.com/turtacn/keystore/internal/application/service"
	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/infrastructure/audit"
	"github.com/turtacn/keystore/internal/infrastructure/crypto"
	"github.com/turtacn/keystore/internal/infrastructure/persistence"
	"github.com/turtacn/keystore/pkg/logger"
	"github.com/turtacn/keystore/pkg/utils"
)

func newDeleteKeyCmd(root *rootOptions) *cobra.Command {
	var (
		operator string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "delete-key <user>",
		Short: "Remove a user's stored keypair",
		Long: `Remove the keypair stored for a user directly in the configured backend.
This is an operator action: the user's own-key-only rule does not apply.
A new keypair is generated the next time the user's public key is read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := args[0]
			if err := utils.ValidateOwnerID(owner); err != nil {
				return err
			}
			ctx := cmd.Context()
			log := root.newLogger()

			cfg, err := config.LoadConfig(root.configFile, log)
			if err != nil {
				return err
			}
			store, err := persistence.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Error(ctx, "Failed to close storage", err)
				}
			}()

			existing, err := store.Repository.Get(ctx, owner)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if existing == nil {
				fmt.Fprintf(w, "No key stored for %s\n", owner)
				return nil
			}

			if !yes {
				ok, err := confirm(cmd, fmt.Sprintf("Delete key %s of %s?", existing.Fingerprint, owner))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(w, "Aborted")
					return nil
				}
			}

			keys, closePublisher, err := newKeyService(cmd, cfg, store, log)
			if err != nil {
				return err
			}
			defer closePublisher()

			if err := keys.RevokeKey(ctx, operator, owner); err != nil {
				return err
			}
			fmt.Fprintf(w, "Deleted key %s of %s\n", existing.Fingerprint, owner)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", os.Getenv("USER"), "operator recorded in the key event")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// newKeyService wires the key service the same way the server does, so the
// removal is published like any other.
func newKeyService(cmd *cobra.Command, cfg *config.Config, store *persistence.Store, log logger.Logger) (appservice.UserKeyAppService, func(), error) {
	sealer, err := crypto.NewSealer(cfg.Security.KeyEncryptionSecret)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := audit.NewPublisher(cmd.Context(), cfg.Kafka, store.DB, log)
	if err != nil {
		return nil, nil, err
	}
	generator := crypto.NewSSHKeyGenerator(cfg.Keys.PrivateKeyFormat, cfg.Keys.Comment, log)

	keys := appservice.NewUserKeyAppService(store.Repository, generator, sealer, publisher, nil, cfg.Keys, log)
	return keys, func() {
		if err := publisher.Close(); err != nil {
			log.Error(cmd.Context(), "Failed to close event publisher", err)
		}
	}, nil
}
